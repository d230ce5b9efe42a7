package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"dockship/internal/input"
	"dockship/internal/release"
	"dockship/internal/security"
	"dockship/internal/target"
)

const (
	MaxPayloadBytes = 1_000_000 // 1 MB

	// Number of recent runs returned by the status endpoint.
	RecentRunsLimit = 10
)

// HandleWebhook handles GitHub push webhooks for a named target.
func (s *Server) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	targetName := chi.URLParam(r, "targetName")

	if err := security.ValidateReleaseName(targetName); err != nil {
		s.Logger.Warn("invalid target name in webhook request", "target", targetName, "error", err)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Invalid target name: %v", err)})
		return
	}

	entry, err := s.Registry.Get(targetName)
	if err != nil {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown target"})
		return
	}

	if r.ContentLength > MaxPayloadBytes {
		s.respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Payload too large"})
		return
	}

	if r.Header.Get("Content-Type") != "application/json" {
		s.respondJSON(w, http.StatusUnsupportedMediaType, map[string]string{"error": "Invalid content type"})
		return
	}

	if r.Header.Get("X-GitHub-Event") != "push" {
		s.respondJSON(w, http.StatusOK, map[string]string{"message": "Ignoring non-push event"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxPayloadBytes))
	if err != nil {
		s.Logger.Error("failed to read request body", "error", err, "target", targetName)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to read payload"})
		return
	}

	signature := r.Header.Get("X-Hub-Signature-256")
	if !VerifySignature(body, signature, entry.Secret) {
		s.respondJSON(w, http.StatusForbidden, map[string]string{"error": "Invalid signature"})
		return
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		s.Logger.Error("failed to parse JSON payload", "error", err, "target", targetName)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON payload"})
		return
	}

	if len(payload) == 0 {
		s.respondJSON(w, http.StatusOK, map[string]string{"message": "Missing payload, skipping"})
		return
	}

	// Only pushes to the configured branch deploy; answer before taking
	// the lock so off-branch pushes never contend.
	ref, _ := payload["ref"].(string)
	if !isTargetBranch(ref, entry.Branch) {
		s.respondJSON(w, http.StatusOK, map[string]string{"message": "Not target branch, skipping"})
		return
	}

	if !s.Locks.TryLock(targetName) {
		s.Logger.Warn("deployment already in progress, rejecting", "target", targetName)
		s.respondJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Deployment already in progress"})
		return
	}

	// GitHub webhooks time out after 10 seconds; acknowledge receipt and
	// run the pipeline asynchronously.
	s.respondJSON(w, http.StatusAccepted, map[string]string{
		"message": "Deployment accepted",
		"target":  targetName,
	})

	s.deployWg.Add(1)
	go func() {
		defer s.deployWg.Done()
		defer s.Locks.Unlock(targetName)
		s.executeDeployment(context.Background(), targetName, entry)
	}()
}

// executeDeployment runs the pipeline for a target; the pipeline itself
// records the outcome in history.
func (s *Server) executeDeployment(ctx context.Context, targetName string, entry *target.Entry) {
	in := input.Inputs{
		RepoURL: entry.Repo,
		Token:   entry.Token,
		Branch:  entry.Branch,
		Host:    entry.Host,
		User:    entry.User,
		KeyPath: entry.Key,
		Port:    entry.Port,
	}

	if err := s.Pipeline.Deploy(ctx, in); err != nil {
		s.Logger.Error("deployment failed", "target", targetName, "error", err.Error())
		return
	}
	s.Logger.Info("deployment completed", "target", targetName, "status", "success")
}

// isTargetBranch reports whether a push ref lands on the configured branch.
func isTargetBranch(ref, branch string) bool {
	return strings.TrimPrefix(ref, "refs/heads/") == branch && ref != ""
}

// HandleHealth handles health check requests.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	targets := s.Registry.List()
	response := map[string]interface{}{
		"status":       "ok",
		"targets":      targets,
		"target_count": len(targets),
	}

	s.respondJSON(w, http.StatusOK, response)
}

// HandleStatus returns recent runs for a target.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	targetName := chi.URLParam(r, "targetName")

	if err := security.ValidateReleaseName(targetName); err != nil {
		s.Logger.Warn("invalid target name in status request", "target", targetName, "error", err)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Invalid target name: %v", err)})
		return
	}

	entry, err := s.Registry.Get(targetName)
	if err != nil {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown target"})
		return
	}

	if s.History == nil {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "History not enabled"})
		return
	}

	recent, err := s.History.RecentFor(release.DeriveName(entry.Repo), RecentRunsLimit)
	if err != nil {
		s.Logger.Error("failed to fetch run history", "error", err, "target", targetName)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch run history"})
		return
	}

	response := map[string]interface{}{
		"target":      targetName,
		"recent_runs": recent,
	}

	s.respondJSON(w, http.StatusOK, response)
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Logger.Error("failed to encode JSON response", "error", err)
	}
}
