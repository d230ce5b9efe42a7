// Package server runs the webhook listener: a push event for a configured
// target triggers the same pipeline the CLI runs, asynchronously.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"dockship/internal/history"
	"dockship/internal/input"
	"dockship/internal/logging"
	"dockship/internal/target"
)

const (
	HTTPReadTimeout  = 10 * time.Second
	HTTPWriteTimeout = 10 * time.Second
	HTTPIdleTimeout  = 60 * time.Second

	RequestTimeout = 60 * time.Second

	// Requests per minute.
	GlobalRateLimit  = 12
	WebhookRateLimit = 4
)

// DeployRunner runs one deployment. Satisfied by pipeline.Pipeline.
type DeployRunner interface {
	Deploy(ctx context.Context, in input.Inputs) error
}

// Server is the webhook HTTP server.
type Server struct {
	Registry *target.Registry
	History  *history.Store
	Locks    *LockManager
	Logger   *logging.Logger
	Pipeline DeployRunner
	TestMode bool
	deployWg sync.WaitGroup
}

// NewServer creates a server over a loaded target registry.
func NewServer(registry *target.Registry, hist *history.Store, pipe DeployRunner,
	logger *logging.Logger, testMode bool) *Server {
	return &Server{
		Registry: registry,
		History:  hist,
		Locks:    NewLockManager(),
		Logger:   logger,
		Pipeline: pipe,
		TestMode: testMode,
	}
}

// Router creates and configures the HTTP router.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(RequestTimeout))

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				s.Logger.Info("http_request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration_ms", time.Since(start).Milliseconds())
			}()

			next.ServeHTTP(ww, r)
		})
	})

	if !s.TestMode {
		r.Use(NewRateLimitMiddleware(GlobalRateLimit, s.Logger))
	}

	r.Get("/health", s.HandleHealth)
	r.Get("/status/{targetName}", s.HandleStatus)

	if !s.TestMode {
		r.With(NewWebhookRateLimitMiddleware(WebhookRateLimit, s.Logger)).Post("/in/{targetName}", s.HandleWebhook)
	} else {
		r.Post("/in/{targetName}", s.HandleWebhook)
	}

	return r
}

// Start starts the HTTP server.
func (s *Server) Start(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	s.Logger.Info("starting server", "addr", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: HTTPWriteTimeout,
		IdleTimeout:  HTTPIdleTimeout,
	}

	return server.ListenAndServe()
}

// WaitForDeployments waits for in-flight async deployments. Used by tests.
func (s *Server) WaitForDeployments() {
	s.deployWg.Wait()
}

// Shutdown waits for in-flight deployments and closes the history store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.deployWg.Wait()

	if s.History != nil {
		return s.History.Close()
	}
	return nil
}
