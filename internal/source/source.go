// Package source materializes the local working copy of the release.
// This stage never touches the remote host.
package source

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"dockship/internal/fault"
	"dockship/internal/logging"
	"dockship/internal/release"
	"dockship/internal/security"
	"dockship/internal/transport"
	"dockship/pkg/fileutil"
)

// Stage obtains and updates local working copies.
type Stage struct {
	// Runner executes local git commands.
	Runner transport.Runner

	// Log is the run logger.
	Log *logging.Logger

	// Preflight verifies repository access before the filesystem is
	// touched. Nil selects the GitHub API preflight; tests stub it.
	Preflight func(ctx context.Context, repoURL, token string) error
}

// Obtain makes sure the working copy for the release exists at the
// requested branch and revision, then computes the deployment mode.
//
// An existing working copy is switched and fast-forwarded, never
// re-cloned. A fresh one is cloned with the credential embedded in the
// clone URL; the credential never reaches the logs.
func (s *Stage) Obtain(ctx context.Context, rel *release.Release, token string) (release.Mode, error) {
	if err := security.ValidateRepoURL(rel.RepoURL); err != nil {
		return release.ModeUnknown, fault.Wrap(fault.Input, fault.CodeMissingRepoURL, err, "invalid repository URL")
	}
	if err := security.ValidateBranchName(rel.Branch); err != nil {
		return release.ModeUnknown, fault.Wrap(fault.Sync, fault.CodeSync, err, "invalid branch")
	}

	preflight := s.Preflight
	if preflight == nil {
		preflight = GitHubPreflight
	}
	if err := preflight(ctx, rel.RepoURL, token); err != nil {
		return release.ModeUnknown, fault.Wrap(fault.Sync, fault.CodeSync, err, "repository access check failed")
	}

	if fileutil.DirExists(filepath.Join(rel.WorkDir, ".git")) {
		if err := s.update(ctx, rel, token); err != nil {
			return release.ModeUnknown, err
		}
	} else {
		if err := s.clone(ctx, rel, token); err != nil {
			return release.ModeUnknown, err
		}
	}

	mode, err := release.DetectMode(rel.WorkDir)
	if err != nil {
		return release.ModeUnknown, fault.Wrap(fault.Validation, fault.CodeNoDescriptor, err,
			"release is not deployable: no container or compose descriptor")
	}

	s.Log.Info("working copy ready", "release", rel.Name, "branch", rel.Branch, "mode", mode.String())
	return mode, nil
}

// update switches the existing working copy to the requested branch and
// fast-forwards it. Local modifications that block either step fail the
// stage; nothing is reset or discarded implicitly.
func (s *Stage) update(ctx context.Context, rel *release.Release, token string) error {
	s.Log.Info("updating existing working copy", "path", rel.WorkDir, "branch", rel.Branch)

	if res, err := s.Runner.Run(ctx, []string{"git", "-C", rel.WorkDir, "switch", rel.Branch}); err != nil {
		return fault.Wrap(fault.Sync, fault.CodeSync, err,
			"branch switch failed: %s", redacted(res, token))
	}

	if res, err := s.Runner.Run(ctx, []string{"git", "-C", rel.WorkDir, "pull", "--ff-only", "origin", rel.Branch}); err != nil {
		return fault.Wrap(fault.Sync, fault.CodeSync, err,
			"fast-forward failed: %s", redacted(res, token))
	}

	return nil
}

func (s *Stage) clone(ctx context.Context, rel *release.Release, token string) error {
	authURL, err := CloneURL(rel.RepoURL, token)
	if err != nil {
		return fault.Wrap(fault.Sync, fault.CodeSync, err, "building clone URL")
	}

	s.Log.Info("cloning repository",
		"url", security.RedactToken(authURL, token), "branch", rel.Branch, "path", rel.WorkDir)

	if res, err := s.Runner.Run(ctx, []string{"git", "clone", "--branch", rel.Branch, authURL, rel.WorkDir}); err != nil {
		return fault.Wrap(fault.Sync, fault.CodeSync, err,
			"clone failed: %s", redacted(res, token))
	}

	return nil
}

// CloneURL embeds the access credential into the repository URL the way
// token-authenticated HTTPS remotes expect it.
func CloneURL(repoURL, token string) (string, error) {
	if token == "" {
		return repoURL, nil
	}
	u, err := url.Parse(repoURL)
	if err != nil {
		return "", fmt.Errorf("invalid repository URL: %w", err)
	}
	u.User = url.UserPassword("x-access-token", token)
	return u.String(), nil
}

// redacted renders command output for error messages with the credential
// scrubbed; git is happy to echo the full remote URL on failure.
func redacted(res *transport.Result, token string) string {
	if res == nil {
		return ""
	}
	out := strings.TrimSpace(res.Stderr)
	if out == "" {
		out = strings.TrimSpace(res.Stdout)
	}
	return security.RedactToken(out, token)
}
