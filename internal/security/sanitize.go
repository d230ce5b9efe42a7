package security

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	// Safe patterns for validation
	branchPattern  = regexp.MustCompile(`^[a-zA-Z0-9/_.-]+$`)
	releasePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
	hostPattern    = regexp.MustCompile(`^[a-zA-Z0-9.-]+$`)
)

// ValidateRepoURL ensures a repository URL is safe to embed in git commands.
// Only HTTPS URLs are accepted; the operator credential is injected
// separately, never typed into the URL by hand.
func ValidateRepoURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("only HTTPS repository URLs are allowed, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("repository URL has no host")
	}
	if u.User != nil {
		return fmt.Errorf("repository URL must not embed credentials")
	}
	if strings.TrimSuffix(strings.Trim(u.Path, "/"), ".git") == "" {
		return fmt.Errorf("repository URL has no path")
	}
	if ContainsShellMetachars(rawURL) {
		return fmt.Errorf("repository URL contains shell metacharacters")
	}
	return nil
}

// ValidateBranchName ensures a branch name is safe for git operations.
// Prevents command injection through branch names.
func ValidateBranchName(branch string) error {
	if branch == "" {
		return fmt.Errorf("branch name cannot be empty")
	}
	if strings.HasPrefix(branch, "-") {
		return fmt.Errorf("branch name cannot start with '-'")
	}
	if !branchPattern.MatchString(branch) {
		return fmt.Errorf("branch name contains invalid characters")
	}
	return nil
}

// ValidateReleaseName ensures a release name is safe for use in container
// names, image tags, remote paths and proxy rule filenames.
func ValidateReleaseName(name string) error {
	if name == "" {
		return fmt.Errorf("release name cannot be empty")
	}
	if strings.HasPrefix(name, "-") || strings.HasPrefix(name, ".") {
		return fmt.Errorf("release name cannot start with '-' or '.'")
	}
	if !releasePattern.MatchString(name) {
		return fmt.Errorf("release name contains invalid characters (only a-z, A-Z, 0-9, _, ., - allowed)")
	}
	return nil
}

// ValidateHost ensures a host address looks like a hostname or IP and
// carries nothing a remote shell could interpret.
func ValidateHost(host string) error {
	if host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if !hostPattern.MatchString(host) {
		return fmt.Errorf("host contains invalid characters")
	}
	return nil
}

// ContainsShellMetachars checks if a string contains shell metacharacters.
// Remote commands are shellquote-joined before execution, but operator
// values that end up inside them are rejected outright as a second layer.
func ContainsShellMetachars(s string) bool {
	return strings.ContainsAny(s, ";|&$`\n><(){}*?[]\\'\"")
}

// RedactToken replaces every occurrence of the credential in s with a
// fixed marker so clone URLs can be logged without leaking the token.
func RedactToken(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, "***")
}
