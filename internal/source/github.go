package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// GitHubPreflight verifies that the token can see the repository before any
// git command runs, so a revoked or mistyped credential fails with a clear
// message instead of a git prompt buried in clone output.
//
// Non-GitHub hosts and tokenless runs are skipped; git itself is the
// authority there.
func GitHubPreflight(ctx context.Context, repoURL, token string) error {
	if token == "" {
		return nil
	}

	owner, repo, ok := splitGitHubRepo(repoURL)
	if !ok {
		return nil
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := github.NewClient(oauth2.NewClient(ctx, ts))

	_, resp, err := client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case 401:
				return fmt.Errorf("token rejected by GitHub (401): check the access token")
			case 404:
				return fmt.Errorf("repository %s/%s not found or token lacks access (404)", owner, repo)
			}
		}
		return fmt.Errorf("querying repository %s/%s: %w", owner, repo, err)
	}

	return nil
}

// splitGitHubRepo extracts owner and repository from a github.com HTTPS URL.
func splitGitHubRepo(repoURL string) (owner, repo string, ok bool) {
	u, err := url.Parse(repoURL)
	if err != nil {
		return "", "", false
	}
	host := strings.ToLower(u.Hostname())
	if host != "github.com" && host != "www.github.com" {
		return "", "", false
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), true
}
