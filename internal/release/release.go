// Package release models a deployable release: the descriptor derived from
// the repository URL and the deployment mode detected from the working copy.
package release

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"dockship/pkg/fileutil"
)

// RemoteRoot is the fixed directory on the target host under which every
// release gets its own deployment path.
const RemoteRoot = "/srv/dockship"

// Mode is the deployment topology, computed once after the source tree is
// materialized and threaded through every mode-sensitive stage.
type Mode int

const (
	ModeUnknown Mode = iota

	// SingleContainer builds one image from a Dockerfile and runs one
	// container bound to the loopback interface.
	SingleContainer

	// ComposeStack runs the whole stack from a compose descriptor.
	ComposeStack
)

func (m Mode) String() string {
	switch m {
	case SingleContainer:
		return "single-container"
	case ComposeStack:
		return "compose-stack"
	default:
		return "unknown"
	}
}

// ComposeFiles are the compose descriptor names recognized in a working
// copy, in detection order.
var ComposeFiles = []string{
	"docker-compose.yml",
	"docker-compose.yaml",
	"compose.yml",
	"compose.yaml",
}

// Dockerfile is the single-container build descriptor.
const Dockerfile = "Dockerfile"

// Release ties together everything a deployment run needs to know about
// the code being shipped. Constructed once from operator input and
// read-only afterwards.
type Release struct {
	// RepoURL is the repository the release is built from.
	RepoURL string

	// Branch is the revision to deploy.
	Branch string

	// Name namespaces every remote artifact: the container (or stack),
	// the image tag, the remote directory and the proxy rule filename.
	// Releases sharing a name collide; nothing disambiguates them.
	Name string

	// WorkDir is the local working copy path.
	WorkDir string

	// RemotePath is the deployment directory on the target host.
	RemotePath string
}

// New derives a release descriptor from the repository URL. localRoot is
// the directory local working copies live under.
func New(repoURL, branch, localRoot string) *Release {
	name := DeriveName(repoURL)
	return &Release{
		RepoURL:    repoURL,
		Branch:     branch,
		Name:       name,
		WorkDir:    filepath.Join(localRoot, name),
		RemotePath: path.Join(RemoteRoot, name),
	}
}

// DeriveName computes the release name from a repository URL: the basename
// of the path with a trailing ".git" stripped. A URL without the suffix
// keeps its full basename.
func DeriveName(repoURL string) string {
	trimmed := strings.TrimRight(repoURL, "/")
	base := path.Base(trimmed)
	return strings.TrimSuffix(base, ".git")
}

// ImageTag is the image tag for single-container builds.
func (r *Release) ImageTag() string {
	return r.Name + ":latest"
}

// ProxyRuleName is the filename of the release's nginx rule.
func (r *Release) ProxyRuleName() string {
	return r.Name + ".conf"
}

// DetectMode inspects a materialized working copy and computes the
// deployment mode. A compose descriptor wins over a Dockerfile. Neither
// present means the release is not deployable.
func DetectMode(dir string) (Mode, error) {
	for _, name := range ComposeFiles {
		if fileutil.FileExists(filepath.Join(dir, name)) {
			return ComposeStack, nil
		}
	}
	if fileutil.FileExists(filepath.Join(dir, Dockerfile)) {
		return SingleContainer, nil
	}
	return ModeUnknown, fmt.Errorf("no compose descriptor or Dockerfile in %s", dir)
}
