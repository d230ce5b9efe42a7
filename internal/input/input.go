// Package input collects and validates operator-supplied run parameters.
// Values come from flags and environment first; anything still missing is
// prompted for interactively. Validation failures are pre-flight: each
// field fails with its own exit code before anything runs.
package input

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"dockship/internal/fault"
	"dockship/internal/release"
	"dockship/internal/security"
	"dockship/internal/target"
)

// Inputs are the operator-supplied parameters for one run.
type Inputs struct {
	RepoURL string
	Token   string
	Branch  string
	Host    string
	User    string
	KeyPath string
	Port    int
}

// DefaultBranch is used when the operator leaves the branch unset.
const DefaultBranch = "main"

// Prompter asks the operator for a single missing field.
type Prompter interface {
	Prompt(label string) (string, error)
}

// StdinPrompter reads interactive answers line by line.
type StdinPrompter struct {
	In  io.Reader
	Out io.Writer

	reader *bufio.Reader
}

func (p *StdinPrompter) Prompt(label string) (string, error) {
	if p.reader == nil {
		p.reader = bufio.NewReader(p.In)
	}
	fmt.Fprintf(p.Out, "%s: ", label)
	line, err := p.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading %s: %w", label, err)
	}
	return strings.TrimSpace(line), nil
}

// CollectDeploy fills any missing deploy-mode field interactively.
func CollectDeploy(in *Inputs, p Prompter) error {
	fields := []struct {
		label string
		value *string
	}{
		{"Repository URL", &in.RepoURL},
		{"Access token", &in.Token},
		{"Branch (default main)", &in.Branch},
		{"Remote host", &in.Host},
		{"SSH user", &in.User},
		{"Private key path", &in.KeyPath},
	}
	for _, f := range fields {
		if *f.value != "" {
			continue
		}
		answer, err := p.Prompt(f.label)
		if err != nil {
			return err
		}
		*f.value = answer
	}

	if in.Port == 0 {
		answer, err := p.Prompt("Application port")
		if err != nil {
			return err
		}
		port, err := ParsePort(answer)
		if err != nil {
			return err
		}
		in.Port = port
	}

	return nil
}

// CollectCleanup fills only the fields teardown needs: enough to identify
// the target host and the release. Credential, branch and port stay unset.
func CollectCleanup(in *Inputs, p Prompter) error {
	fields := []struct {
		label string
		value *string
	}{
		{"Repository URL", &in.RepoURL},
		{"Remote host", &in.Host},
		{"SSH user", &in.User},
		{"Private key path", &in.KeyPath},
	}
	for _, f := range fields {
		if *f.value != "" {
			continue
		}
		answer, err := p.Prompt(f.label)
		if err != nil {
			return err
		}
		*f.value = answer
	}
	return nil
}

// ValidateDeploy checks every deploy-mode input. The first failing field
// wins and carries its own exit code.
func ValidateDeploy(in *Inputs) error {
	if err := validateRepo(in.RepoURL); err != nil {
		return err
	}
	if in.Token == "" {
		return fault.New(fault.Input, fault.CodeMissingToken, "access token is required")
	}
	if in.Branch == "" {
		in.Branch = DefaultBranch
	}
	if err := validateTargetFields(in); err != nil {
		return err
	}
	if in.Port <= 0 || in.Port > 65535 {
		return fault.New(fault.Input, fault.CodeBadPort, "port must be between 1 and 65535, got %d", in.Port)
	}
	return nil
}

// ValidateCleanup checks the subset of fields teardown needs.
func ValidateCleanup(in *Inputs) error {
	if err := validateRepo(in.RepoURL); err != nil {
		return err
	}
	return validateTargetFields(in)
}

// validateRepo checks the URL itself and the release name derived from it.
// The name namespaces every remote artifact, so a URL whose basename is a
// path traversal or otherwise unusable must be rejected before anything
// runs: a name like ".." would collapse the remote deployment path onto
// its parent and teardown would remove it.
func validateRepo(repoURL string) error {
	if repoURL == "" {
		return fault.New(fault.Input, fault.CodeMissingRepoURL, "repository URL is required")
	}
	if err := security.ValidateRepoURL(repoURL); err != nil {
		return fault.Wrap(fault.Input, fault.CodeMissingRepoURL, err, "invalid repository URL")
	}
	if err := security.ValidateReleaseName(release.DeriveName(repoURL)); err != nil {
		return fault.Wrap(fault.Input, fault.CodeMissingRepoURL, err,
			"repository URL %q derives an unusable release name", repoURL)
	}
	return nil
}

func validateTargetFields(in *Inputs) error {
	if in.User == "" {
		return fault.New(fault.Input, fault.CodeMissingUser, "SSH user is required")
	}
	if in.Host == "" {
		return fault.New(fault.Input, fault.CodeBadHost, "remote host is required")
	}
	if err := security.ValidateHost(in.Host); err != nil {
		return fault.Wrap(fault.Input, fault.CodeBadHost, err, "invalid host")
	}
	if in.KeyPath == "" {
		return fault.New(fault.Input, fault.CodeBadKeyPath, "private key path is required")
	}
	if err := security.CheckPrivateKey(in.KeyPath); err != nil {
		return fault.Wrap(fault.Input, fault.CodeBadKeyPath, err, "invalid private key path")
	}
	return nil
}

// ParsePort parses an operator-typed port value.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fault.Wrap(fault.Input, fault.CodeBadPort, err, "port must be numeric, got %q", s)
	}
	return port, nil
}

// Target builds the deployment target from validated inputs.
func (in *Inputs) Target() target.Target {
	return target.Target{Host: in.Host, User: in.User, KeyPath: in.KeyPath, Port: in.Port}
}
