package input

import (
	"os"
	"path/filepath"
	"testing"

	"dockship/internal/fault"
)

func writeKey(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(path, []byte("fake key material"), 0600); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}
	return path
}

func validInputs(t *testing.T) Inputs {
	t.Helper()
	return Inputs{
		RepoURL: "https://github.com/acme/widget.git",
		Token:   "ghp_token",
		Branch:  "main",
		Host:    "203.0.113.10",
		User:    "deploy",
		KeyPath: writeKey(t),
		Port:    8080,
	}
}

func TestValidateDeployExitCodes(t *testing.T) {
	testCases := []struct {
		name     string
		mutate   func(in *Inputs)
		wantCode int
	}{
		{"missing repo URL", func(in *Inputs) { in.RepoURL = "" }, fault.CodeMissingRepoURL},
		{"non-https repo URL", func(in *Inputs) { in.RepoURL = "git://github.com/a/b.git" }, fault.CodeMissingRepoURL},
		{"URL deriving a traversal name", func(in *Inputs) { in.RepoURL = "https://github.com/.." }, fault.CodeMissingRepoURL},
		{"URL deriving a dotfile name", func(in *Inputs) { in.RepoURL = "https://github.com/acme/.hidden.git" }, fault.CodeMissingRepoURL},
		{"missing token", func(in *Inputs) { in.Token = "" }, fault.CodeMissingToken},
		{"missing user", func(in *Inputs) { in.User = "" }, fault.CodeMissingUser},
		{"missing host", func(in *Inputs) { in.Host = "" }, fault.CodeBadHost},
		{"host with metacharacters", func(in *Inputs) { in.Host = "example.com;rm" }, fault.CodeBadHost},
		{"missing key path", func(in *Inputs) { in.KeyPath = "" }, fault.CodeBadKeyPath},
		{"nonexistent key path", func(in *Inputs) { in.KeyPath = "/nonexistent/key" }, fault.CodeBadKeyPath},
		{"zero port", func(in *Inputs) { in.Port = 0 }, fault.CodeBadPort},
		{"port out of range", func(in *Inputs) { in.Port = 70000 }, fault.CodeBadPort},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInputs(t)
			tc.mutate(&in)

			err := ValidateDeploy(&in)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !fault.IsKind(err, fault.Input) {
				t.Errorf("expected input fault, got %v", err)
			}
			if got := fault.ExitCode(err); got != tc.wantCode {
				t.Errorf("ExitCode = %d, expected %d", got, tc.wantCode)
			}
		})
	}
}

func TestValidateDeployDefaultsBranch(t *testing.T) {
	in := validInputs(t)
	in.Branch = ""

	if err := ValidateDeploy(&in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.Branch != "main" {
		t.Errorf("Branch = %q, expected default main", in.Branch)
	}
}

func TestValidateCleanupIgnoresDeployOnlyFields(t *testing.T) {
	in := validInputs(t)
	in.Token = ""
	in.Branch = ""
	in.Port = 0

	if err := ValidateCleanup(&in); err != nil {
		t.Fatalf("teardown must not require token, branch or port: %v", err)
	}
}

func TestValidateCleanupRejectsTraversalName(t *testing.T) {
	// A name of ".." would collapse the remote deployment path onto
	// /srv and teardown would delete it wholesale.
	in := validInputs(t)
	in.RepoURL = "https://github.com/.."

	err := ValidateCleanup(&in)
	if fault.ExitCode(err) != fault.CodeMissingRepoURL {
		t.Fatalf("expected repo URL exit code, got %v", err)
	}
}

func TestParsePort(t *testing.T) {
	if _, err := ParsePort("abc"); fault.ExitCode(err) != fault.CodeBadPort {
		t.Errorf("non-numeric port must fail with the port exit code, got %v", err)
	}
	port, err := ParsePort(" 8080 ")
	if err != nil || port != 8080 {
		t.Errorf("ParsePort(\" 8080 \") = (%d, %v)", port, err)
	}
}

type scriptedPrompter struct {
	answers map[string]string
	asked   []string
}

func (p *scriptedPrompter) Prompt(label string) (string, error) {
	p.asked = append(p.asked, label)
	return p.answers[label], nil
}

func TestCollectDeployPromptsOnlyMissingFields(t *testing.T) {
	in := validInputs(t)
	in.Token = ""
	in.Port = 0

	p := &scriptedPrompter{answers: map[string]string{
		"Access token":     "prompted-token",
		"Application port": "9000",
	}}

	if err := CollectDeploy(&in, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.Token != "prompted-token" || in.Port != 9000 {
		t.Errorf("prompted values not applied: %+v", in)
	}
	if len(p.asked) != 2 {
		t.Errorf("only missing fields should be prompted, asked %v", p.asked)
	}
}

func TestCollectCleanupSkipsDeployOnlyFields(t *testing.T) {
	in := Inputs{}
	p := &scriptedPrompter{answers: map[string]string{
		"Repository URL":   "https://github.com/acme/widget.git",
		"Remote host":      "203.0.113.10",
		"SSH user":         "deploy",
		"Private key path": "/keys/id",
	}}

	if err := CollectCleanup(&in, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, label := range p.asked {
		if label == "Access token" || label == "Application port" {
			t.Errorf("teardown must not prompt for %s", label)
		}
	}
	if in.Host != "203.0.113.10" {
		t.Errorf("prompted host not applied: %+v", in)
	}
}
