package pipeline

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dockship/internal/fault"
	"dockship/internal/history"
	"dockship/internal/input"
	"dockship/internal/logging"
	"dockship/internal/target"
	"dockship/internal/transport"
)

type fakeRemote struct {
	commands [][]string
	copies   []string
	stdout   map[string]string
	fail     map[string]string
	closed   bool
}

func (f *fakeRemote) Run(ctx context.Context, argv []string) (*transport.Result, error) {
	f.commands = append(f.commands, argv)
	joined := strings.Join(argv, " ")
	for key, stderr := range f.fail {
		if strings.Contains(joined, key) {
			return &transport.Result{Stderr: stderr, ExitCode: 1}, errors.New("exit status 1")
		}
	}
	for key, out := range f.stdout {
		if strings.Contains(joined, key) {
			return &transport.Result{Stdout: out, ExitCode: 0}, nil
		}
	}
	return &transport.Result{ExitCode: 0}, nil
}

func (f *fakeRemote) Copy(ctx context.Context, localDir, remoteDir string) error {
	f.copies = append(f.copies, remoteDir)
	return nil
}

func (f *fakeRemote) WriteFile(ctx context.Context, remotePath string, data []byte, perm os.FileMode) error {
	return nil
}

func (f *fakeRemote) Close() error { f.closed = true; return nil }

func (f *fakeRemote) ran(substr string) bool {
	for _, argv := range f.commands {
		if strings.Contains(strings.Join(argv, " "), substr) {
			return true
		}
	}
	return false
}

// healthyRemote scripts a target where everything works.
func healthyRemote() *fakeRemote {
	return &fakeRemote{stdout: map[string]string{
		"id -un":           "deploy\n",
		"id -nG":           "deploy docker\n",
		"docker ps -q":     "abc123\n",
		"ps --status":      "svc1\n",
		"systemctl is-act": "active\n",
		"curl":             "200",
	}}
}

type fakeLocal struct {
	commands [][]string
}

func (f *fakeLocal) Run(ctx context.Context, argv []string) (*transport.Result, error) {
	f.commands = append(f.commands, argv)
	return &transport.Result{ExitCode: 0}, nil
}

func okClient(t *testing.T) *http.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	u, _ := url.Parse(srv.URL)
	return &http.Client{
		Transport: &http.Transport{
			Proxy: func(*http.Request) (*url.URL, error) { return u, nil },
		},
	}
}

func writeKey(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(path, []byte("fake key material"), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

// newPipeline builds a pipeline around the fake remote. connectCalls counts
// remote channel opens.
func newPipeline(t *testing.T, remote *fakeRemote, connectCalls *int) *Pipeline {
	t.Helper()
	return &Pipeline{
		Log:       logging.NewWithWriter(&bytes.Buffer{}),
		LocalRoot: t.TempDir(),
		Local:     &fakeLocal{},
		Client:    okClient(t),
		Connect: func(ctx context.Context, tgt target.Target) (transport.Remote, error) {
			*connectCalls++
			return remote, nil
		},
		Preflight: func(ctx context.Context, repoURL, token string) error { return nil },
	}
}

// materialize drops a descriptor into the release's working copy so the
// fake local runner's "clone" has something to show for itself.
func materialize(t *testing.T, p *Pipeline, name, descriptor string) {
	t.Helper()
	dir := filepath.Join(p.LocalRoot, name)
	if err := os.MkdirAll(dir, 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, descriptor), []byte("x\n"), 0644); err != nil {
		t.Fatal(err)
	}
}

func testInputs(t *testing.T) input.Inputs {
	t.Helper()
	in := input.Inputs{
		RepoURL: "https://github.com/acme/widget.git",
		Token:   "ghp_token",
		Host:    "203.0.113.10",
		User:    "deploy",
		KeyPath: writeKey(t),
		Port:    8080,
	}
	if err := input.ValidateDeploy(&in); err != nil {
		t.Fatalf("inputs should validate: %v", err)
	}
	return in
}

func TestDeploySingleContainerEndToEnd(t *testing.T) {
	remote := healthyRemote()
	var connects int
	p := newPipeline(t, remote, &connects)
	p.Local = &fakeLocal{}

	in := testInputs(t)
	if in.Branch != "main" {
		t.Fatalf("unset branch must default to main, got %q", in.Branch)
	}
	materialize(t, p, "widget", "Dockerfile")

	if err := p.Deploy(context.Background(), in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if connects != 1 {
		t.Errorf("expected one remote connection, got %d", connects)
	}
	if !remote.ran("-p 127.0.0.1:8080:8080") {
		t.Error("single-container mode must bind 127.0.0.1:8080")
	}
	if remote.ran("up -d --build") {
		t.Error("Dockerfile-only repository must not run compose")
	}
	if !remote.ran("ln -sf /etc/nginx/sites-available/widget.conf") {
		t.Error("proxy rule was not enabled")
	}
	if !remote.closed {
		t.Error("remote channel was not closed")
	}
}

func TestDeployHaltsBeforeRemoteWithoutDescriptor(t *testing.T) {
	remote := healthyRemote()
	var connects int
	p := newPipeline(t, remote, &connects)

	in := testInputs(t)
	// Working copy exists but holds neither descriptor.
	if err := os.MkdirAll(filepath.Join(p.LocalRoot, "widget", ".git"), 0750); err != nil {
		t.Fatal(err)
	}

	err := p.Deploy(context.Background(), in)
	if !fault.IsKind(err, fault.Validation) {
		t.Fatalf("expected validation fault, got %v", err)
	}
	if connects != 0 {
		t.Error("no remote interaction may happen before source validation passes")
	}
	if len(remote.commands) != 0 {
		t.Errorf("remote commands were issued: %v", remote.commands)
	}
}

func TestDeployConnectivityFailure(t *testing.T) {
	p := &Pipeline{
		Log:       logging.NewWithWriter(&bytes.Buffer{}),
		LocalRoot: t.TempDir(),
		Local:     &fakeLocal{},
		Connect: func(ctx context.Context, tgt target.Target) (transport.Remote, error) {
			return nil, fault.New(fault.Connectivity, fault.CodeConnectivity, "cannot reach %s", tgt.Host)
		},
		Preflight: func(ctx context.Context, repoURL, token string) error { return nil },
	}
	in := testInputs(t)
	materialize(t, p, "widget", "Dockerfile")

	err := p.Deploy(context.Background(), in)
	if fault.ExitCode(err) != fault.CodeConnectivity {
		t.Fatalf("ExitCode = %d, expected %d (%v)", fault.ExitCode(err), fault.CodeConnectivity, err)
	}
}

func TestCleanupWithNoPriorDeployment(t *testing.T) {
	// Probe succeeds, every teardown command fails: still a success.
	remote := &fakeRemote{fail: map[string]string{
		"docker":  "No such container",
		"rm -rf":  "cannot remove",
		"rm -f /": "no such file",
		"reload":  "not loaded",
	}}
	var connects int
	p := newPipeline(t, remote, &connects)

	in := testInputs(t)
	if err := p.Cleanup(context.Background(), in); err != nil {
		t.Fatalf("teardown with nothing to remove must succeed: %v", err)
	}
	if !remote.ran("rm -rf /srv/dockship/widget") {
		t.Error("deployment path removal was not attempted")
	}
}

func TestCleanupRefusesTraversalReleaseName(t *testing.T) {
	// "https://github.com/.." passes URL validation but derives the
	// release name "..", collapsing the remote deployment path onto
	// /srv. The run must stop before a single remote command is issued;
	// teardown would otherwise rm -rf the parent directory.
	remote := healthyRemote()
	var connects int
	p := newPipeline(t, remote, &connects)

	in := input.Inputs{
		RepoURL: "https://github.com/..",
		Host:    "203.0.113.10",
		User:    "deploy",
		KeyPath: writeKey(t),
		Port:    8080,
	}

	err := p.Cleanup(context.Background(), in)
	if fault.ExitCode(err) != fault.CodeMissingRepoURL {
		t.Fatalf("expected repo URL exit code, got %v", err)
	}
	if connects != 0 || len(remote.commands) != 0 {
		t.Errorf("remote interaction happened for a rejected release name: %v", remote.commands)
	}

	if err := p.Deploy(context.Background(), in); fault.ExitCode(err) != fault.CodeMissingRepoURL {
		t.Fatalf("deploy must reject the same name, got %v", err)
	}
	if len(remote.commands) != 0 {
		t.Errorf("deploy issued remote commands for a rejected release name: %v", remote.commands)
	}
}

func TestHistoryRecordsOutcome(t *testing.T) {
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	remote := healthyRemote()
	var connects int
	p := newPipeline(t, remote, &connects)
	p.History = store

	in := testInputs(t)
	materialize(t, p, "widget", "compose.yaml")

	if err := p.Deploy(context.Background(), in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	runs, err := store.Recent(1)
	if err != nil || len(runs) != 1 {
		t.Fatalf("expected one recorded run, got %v (%v)", runs, err)
	}
	if runs[0].Action != "deploy" || runs[0].ExitCode != 0 || runs[0].Mode != "compose-stack" {
		t.Errorf("unexpected record: %+v", runs[0])
	}
}
