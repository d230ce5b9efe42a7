package proxy

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"dockship/internal/fault"
	"dockship/internal/logging"
	"dockship/internal/release"
	"dockship/internal/target"
	"dockship/internal/transport"
)

type fakeRemote struct {
	commands [][]string
	writes   map[string][]byte
	fail     map[string]string
}

func (f *fakeRemote) Run(ctx context.Context, argv []string) (*transport.Result, error) {
	f.commands = append(f.commands, argv)
	joined := strings.Join(argv, " ")
	for key, stderr := range f.fail {
		if strings.Contains(joined, key) {
			return &transport.Result{Stderr: stderr, ExitCode: 1}, errors.New("exit status 1")
		}
	}
	return &transport.Result{ExitCode: 0}, nil
}

func (f *fakeRemote) Copy(ctx context.Context, localDir, remoteDir string) error { return nil }

func (f *fakeRemote) WriteFile(ctx context.Context, remotePath string, data []byte, perm os.FileMode) error {
	if f.writes == nil {
		f.writes = make(map[string][]byte)
	}
	f.writes[remotePath] = data
	return nil
}

func (f *fakeRemote) Close() error { return nil }

func (f *fakeRemote) ran(substr string) bool {
	for _, argv := range f.commands {
		if strings.Contains(strings.Join(argv, " "), substr) {
			return true
		}
	}
	return false
}

func newConfigurator(remote transport.Remote) *Configurator {
	return &Configurator{Remote: remote, Log: logging.NewWithWriter(&bytes.Buffer{})}
}

func testTarget() target.Target {
	return target.Target{Host: "203.0.113.10", User: "deploy", KeyPath: "/keys/id", Port: 8080}
}

func TestConfigureInstallsAndReloads(t *testing.T) {
	rel := release.New("https://github.com/acme/widget.git", "main", t.TempDir())
	remote := &fakeRemote{}

	if err := newConfigurator(remote).Configure(context.Background(), rel, testTarget()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var staged []byte
	for path, data := range remote.writes {
		if strings.Contains(path, "widget.conf") {
			staged = data
		}
	}
	if staged == nil {
		t.Fatal("rule was never staged")
	}
	rule := string(staged)
	if !strings.Contains(rule, "server_name 203.0.113.10;") {
		t.Errorf("rule must match the target host: %s", rule)
	}
	if !strings.Contains(rule, "proxy_pass http://127.0.0.1:8080;") {
		t.Errorf("rule must forward to the loopback port: %s", rule)
	}

	if !remote.ran("install -m 0644") {
		t.Error("rule was not installed into sites-available")
	}
	if !remote.ran("ln -sf " + RulePath(rel) + " " + EnableLinkPath(rel)) {
		t.Error("rule was not enabled")
	}
	if !remote.ran("nginx -t") {
		t.Error("configuration was not validated")
	}
	if !remote.ran("systemctl reload nginx") {
		t.Error("proxy was not reloaded")
	}
}

func TestConfigureNeverReloadsOnInvalidConfig(t *testing.T) {
	rel := release.New("https://github.com/acme/widget.git", "main", t.TempDir())
	remote := &fakeRemote{fail: map[string]string{
		"nginx -t": `nginx: [emerg] invalid parameter`,
	}}

	err := newConfigurator(remote).Configure(context.Background(), rel, testTarget())
	if !fault.IsKind(err, fault.Proxy) {
		t.Fatalf("expected proxy fault, got %v", err)
	}
	if fault.ExitCode(err) != fault.CodeProxy {
		t.Errorf("ExitCode = %d, expected %d", fault.ExitCode(err), fault.CodeProxy)
	}

	if remote.ran("systemctl reload nginx") {
		t.Error("nginx must not be reloaded when validation fails")
	}
	if !remote.ran("rm -f " + EnableLinkPath(rel)) {
		t.Error("broken rule must be backed out so existing rules stay active")
	}
}

func TestRemoveIsBestEffort(t *testing.T) {
	rel := release.New("https://github.com/acme/widget.git", "main", t.TempDir())
	remote := &fakeRemote{fail: map[string]string{"reload": "nginx.service not loaded"}}

	// Remove must not panic or error even when nothing exists.
	newConfigurator(remote).Remove(context.Background(), rel)

	if !remote.ran("rm -f " + EnableLinkPath(rel) + " " + RulePath(rel)) {
		t.Error("rule files were not removed")
	}
}

func TestRulePaths(t *testing.T) {
	rel := release.New("https://github.com/acme/widget.git", "main", t.TempDir())

	if got := RulePath(rel); got != "/etc/nginx/sites-available/widget.conf" {
		t.Errorf("RulePath = %q", got)
	}
	if got := EnableLinkPath(rel); got != "/etc/nginx/sites-enabled/widget.conf" {
		t.Errorf("EnableLinkPath = %q", got)
	}
}
