package validate

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"dockship/internal/fault"
	"dockship/internal/logging"
	"dockship/internal/target"
	"dockship/internal/transport"
)

type fakeRemote struct {
	stdout map[string]string
	fail   map[string]string
}

func (f *fakeRemote) Run(ctx context.Context, argv []string) (*transport.Result, error) {
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

// healthyRemote reports both services active and a 200 local probe.
func healthyRemote() *fakeRemote {
	return &fakeRemote{stdout: map[string]string{
		"is-active": "active\n",
		"curl":      "200",
	}}
}

// probeServer returns a Validator client that redirects every external
// probe to the given test server.
func probeClient(srv *httptest.Server) *http.Client {
	u, _ := url.Parse(srv.URL)
	return &http.Client{
		Transport: &http.Transport{
			Proxy: func(*http.Request) (*url.URL, error) { return u, nil },
		},
	}
}

func newValidator(remote transport.Runner, client *http.Client) *Validator {
	return &Validator{
		Remote: remote,
		Log:    logging.NewWithWriter(&bytes.Buffer{}),
		Client: client,
	}
}

func TestValidateHealthyDeployment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	v := newValidator(healthyRemote(), probeClient(srv))
	if err := v.Validate(context.Background(), target.Target{Host: "203.0.113.10", Port: 8080}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestInternalFailsWhenServiceInactive(t *testing.T) {
	remote := &fakeRemote{stdout: map[string]string{
		"is-active nginx":  "inactive\n",
		"is-active docker": "active\n",
		"curl":             "200",
	}}

	err := newValidator(remote, nil).Internal(context.Background())
	if !fault.IsKind(err, fault.InternalValidation) {
		t.Fatalf("expected internal-validation fault, got %v", err)
	}
	if fault.ExitCode(err) != fault.CodeInternalValidation {
		t.Errorf("ExitCode = %d, expected %d", fault.ExitCode(err), fault.CodeInternalValidation)
	}
}

func TestInternalFailsOnNon200Probe(t *testing.T) {
	remote := &fakeRemote{stdout: map[string]string{
		"is-active": "active\n",
		"curl":      "502",
	}}

	err := newValidator(remote, nil).Internal(context.Background())
	if !fault.IsKind(err, fault.InternalValidation) {
		t.Fatalf("expected internal-validation fault, got %v", err)
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("error should carry the status code: %v", err)
	}
}

func TestExternalFailureIsDistinctKind(t *testing.T) {
	// Internal tier healthy, external probe answering 503: the two tiers
	// must fail with different kinds for the same topology.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	v := newValidator(healthyRemote(), probeClient(srv))
	err := v.Validate(context.Background(), target.Target{Host: "203.0.113.10", Port: 8080})

	if !fault.IsKind(err, fault.ExternalValidation) {
		t.Fatalf("expected external-validation fault, got %v", err)
	}
	if fault.IsKind(err, fault.InternalValidation) {
		t.Error("external failure must not be classified as internal")
	}
	if fault.ExitCode(err) != fault.CodeExternalValidation {
		t.Errorf("ExitCode = %d, expected %d", fault.ExitCode(err), fault.CodeExternalValidation)
	}
}

func TestExternalUnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // probe now gets connection refused

	v := newValidator(healthyRemote(), probeClient(srv))
	err := v.External(context.Background(), "203.0.113.10")
	if !fault.IsKind(err, fault.ExternalValidation) {
		t.Fatalf("expected external-validation fault, got %v", err)
	}
}
