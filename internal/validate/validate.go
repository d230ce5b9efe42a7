// Package validate checks the deployed release end to end, in two tiers.
//
// The internal tier runs on the host itself: the container runtime and the
// proxy must both report active, and the proxy's local listener must answer
// 200. The external tier issues the same probe from this machine against
// the host's public address. The two tiers fail with different kinds: an
// internal failure means the infrastructure is broken, an external failure
// after internal success points at network reachability instead.
package validate

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"dockship/internal/fault"
	"dockship/internal/logging"
	"dockship/internal/target"
	"dockship/internal/transport"
)

// probeTimeout bounds each HTTP probe, internal and external.
const probeTimeout = 10 * time.Second

// Validator checks service liveness and reachability.
type Validator struct {
	Remote transport.Runner
	Log    *logging.Logger

	// Client issues the external probe. Nil selects a default client
	// with the probe timeout.
	Client *http.Client
}

// Validate runs both tiers, internal first.
func (v *Validator) Validate(ctx context.Context, tgt target.Target) error {
	if err := v.Internal(ctx); err != nil {
		return err
	}
	if err := v.External(ctx, tgt.Host); err != nil {
		return err
	}
	v.Log.Success("deployment validated", "host", tgt.Host)
	return nil
}

// Internal verifies the runtime and proxy services are active and probes
// the proxy's local listener.
func (v *Validator) Internal(ctx context.Context) error {
	for _, unit := range []string{"docker", "nginx"} {
		res, err := v.Remote.Run(ctx, []string{"systemctl", "is-active", unit})
		if err != nil || strings.TrimSpace(res.Stdout) != "active" {
			return fault.Wrap(fault.InternalValidation, fault.CodeInternalValidation, err,
				"service %s is not active", unit)
		}
	}

	res, err := v.Remote.Run(ctx, []string{
		"curl", "-s", "-o", "/dev/null",
		"-w", "%{http_code}",
		"--max-time", fmt.Sprintf("%d", int(probeTimeout.Seconds())),
		"http://127.0.0.1/",
	})
	if err != nil {
		return fault.Wrap(fault.InternalValidation, fault.CodeInternalValidation, err,
			"local probe failed")
	}
	if code := strings.TrimSpace(res.Stdout); code != "200" {
		return fault.New(fault.InternalValidation, fault.CodeInternalValidation,
			"local probe returned %s, expected 200", code)
	}

	v.Log.Info("internal checks passed")
	return nil
}

// External probes the host's public address from this machine. A failure
// here, after the internal tier passed, implicates the network path
// (firewall, security group) rather than the application.
func (v *Validator) External(ctx context.Context, host string) error {
	client := v.Client
	if client == nil {
		client = &http.Client{Timeout: probeTimeout}
	}

	url := fmt.Sprintf("http://%s/", host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fault.Wrap(fault.ExternalValidation, fault.CodeExternalValidation, err,
			"building external probe")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fault.Wrap(fault.ExternalValidation, fault.CodeExternalValidation, err,
			"host healthy internally but unreachable from outside; check firewall rules")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fault.New(fault.ExternalValidation, fault.CodeExternalValidation,
			"external probe returned %d, expected 200", resp.StatusCode)
	}

	v.Log.Info("external probe passed", "url", url)
	return nil
}
