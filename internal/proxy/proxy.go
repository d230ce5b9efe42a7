// Package proxy installs the nginx rule that makes the deployed instance
// reachable on port 80.
package proxy

import (
	"context"
	"fmt"
	"path"
	"strings"

	"dockship/internal/fault"
	"dockship/internal/logging"
	"dockship/internal/release"
	"dockship/internal/security"
	"dockship/internal/target"
	"dockship/internal/transport"
	"dockship/pkg/templates"
)

// nginx configuration directories on the target host.
const (
	SitesAvailable = "/etc/nginx/sites-available"
	SitesEnabled   = "/etc/nginx/sites-enabled"

	// stagingDir is where the rendered rule lands before sudo moves it
	// into place; the deploy user cannot write the nginx directories.
	stagingDir = "/tmp"
)

// Configurator installs and activates proxy rules.
type Configurator struct {
	Remote transport.Remote
	Log    *logging.Logger
}

// RulePath returns the rule definition path for a release.
func RulePath(rel *release.Release) string {
	return path.Join(SitesAvailable, rel.ProxyRuleName())
}

// EnableLinkPath returns the activation symlink path for a release.
func EnableLinkPath(rel *release.Release) string {
	return path.Join(SitesEnabled, rel.ProxyRuleName())
}

// Configure renders the release's routing rule, installs and activates it,
// and reloads nginx. The reload only happens after the full configuration
// passes the syntax check; a broken new rule is backed out so the rules
// that worked before keep working.
func (c *Configurator) Configure(ctx context.Context, rel *release.Release, tgt target.Target) error {
	rule, err := templates.RenderProxySite(tgt.Host, tgt.Port)
	if err != nil {
		return fault.Wrap(fault.Proxy, fault.CodeProxy, err, "rendering proxy rule")
	}

	staged := path.Join(stagingDir, "dockship-"+rel.ProxyRuleName())
	if err := c.Remote.WriteFile(ctx, staged, []byte(rule), security.PermPublicFile); err != nil {
		return fault.Wrap(fault.Proxy, fault.CodeProxy, err, "staging proxy rule")
	}

	rulePath := RulePath(rel)
	mode := fmt.Sprintf("%04o", uint32(security.PermPublicFile))
	if res, err := c.Remote.Run(ctx, []string{"sudo", "install", "-m", mode, staged, rulePath}); err != nil {
		return fault.Wrap(fault.Proxy, fault.CodeProxy, err,
			"installing proxy rule: %s", resultStderr(res))
	}
	c.Remote.Run(ctx, []string{"rm", "-f", staged})

	linkPath := EnableLinkPath(rel)
	if res, err := c.Remote.Run(ctx, []string{"sudo", "ln", "-sf", rulePath, linkPath}); err != nil {
		return fault.Wrap(fault.Proxy, fault.CodeProxy, err,
			"enabling proxy rule: %s", resultStderr(res))
	}

	if res, err := c.Remote.Run(ctx, []string{"sudo", "nginx", "-t"}); err != nil {
		// Back the new rule out so the previously working configuration
		// stays loadable; nginx is not reloaded on this path.
		c.Remote.Run(ctx, []string{"sudo", "rm", "-f", linkPath, rulePath})
		return fault.Wrap(fault.Proxy, fault.CodeProxy, err,
			"proxy configuration failed validation: %s", resultStderr(res))
	}

	if res, err := c.Remote.Run(ctx, []string{"sudo", "systemctl", "reload", "nginx"}); err != nil {
		return fault.Wrap(fault.Proxy, fault.CodeProxy, err,
			"reloading proxy: %s", resultStderr(res))
	}

	c.Log.Success("proxy rule active", "rule", rulePath, "upstream", tgt.Port)
	return nil
}

// Remove deletes a release's rule definition and enable-link, then reloads
// nginx. Best-effort: absent files are fine, and the reload is attempted
// regardless.
func (c *Configurator) Remove(ctx context.Context, rel *release.Release) {
	c.Remote.Run(ctx, []string{"sudo", "rm", "-f", EnableLinkPath(rel), RulePath(rel)})
	if res, err := c.Remote.Run(ctx, []string{"sudo", "systemctl", "reload", "nginx"}); err != nil {
		c.Log.Info("proxy reload after rule removal failed", "detail", resultStderr(res))
	}
}

func resultStderr(res *transport.Result) string {
	if res == nil {
		return ""
	}
	return strings.TrimSpace(res.Stderr)
}
