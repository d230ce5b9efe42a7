// Package cleanup tears down a previous deployment's remote resources.
//
// Every step converges to "absent": stopping an instance that is not
// running, deleting a path that does not exist and removing a rule that
// was never installed are all successes. Running it twice leaves the same
// end state.
package cleanup

import (
	"context"
	"strings"

	"dockship/internal/deploy"
	"dockship/internal/logging"
	"dockship/internal/proxy"
	"dockship/internal/release"
	"dockship/internal/transport"
)

// Cleaner removes a release's remote footprint.
type Cleaner struct {
	Remote transport.Remote
	Proxy  *proxy.Configurator
	Log    *logging.Logger
}

// Cleanup stops the release's instance, deletes its deployment directory
// and removes its proxy rule. Absence of any of those is not an error.
func (c *Cleaner) Cleanup(ctx context.Context, rel *release.Release) error {
	for _, mode := range c.modes(rel) {
		for _, argv := range deploy.StopCommands(rel, mode) {
			if res, err := c.Remote.Run(ctx, argv); err != nil {
				c.Log.Info("nothing to stop", "mode", mode.String(), "detail", resultStderr(res))
			}
		}
	}

	if res, err := c.Remote.Run(ctx, []string{"sudo", "rm", "-rf", rel.RemotePath}); err != nil {
		c.Log.Info("deployment path removal skipped", "path", rel.RemotePath, "detail", resultStderr(res))
	}

	c.Proxy.Remove(ctx, rel)

	c.Log.Success("cleanup complete", "release", rel.Name)
	return nil
}

// modes picks which stop sequences to issue. With a local working copy the
// mode is detected the same way deployment detects it; without one both
// sequences run, since stopping an absent instance costs nothing.
func (c *Cleaner) modes(rel *release.Release) []release.Mode {
	if mode, err := release.DetectMode(rel.WorkDir); err == nil {
		return []release.Mode{mode}
	}
	return []release.Mode{release.ComposeStack, release.SingleContainer}
}

func resultStderr(res *transport.Result) string {
	if res == nil {
		return ""
	}
	return strings.TrimSpace(res.Stderr)
}
