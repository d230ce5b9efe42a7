// Package deploy stops the previous instance of a release, ships the
// working copy and starts the new instance.
package deploy

import (
	"context"
	"fmt"
	"strings"

	"dockship/internal/fault"
	"dockship/internal/logging"
	"dockship/internal/release"
	"dockship/internal/transport"
	"dockship/pkg/cmdutil"
)

// Deployer runs the release rollout on the target host.
type Deployer struct {
	Remote transport.Remote
	Log    *logging.Logger
}

// Deploy replaces whatever instance of the release is running with a fresh
// one built from the transferred working copy. Stopping the previous
// instance is best-effort; everything after it is not.
func (d *Deployer) Deploy(ctx context.Context, rel *release.Release, mode release.Mode, port int) error {
	d.stopPrevious(ctx, rel, mode)

	d.Log.Info("transferring working copy", "from", rel.WorkDir, "to", rel.RemotePath)
	if err := d.Remote.Copy(ctx, rel.WorkDir, rel.RemotePath); err != nil {
		return fault.Wrap(fault.Startup, fault.CodeStartup, err, "transfer failed")
	}

	if err := d.start(ctx, rel, mode, port); err != nil {
		return err
	}

	if err := d.confirmRunning(ctx, rel, mode); err != nil {
		return err
	}

	d.Log.Success("instance running", "release", rel.Name, "mode", mode.String())
	return nil
}

// stopPrevious converges the previous instance to absent. Nothing running
// under the release name is the common case on first deploys and is not an
// error.
func (d *Deployer) stopPrevious(ctx context.Context, rel *release.Release, mode release.Mode) {
	for _, argv := range StopCommands(rel, mode) {
		if res, err := d.Remote.Run(ctx, argv); err != nil {
			d.Log.Info("no previous instance to stop",
				"command", argv[0], "detail", resultStderr(res))
		}
	}
}

func (d *Deployer) start(ctx context.Context, rel *release.Release, mode release.Mode, port int) error {
	for _, argv := range StartCommands(rel, mode, port) {
		d.Log.Info("starting instance", "command", cmdutil.FormatCommand(argv))
		if res, err := d.Remote.Run(ctx, argv); err != nil {
			return fault.Wrap(fault.Startup, fault.CodeStartup, err,
				"%s failed: %s", cmdutil.FormatCommand(argv[:2]), resultStderr(res))
		}
	}
	return nil
}

// confirmRunning verifies the expected container or stack is observably up
// before the proxy is pointed at it.
func (d *Deployer) confirmRunning(ctx context.Context, rel *release.Release, mode release.Mode) error {
	res, err := d.Remote.Run(ctx, PsCommand(rel, mode))
	if err != nil {
		return fault.Wrap(fault.Startup, fault.CodeStartup, err, "could not inspect running instances")
	}
	if strings.TrimSpace(res.Stdout) == "" {
		return fault.New(fault.Startup, fault.CodeStartup,
			"instance %s not running after start", rel.Name)
	}
	return nil
}

func resultStderr(res *transport.Result) string {
	if res == nil {
		return ""
	}
	return strings.TrimSpace(res.Stderr)
}

// StopCommands builds the argv sequence that removes the previous instance.
func StopCommands(rel *release.Release, mode release.Mode) [][]string {
	if mode == release.ComposeStack {
		return [][]string{
			{"docker", "compose", "--project-directory", rel.RemotePath, "down", "--remove-orphans"},
		}
	}
	return [][]string{
		{"docker", "rm", "-f", rel.Name},
	}
}

// StartCommands builds the argv sequence that builds and starts the new
// instance. Single containers bind to the loopback interface only; the
// proxy is the sole public entry point.
func StartCommands(rel *release.Release, mode release.Mode, port int) [][]string {
	if mode == release.ComposeStack {
		return [][]string{
			{"docker", "compose", "--project-directory", rel.RemotePath, "up", "-d", "--build", "--force-recreate"},
		}
	}
	return [][]string{
		{"docker", "build", "-t", rel.ImageTag(), rel.RemotePath},
		{"docker", "run", "-d",
			"--name", rel.Name,
			"--restart", "unless-stopped",
			"-p", fmt.Sprintf("127.0.0.1:%d:%d", port, port),
			rel.ImageTag()},
	}
}

// PsCommand builds the argv that lists the release's running instance.
// Empty output means nothing is running.
func PsCommand(rel *release.Release, mode release.Mode) []string {
	if mode == release.ComposeStack {
		return []string{"docker", "compose", "--project-directory", rel.RemotePath, "ps", "--status", "running", "-q"}
	}
	return []string{"docker", "ps", "-q", "--filter", "name=^" + rel.Name + "$"}
}
