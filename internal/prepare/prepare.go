// Package prepare brings the target host to a deployable state. Every step
// checks before it changes, so reruns against an already-prepared host are
// no-ops.
package prepare

import (
	"context"
	"strings"

	"dockship/internal/fault"
	"dockship/internal/logging"
	"dockship/internal/release"
	"dockship/internal/transport"
)

// Packages installed on the host when missing.
const (
	dockerPackage        = "docker.io"
	composePluginPackage = "docker-compose-v2"
	nginxPackage         = "nginx"
)

// Preparer runs environment setup on the target host.
type Preparer struct {
	Remote transport.Runner
	Log    *logging.Logger
}

// Probe verifies the host is reachable and commands execute before any
// state-changing step runs.
func (p *Preparer) Probe(ctx context.Context) error {
	res, err := p.Remote.Run(ctx, []string{"true"})
	if err != nil {
		return fault.Wrap(fault.Connectivity, fault.CodeConnectivity, err, "host unreachable")
	}
	if !res.OK() {
		return fault.New(fault.Connectivity, fault.CodeConnectivity,
			"connectivity probe failed: %s", res.Stderr)
	}
	p.Log.Info("host reachable")
	return nil
}

// Prepare installs the container runtime and the reverse proxy, starts
// their services and creates the deployment directory.
func (p *Preparer) Prepare(ctx context.Context, rel *release.Release, mode release.Mode) error {
	if err := p.ensureDocker(ctx); err != nil {
		return err
	}
	if mode == release.ComposeStack {
		if err := p.ensureComposePlugin(ctx); err != nil {
			return err
		}
	}
	if err := p.ensureNginx(ctx); err != nil {
		return err
	}
	if err := p.ensureCurl(ctx); err != nil {
		return err
	}
	if err := p.ensureDockerGroup(ctx); err != nil {
		return err
	}
	if err := p.ensureService(ctx, "docker"); err != nil {
		return err
	}
	if err := p.ensureService(ctx, "nginx"); err != nil {
		return err
	}
	if err := p.ensureDirectory(ctx, rel.RemotePath); err != nil {
		return err
	}

	p.Log.Success("host prepared", "path", rel.RemotePath)
	return nil
}

// ensureDocker installs the container runtime unless it is already on PATH.
func (p *Preparer) ensureDocker(ctx context.Context) error {
	if p.commandExists(ctx, "docker") {
		p.Log.Info("docker already installed")
		return nil
	}
	p.Log.Info("installing docker", "package", dockerPackage)
	return p.aptInstall(ctx, dockerPackage)
}

// ensureComposePlugin makes `docker compose` available. Only called for
// compose deployments; single-container hosts never pull the plugin in.
func (p *Preparer) ensureComposePlugin(ctx context.Context) error {
	if res, err := p.Remote.Run(ctx, []string{"docker", "compose", "version"}); err == nil && res.OK() {
		p.Log.Info("compose plugin already installed")
		return nil
	}
	p.Log.Info("installing compose plugin", "package", composePluginPackage)
	return p.aptInstall(ctx, composePluginPackage)
}

func (p *Preparer) ensureNginx(ctx context.Context) error {
	if p.packageInstalled(ctx, nginxPackage) {
		p.Log.Info("nginx already installed")
		return nil
	}
	p.Log.Info("installing nginx", "package", nginxPackage)
	return p.aptInstall(ctx, nginxPackage)
}

// ensureCurl installs curl for the validation stage's internal HTTP probe.
func (p *Preparer) ensureCurl(ctx context.Context) error {
	if p.commandExists(ctx, "curl") {
		return nil
	}
	p.Log.Info("installing curl")
	return p.aptInstall(ctx, "curl")
}

// ensureDockerGroup adds the deploy user to the docker group unless it is
// already a member. Takes effect on the next session, which is fine here:
// every remote command opens a fresh session.
func (p *Preparer) ensureDockerGroup(ctx context.Context) error {
	res, err := p.Remote.Run(ctx, []string{"id", "-nG"})
	if err != nil {
		return fault.Wrap(fault.Prepare, fault.CodePrepare, err, "failed to list remote groups")
	}
	for _, group := range strings.Fields(res.Stdout) {
		if group == "docker" {
			return nil
		}
	}

	whoami, err := p.Remote.Run(ctx, []string{"id", "-un"})
	if err != nil {
		return fault.Wrap(fault.Prepare, fault.CodePrepare, err, "failed to resolve remote user")
	}
	user := strings.TrimSpace(whoami.Stdout)

	p.Log.Info("adding user to docker group", "user", user)
	res, err = p.Remote.Run(ctx, []string{"sudo", "usermod", "-aG", "docker", user})
	if err != nil {
		return fault.Wrap(fault.Prepare, fault.CodePrepare, err,
			"failed to add %s to docker group: %s", user, resultStderr(res))
	}
	return nil
}

// ensureService enables and starts a systemd unit. `enable --now` is
// idempotent for already-running units.
func (p *Preparer) ensureService(ctx context.Context, unit string) error {
	res, err := p.Remote.Run(ctx, []string{"sudo", "systemctl", "enable", "--now", unit})
	if err != nil {
		return fault.Wrap(fault.Prepare, fault.CodePrepare, err,
			"failed to start %s: %s", unit, resultStderr(res))
	}
	return nil
}

// ensureDirectory creates the deployment directory and hands it to the
// deploy user so file sync needs no privilege. The user is resolved with
// id -un rather than left to remote shell expansion.
func (p *Preparer) ensureDirectory(ctx context.Context, dir string) error {
	res, err := p.Remote.Run(ctx, []string{"sudo", "mkdir", "-p", dir})
	if err != nil {
		return fault.Wrap(fault.Prepare, fault.CodePrepare, err,
			"failed to create %s: %s", dir, resultStderr(res))
	}

	res, err = p.Remote.Run(ctx, []string{"id", "-un"})
	if err != nil {
		return fault.Wrap(fault.Prepare, fault.CodePrepare, err, "failed to resolve remote user")
	}
	user := strings.TrimSpace(res.Stdout)

	res, err = p.Remote.Run(ctx, []string{"sudo", "chown", "-R", user, dir})
	if err != nil {
		return fault.Wrap(fault.Prepare, fault.CodePrepare, err,
			"failed to chown %s: %s", dir, resultStderr(res))
	}
	return nil
}

func (p *Preparer) aptInstall(ctx context.Context, pkg string) error {
	if res, err := p.Remote.Run(ctx, []string{"sudo", "apt-get", "update", "-qq"}); err != nil {
		return fault.Wrap(fault.Prepare, fault.CodePrepare, err,
			"apt-get update failed: %s", resultStderr(res))
	}
	res, err := p.Remote.Run(ctx, []string{
		"sudo", "DEBIAN_FRONTEND=noninteractive", "apt-get", "install", "-y", "-qq", pkg,
	})
	if err != nil {
		return fault.Wrap(fault.Prepare, fault.CodePrepare, err,
			"failed to install %s: %s", pkg, resultStderr(res))
	}
	p.Log.Info("package installed", "package", pkg)
	return nil
}

func (p *Preparer) commandExists(ctx context.Context, name string) bool {
	res, err := p.Remote.Run(ctx, []string{"command", "-v", name})
	return err == nil && res.OK()
}

func (p *Preparer) packageInstalled(ctx context.Context, pkg string) bool {
	res, err := p.Remote.Run(ctx, []string{"dpkg", "-s", pkg})
	return err == nil && res.OK()
}

func resultStderr(res *transport.Result) string {
	if res == nil {
		return ""
	}
	return strings.TrimSpace(res.Stderr)
}
