// Package pipeline wires the stages together and runs them in order.
//
// The order is load-bearing: the old instance must stop before the new one
// starts (port conflict), and the proxy must only reload once the new
// instance is confirmed running. Every stage gates the next; the first
// failing stage ends the run.
package pipeline

import (
	"context"
	"net/http"
	"time"

	"dockship/internal/cleanup"
	"dockship/internal/deploy"
	"dockship/internal/fault"
	"dockship/internal/history"
	"dockship/internal/input"
	"dockship/internal/logging"
	"dockship/internal/prepare"
	"dockship/internal/proxy"
	"dockship/internal/release"
	"dockship/internal/security"
	"dockship/internal/source"
	"dockship/internal/target"
	"dockship/internal/transport"
	"dockship/internal/validate"
)

// Pipeline runs the deployment stages against one target.
type Pipeline struct {
	Log *logging.Logger

	// LocalRoot is the directory local working copies live under.
	LocalRoot string

	// History records runs when non-nil. Off by default; enabling it is
	// the only thing that persists state between runs besides logs.
	History *history.Store

	// Local runs local commands. Nil selects the real local runner.
	Local transport.Runner

	// Connect opens the remote channel. Nil selects SSH.
	Connect func(ctx context.Context, tgt target.Target) (transport.Remote, error)

	// Client issues the external validation probe. Nil selects the
	// validator's default.
	Client *http.Client

	// Preflight overrides the source stage's repository access check.
	Preflight func(ctx context.Context, repoURL, token string) error
}

// Deploy runs the full pipeline: source, prepare, deploy, proxy, validate.
func (p *Pipeline) Deploy(ctx context.Context, in input.Inputs) (err error) {
	rel := release.New(in.RepoURL, in.Branch, p.LocalRoot)
	tgt := in.Target()
	started := time.Now()
	mode := release.ModeUnknown

	defer func() { p.record("deploy", rel, tgt, mode, started, err) }()

	if err = checkRelease(rel); err != nil {
		return err
	}

	p.Log.Info("starting deployment", "release", rel.Name, "branch", rel.Branch, "host", tgt.Host)

	src := &source.Stage{Runner: p.local(), Log: p.Log, Preflight: p.Preflight}
	mode, err = src.Obtain(ctx, rel, in.Token)
	if err != nil {
		return err
	}

	remote, err := p.connect(ctx, tgt)
	if err != nil {
		return err
	}
	defer remote.Close()

	prep := &prepare.Preparer{Remote: remote, Log: p.Log}
	if err = prep.Probe(ctx); err != nil {
		return err
	}
	if err = prep.Prepare(ctx, rel, mode); err != nil {
		return err
	}

	dep := &deploy.Deployer{Remote: remote, Log: p.Log}
	if err = dep.Deploy(ctx, rel, mode, tgt.Port); err != nil {
		return err
	}

	cfg := &proxy.Configurator{Remote: remote, Log: p.Log}
	if err = cfg.Configure(ctx, rel, tgt); err != nil {
		return err
	}

	val := &validate.Validator{Remote: remote, Log: p.Log, Client: p.Client}
	if err = val.Validate(ctx, tgt); err != nil {
		return err
	}

	p.Log.Success("deployment complete", "release", rel.Name, "host", tgt.Host)
	return nil
}

// Cleanup runs the teardown path instead of the pipeline.
func (p *Pipeline) Cleanup(ctx context.Context, in input.Inputs) (err error) {
	rel := release.New(in.RepoURL, in.Branch, p.LocalRoot)
	tgt := in.Target()
	started := time.Now()

	defer func() { p.record("cleanup", rel, tgt, release.ModeUnknown, started, err) }()

	if err = checkRelease(rel); err != nil {
		return err
	}

	p.Log.Info("starting cleanup", "release", rel.Name, "host", tgt.Host)

	remote, err := p.connect(ctx, tgt)
	if err != nil {
		return err
	}
	defer remote.Close()

	prep := &prepare.Preparer{Remote: remote, Log: p.Log}
	if err = prep.Probe(ctx); err != nil {
		return err
	}

	cln := &cleanup.Cleaner{
		Remote: remote,
		Proxy:  &proxy.Configurator{Remote: remote, Log: p.Log},
		Log:    p.Log,
	}
	return cln.Cleanup(ctx, rel)
}

// checkRelease rejects descriptors whose derived name could not namespace
// the remote artifacts. The name becomes the remote directory, the proxy
// rule filename and the container name; a traversal like ".." would point
// every one of those outside the deployment root. Inputs are validated
// before they get here in CLI mode, but webhook-driven runs enter directly.
func checkRelease(rel *release.Release) error {
	if err := security.ValidateReleaseName(rel.Name); err != nil {
		return fault.Wrap(fault.Input, fault.CodeMissingRepoURL, err,
			"repository URL %q derives an unusable release name", rel.RepoURL)
	}
	return nil
}

func (p *Pipeline) local() transport.Runner {
	if p.Local != nil {
		return p.Local
	}
	return &transport.Local{}
}

func (p *Pipeline) connect(ctx context.Context, tgt target.Target) (transport.Remote, error) {
	if p.Connect != nil {
		return p.Connect(ctx, tgt)
	}
	remote, err := transport.Connect(ctx, tgt.Host, tgt.User, tgt.KeyPath, transport.DefaultConnectTimeout)
	if err != nil {
		return nil, fault.Wrap(fault.Connectivity, fault.CodeConnectivity, err,
			"cannot reach %s", tgt.Host)
	}
	return remote, nil
}

func (p *Pipeline) record(action string, rel *release.Release, tgt target.Target,
	mode release.Mode, started time.Time, err error) {
	if p.History == nil {
		return
	}
	run := history.Run{
		Release:  rel.Name,
		Branch:   rel.Branch,
		Host:     tgt.Host,
		Mode:     mode.String(),
		Action:   action,
		ExitCode: fault.ExitCode(err),
		Started:  started,
		Finished: time.Now(),
	}
	if err != nil {
		run.Error = err.Error()
	}
	if recErr := p.History.Record(run); recErr != nil {
		p.Log.Info("history record failed", "error", recErr.Error())
	}
}
