package transport

import (
	"context"
	"time"

	"dockship/pkg/cmdutil"
)

// Local runs commands on the operator's machine. Used by the source stage,
// which never touches the remote host.
type Local struct {
	// Dir is the working directory for commands. Empty means the
	// process working directory.
	Dir string

	// Timeout bounds each command. Zero means no bound; git clones of
	// large repositories can legitimately take minutes.
	Timeout time.Duration
}

// Run executes a local command.
func (l *Local) Run(ctx context.Context, argv []string) (*Result, error) {
	res, err := cmdutil.RunWithTimeout(ctx, l.Dir, l.Timeout, argv)
	if res == nil {
		return nil, err
	}
	return &Result{
		Stdout:   string(res.Stdout),
		Stderr:   string(res.Stderr),
		ExitCode: res.ExitCode,
		Duration: res.Duration,
	}, err
}
