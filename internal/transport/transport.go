// Package transport executes commands locally or on the remote host and
// copies files to it. Commands are argv vectors end to end; the remote
// side receives a shellquote-joined string, so operator-supplied values
// can never splice in extra commands.
//
// Transport does not retry anything. Retry and best-effort policy belong
// to the callers.
package transport

import (
	"context"
	"os"
	"time"
)

// Result represents the outcome of running a command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// OK checks if the execution was successful.
func (r *Result) OK() bool {
	return r.ExitCode == 0
}

// Runner executes a single command. Implementations return a non-nil
// Result whenever the command ran at all, along with an error for
// non-zero exits or channel failures.
type Runner interface {
	Run(ctx context.Context, argv []string) (*Result, error)
}

// Copier ships files to the remote host.
type Copier interface {
	// Copy transfers the full tree under localDir to remoteDir,
	// overwriting whatever is there. No exclusion rules.
	Copy(ctx context.Context, localDir, remoteDir string) error

	// WriteFile writes data to a single remote file.
	WriteFile(ctx context.Context, remotePath string, data []byte, perm os.FileMode) error
}

// Remote is the full remote-host capability: command execution plus file
// transfer, backed by one authenticated channel.
type Remote interface {
	Runner
	Copier
	Close() error
}
