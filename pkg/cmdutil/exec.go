package cmdutil

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/kballard/go-shellquote"
)

// ExecOptions configures command execution.
type ExecOptions struct {
	// Dir is the working directory for the command.
	Dir string

	// Timeout is the maximum execution time.
	// If zero, no timeout is applied.
	Timeout time.Duration

	// Env contains environment variables for the command.
	// Each entry should be in the form "KEY=value".
	Env []string
}

// Result contains the result of a command execution.
type Result struct {
	// Stdout is the standard output.
	Stdout []byte

	// Stderr is the standard error.
	Stderr []byte

	// ExitCode is the exit code of the command.
	ExitCode int

	// Duration is how long the command took to execute.
	Duration time.Duration
}

// Run executes a command given as an argv vector. The command never goes
// through a shell, so operator-supplied values cannot inject extra commands.
// A non-zero exit is returned both in the result and as an error.
func Run(ctx context.Context, opts ExecOptions, argv []string) (*Result, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env

	start := time.Now()

	var result Result
	var err error
	result.Stdout, err = cmd.Output()
	if exitErr, ok := err.(*exec.ExitError); ok {
		result.Stderr = exitErr.Stderr
	}
	result.Duration = time.Since(start)

	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		return &result, fmt.Errorf("command failed: %w", err)
	}
	return &result, nil
}

// RunWithTimeout executes a command with a timeout.
// This is a convenience wrapper around Run.
func RunWithTimeout(ctx context.Context, workDir string, timeout time.Duration, argv []string) (*Result, error) {
	return Run(ctx, ExecOptions{Dir: workDir, Timeout: timeout}, argv)
}

// FormatCommand formats an argv vector into a readable string for logging.
// Example: ["git", "commit", "-m", "my message"] -> "git commit -m 'my message'"
func FormatCommand(argv []string) string {
	if len(argv) == 0 {
		return "<empty command>"
	}
	return shellquote.Join(argv...)
}
