// Package logging provides the per-run structured logger.
//
// Every run writes JSON records to stdout and to a timestamped append-only
// log file. Besides the standard levels there is a SUCCESS level used for
// stage completion records.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dockship/internal/security"
)

// LevelSuccess sits between INFO and WARN. It marks a stage or run that
// completed cleanly.
const LevelSuccess = slog.Level(2)

// Logger wraps slog with the SUCCESS level and owns the run log file.
type Logger struct {
	*slog.Logger
	file *os.File
}

// New creates a logger writing to stdout and to a fresh timestamped log
// file under dir. The caller must Close it at the end of the run.
func New(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, security.PermDirectory); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	name := fmt.Sprintf("deploy-%s.log", time.Now().Format("20060102-150405"))
	path := filepath.Join(dir, name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, security.PermLogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &Logger{
		Logger: slog.New(newHandler(io.MultiWriter(os.Stdout, file))),
		file:   file,
	}, nil
}

// NewWithWriter creates a logger writing only to w. Used by tests and by
// callers that manage their own sinks.
func NewWithWriter(w io.Writer) *Logger {
	return &Logger{Logger: slog.New(newHandler(w))}
}

func newHandler(w io.Writer) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelSuccess {
					a.Value = slog.StringValue("SUCCESS")
				}
			}
			return a
		},
	})
}

// Success logs a SUCCESS record.
func (l *Logger) Success(msg string, args ...any) {
	l.Log(context.Background(), LevelSuccess, msg, args...)
}

// Path returns the run log file path, or empty when no file is attached.
func (l *Logger) Path() string {
	if l.file == nil {
		return ""
	}
	return l.file.Name()
}

// Close closes the underlying log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
