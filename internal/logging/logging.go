// Package logging builds the process logger. Records are JSON lines by default,
// written to stdout and, when a file path is configured, appended to that file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Field names shared by every conversation-scoped record.
const (
	FieldUserID    = "user_id"
	FieldEventType = "event_type"
	FieldRequestID = "request_id"
)

type Options struct {
	Level    string
	Format   string // json or console
	FilePath string
}

// New returns a logger plus a close func for the optional file sink.
func New(opts Options) (zerolog.Logger, func() error, error) {
	level := zerolog.InfoLevel
	if raw := strings.TrimSpace(opts.Level); raw != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(raw))
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("invalid log level '%s': %w", opts.Level, err)
		}
		level = parsed
	}
	zerolog.TimeFieldFormat = time.RFC3339

	var stdout io.Writer = os.Stdout
	if strings.ToLower(opts.Format) == "console" {
		stdout = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	closeFn := func() error { return nil }
	out := stdout
	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0o755); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to create logs directory: %w", err)
		}
		f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to open log file '%s': %w", opts.FilePath, err)
		}
		out = zerolog.MultiLevelWriter(stdout, f)
		closeFn = f.Close
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return logger, closeFn, nil
}

// ForUser scopes a logger to one user and one event type.
func ForUser(l zerolog.Logger, userID int64, eventType string) *zerolog.Logger {
	scoped := l.With().Int64(FieldUserID, userID).Str(FieldEventType, eventType).Logger()
	return &scoped
}
