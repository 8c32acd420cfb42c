// Package logging provides structured logging using slog.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	slogmulti "github.com/samber/slog-multi"
)

// Config holds logging configuration.
type Config struct {
	Format string // "json" | "text"
	Level  string // "debug" | "info" | "warn" | "error"
	File   string // optional second sink, always JSON
	UTC    bool   // rewrite record timestamps to UTC
}

// Setup initializes the global slog logger based on configuration. The
// returned closer releases the log file, if any.
func Setup(cfg Config) (io.Closer, error) {
	return setup(cfg, os.Stdout)
}

func setup(cfg Config, console io.Writer) (io.Closer, error) {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}
	if cfg.UTC {
		opts.ReplaceAttr = utcTime
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(console, opts)
	default:
		handler = slog.NewTextHandler(console, opts)
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", cfg.File, err)
		}
		handler = slogmulti.Fanout(handler, slog.NewJSONHandler(f, opts))
		closer = f
	}

	slog.SetDefault(slog.New(handler))
	return closer, nil
}

func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
		return slog.Time(slog.TimeKey, a.Value.Time().UTC())
	}
	return a
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// parseLevel converts a string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// cycleIDKey is the context key for cycle IDs.
type cycleIDKey struct{}

// WithCycleID adds a cycle ID to the context.
func WithCycleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cycleIDKey{}, id)
}

// CycleID retrieves the cycle ID from context.
func CycleID(ctx context.Context) string {
	if id, ok := ctx.Value(cycleIDKey{}).(string); ok {
		return id
	}
	return ""
}

// NewCycleID creates a new unique cycle ID.
func NewCycleID() string {
	return uuid.New().String()
}

// SolutionLogger creates a logger scoped to one solution within a cycle.
func SolutionLogger(ctx context.Context, solution string) *slog.Logger {
	return slog.With(
		"cycle_id", CycleID(ctx),
		"solution", solution,
	)
}

// Component returns a logger with a component name.
func Component(name string) *slog.Logger {
	return slog.With("component", name)
}
