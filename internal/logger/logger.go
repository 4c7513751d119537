package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration.
type Config struct {
	LogDir     string
	LogFile    string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	DevMode    bool
	Level      slog.Level
	// UserID tags every record, so logs of several planner instances can
	// share one sink.
	UserID string
	// Console receives the human-readable stream. Defaults to stderr.
	Console io.Writer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogDir:     "./logs",
		LogFile:    "planner.log",
		MaxSizeMB:  20,
		MaxBackups: 3,
		MaxAgeDays: 14,
		DevMode:    true,
		Level:      slog.LevelInfo,
	}
}

// ParseLevel accepts debug, info, warn or error.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// fanout sends each record to every sink that accepts its level. A failing
// sink does not keep the record from the others.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanout) WithGroup(name string) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f fanout) each(fn func(slog.Handler) slog.Handler) fanout {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = fn(h)
	}
	return out
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns the service logger: JSON records to a rolling file under
// LogDir and a readable stream to Console, tint-colored in dev mode. When
// LogDir cannot be created the file sink is skipped and a warning is logged
// to the console instead of failing startup. The Closer flushes the file.
func New(cfg Config) (*slog.Logger, io.Closer) {
	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}

	var sinks fanout
	if cfg.DevMode {
		sinks = append(sinks, tint.NewHandler(console, &tint.Options{Level: cfg.Level, TimeFormat: "15:04:05"}))
	} else {
		sinks = append(sinks, slog.NewTextHandler(console, &slog.HandlerOptions{Level: cfg.Level}))
	}

	var closer io.Closer = nopCloser{}
	dirErr := os.MkdirAll(cfg.LogDir, 0o755)
	if dirErr == nil {
		file := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, cfg.LogFile),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			LocalTime:  true,
		}
		sinks = append(sinks, slog.NewJSONHandler(file, &slog.HandlerOptions{Level: cfg.Level}))
		closer = file
	}

	log := slog.New(sinks)
	if cfg.UserID != "" {
		log = log.With(slog.String("user_id", cfg.UserID))
	}
	if dirErr != nil {
		log.Warn("file logging disabled", slog.String("dir", cfg.LogDir), slog.String("error", dirErr.Error()))
	}
	return log, closer
}

// Component returns a child logger tagged with the component name.
func Component(l *slog.Logger, name string) *slog.Logger {
	return l.With(slog.String("component", name))
}
