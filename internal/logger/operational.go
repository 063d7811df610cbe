package logger

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewOperationalLog builds the daemon's own slog.Logger: human-readable
// colorized output to stderr via lmittmann/tint (the pattern
// davidolrik-overseer/cmd/root.go uses), duplicated as plain text into a
// size-rotated daemon.log (5 MiB x 7 backups, the role the original
// Python daemon's logging.handlers.RotatingFileHandler played).
//
// configDir is the directory containing daemon.log (spec §3: <root>/.config/pueue/).
func NewOperationalLog(configDir string) (*slog.Logger, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, err
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(configDir, "daemon.log"),
		MaxSize:    5, // MiB
		MaxBackups: 7,
	}

	stderrHandler := tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelInfo})
	fileHandler := slog.NewTextHandler(rotator, &slog.HandlerOptions{Level: slog.LevelDebug})

	return slog.New(multiHandler{stderrHandler, fileHandler}), nil
}

// multiHandler fans a single log record out to every handler in the
// slice, matching the original daemon's stdout+file dual handler setup.
type multiHandler []slog.Handler

func (m multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (m multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (m multiHandler) WithGroup(name string) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithGroup(name)
	}
	return out
}
