package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Options selects the level and format of the process logger.
type Options struct {
	Level string
	JSON  bool
}

var def atomic.Value

func init() {
	def.Store(newLogger(os.Stderr, Options{Level: "info"}))
}

// Configure replaces the process logger. It also becomes slog's default so
// packages that log through slog directly end up in the same place.
func Configure(opts Options) {
	configure(os.Stderr, opts)
}

func configure(w io.Writer, opts Options) {
	l := newLogger(w, opts)
	def.Store(l)
	slog.SetDefault(l)
}

// L returns the current process logger.
func L() *slog.Logger {
	return def.Load().(*slog.Logger)
}

func newLogger(w io.Writer, opts Options) *slog.Logger {
	cfg := &slog.HandlerOptions{Level: parseLevel(opts.Level)}
	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(w, cfg)
	} else {
		h = slog.NewTextHandler(w, cfg)
	}
	return slog.New(h)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
