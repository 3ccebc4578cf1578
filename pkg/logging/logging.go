// Package logging builds slog loggers from an explicit Config: named
// formatters, console and rotating file handlers, a root logger and
// per-component loggers with their own levels.
//
// Nothing is configured at import time. Callers build a Registry with
// Setup, hand the named loggers to the components that need them, and Close
// it on exit. If Setup fails, Fallback gives an ERROR-level stderr logger.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// levelAll lets every record through a child handler; filtering happens in
// the per-logger fanout.
const levelAll = slog.Level(math.MinInt32)

// Registry holds the loggers built by Setup.
type Registry struct {
	root    *slog.Logger
	loggers map[string]*slog.Logger
	closers []io.Closer
}

type builtHandler struct {
	handler   slog.Handler
	formatter FormatterConfig
}

// Setup creates log directories, opens handlers and builds the root and
// named loggers described by cfg.
func Setup(cfg Config) (*Registry, error) {
	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}

	reg := &Registry{loggers: make(map[string]*slog.Logger)}
	handlers := make(map[string]builtHandler, len(cfg.Handlers))

	for name, hc := range cfg.Handlers {
		fc, ok := cfg.Formatters[hc.Formatter]
		if !ok && hc.Formatter != "" {
			reg.Close()
			return nil, fmt.Errorf("handler %q: unknown formatter %q", name, hc.Formatter)
		}

		var w io.Writer
		switch hc.Type {
		case HandlerConsole:
			w = console
		case HandlerFile:
			if hc.Filename == "" {
				reg.Close()
				return nil, fmt.Errorf("handler %q: filename is required", name)
			}
			if err := os.MkdirAll(filepath.Dir(hc.Filename), 0o755); err != nil {
				reg.Close()
				return nil, fmt.Errorf("handler %q: failed to create log directory: %w", name, err)
			}
			lj := &lumberjack.Logger{
				Filename:   hc.Filename,
				MaxSize:    hc.MaxSizeMB,
				MaxBackups: hc.MaxBackups,
			}
			reg.closers = append(reg.closers, lj)
			w = lj
		default:
			reg.Close()
			return nil, fmt.Errorf("handler %q: unknown type %q", name, hc.Type)
		}

		handlers[name] = builtHandler{handler: newHandler(w, fc), formatter: fc}
	}

	build := func(name string, lc LoggerConfig) (*slog.Logger, error) {
		level, err := ParseLevel(lc.Level)
		if err != nil {
			return nil, err
		}
		children := make([]slog.Handler, 0, len(lc.Handlers))
		for _, hn := range lc.Handlers {
			bh, ok := handlers[hn]
			if !ok {
				return nil, fmt.Errorf("unknown handler %q", hn)
			}
			h := bh.handler
			if bh.formatter.Name {
				h = h.WithAttrs([]slog.Attr{slog.String("logger", name)})
			}
			children = append(children, h)
		}
		return slog.New(&fanoutHandler{level: level, handlers: children}), nil
	}

	root, err := build("root", cfg.Root)
	if err != nil {
		reg.Close()
		return nil, fmt.Errorf("root logger: %w", err)
	}
	reg.root = root

	for name, lc := range cfg.Loggers {
		l, err := build(name, lc)
		if err != nil {
			reg.Close()
			return nil, fmt.Errorf("logger %q: %w", name, err)
		}
		reg.loggers[name] = l
	}
	return reg, nil
}

func newHandler(w io.Writer, fc FormatterConfig) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     levelAll,
		AddSource: fc.Source,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			if a.Key == slog.TimeKey && !fc.Time {
				return slog.Attr{}
			}
			if a.Key == slog.LevelKey {
				if l, ok := a.Value.Any().(slog.Level); ok && l >= LevelCritical {
					return slog.String(slog.LevelKey, "CRITICAL")
				}
			}
			return a
		},
	}
	if fc.Encoding == EncodingJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Root returns the root logger.
func (r *Registry) Root() *slog.Logger { return r.root }

// Logger returns the named logger, or the root logger for unconfigured names.
func (r *Registry) Logger(name string) *slog.Logger {
	if l, ok := r.loggers[name]; ok {
		return l
	}
	return r.root
}

// Close releases open log files.
func (r *Registry) Close() error {
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c.Close())
	}
	r.closers = nil
	return errors.Join(errs...)
}

// Fallback returns the logger used when Setup fails: ERROR and above to stderr.
func Fallback() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fanoutHandler applies a logger level and forwards records to every child.
type fanoutHandler struct {
	level    slog.Level
	handlers []slog.Handler
}

func (h *fanoutHandler) Enabled(ctx context.Context, l slog.Level) bool {
	if l < h.level {
		return false
	}
	for _, c := range h.handlers {
		if c.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, c := range h.handlers {
		if c.Enabled(ctx, r.Level) {
			errs = append(errs, c.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	children := make([]slog.Handler, len(h.handlers))
	for i, c := range h.handlers {
		children[i] = c.WithAttrs(attrs)
	}
	return &fanoutHandler{level: h.level, handlers: children}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	children := make([]slog.Handler, len(h.handlers))
	for i, c := range h.handlers {
		children[i] = c.WithGroup(name)
	}
	return &fanoutHandler{level: h.level, handlers: children}
}
