// Package logger wires the process-wide structured logger plus a dedicated
// audit channel. Evidence-bearing events (WORM appends, receipt emission,
// key lifecycle transitions) go to the audit channel so they can be shipped
// and retained independently of operational logs.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Config describes how the application logger should behave.
type Config struct {
	Level       string
	Format      string
	OutputPaths []string
	Audit       AuditConfig
}

// AuditConfig controls audit log output behaviour.
type AuditConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type state struct {
	app     *slog.Logger
	audit   *slog.Logger
	closers []io.Closer
}

var (
	mu      sync.Mutex
	current *state
)

// Init configures the global logger instances. It is single-assignment:
// the first call wins and later calls observe the same instances.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()
	if current != nil {
		return nil
	}

	st := &state{}
	writer, err := st.combineOutputs(cfg.OutputPaths)
	if err != nil {
		st.closeAll()
		return err
	}

	opts := &slog.HandlerOptions{Level: levelFor(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		st.app = slog.New(slog.NewTextHandler(writer, opts))
	} else {
		st.app = slog.New(slog.NewJSONHandler(writer, opts))
	}

	// Audit entries are tagged so they stay identifiable even when the
	// dedicated channel is disabled and they share the application stream.
	st.audit = st.app.With(slog.String("channel", "audit"))
	if cfg.Audit.Enabled {
		if cfg.Audit.Path == "" {
			st.closeAll()
			return errors.New("audit log path cannot be empty when enabled")
		}
		rotator, err := newRotatingWriter(cfg.Audit.Path,
			cfg.Audit.MaxSizeMB, cfg.Audit.MaxBackups, cfg.Audit.MaxAgeDays)
		if err != nil {
			st.closeAll()
			return err
		}
		st.closers = append(st.closers, rotator)
		handler := slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: slog.LevelInfo})
		st.audit = slog.New(handler)
	}

	current = st
	return nil
}

func (st *state) combineOutputs(outputs []string) (io.Writer, error) {
	if len(outputs) == 0 {
		return os.Stdout, nil
	}
	writers := make([]io.Writer, 0, len(outputs))
	for _, out := range outputs {
		switch strings.ToLower(out) {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return nil, fmt.Errorf("create log directory: %w", err)
			}
			file, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", out, err)
			}
			st.closers = append(st.closers, file)
			writers = append(writers, file)
		}
	}
	if len(writers) == 1 {
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

func (st *state) closeAll() {
	for _, closer := range st.closers {
		_ = closer.Close()
	}
	st.closers = nil
}

func levelFor(level string) slog.Level {
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

func active() *state {
	mu.Lock()
	st := current
	mu.Unlock()
	if st != nil {
		return st
	}
	_ = Init(Config{})
	mu.Lock()
	st = current
	mu.Unlock()
	return st
}

// L returns the structured application logger.
func L() *slog.Logger {
	return active().app
}

// Audit returns the audit logger.
func Audit() *slog.Logger {
	return active().audit
}

// Named returns a child logger with the provided component name.
func Named(name string) *slog.Logger {
	return L().WithGroup(name)
}

// Sync flushes and closes any file-backed outputs.
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		return nil
	}
	var err error
	for _, closer := range current.closers {
		err = errors.Join(err, closer.Close())
	}
	current.closers = nil
	return err
}
