// Package logging provides structured, leveled logging for the worker.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with the worker's component/service convention.
type Logger struct {
	zerolog.Logger
	component string
}

// Level mirrors the KIRO_MEMORY_LOG_LEVEL values.
type Level string

const (
	LevelDebug  Level = "DEBUG"
	LevelInfo   Level = "INFO"
	LevelWarn   Level = "WARN"
	LevelError  Level = "ERROR"
	LevelSilent Level = "SILENT"
)

func (l Level) zerologLevel() zerolog.Level {
	switch strings.ToUpper(string(l)) {
	case string(LevelDebug):
		return zerolog.DebugLevel
	case string(LevelWarn):
		return zerolog.WarnLevel
	case string(LevelError):
		return zerolog.ErrorLevel
	case string(LevelSilent):
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// New creates a logger writing JSON lines to w, named after component.
func New(component string, level Level, w io.Writer) *Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	base := zerolog.New(w).With().Timestamp().Str("component", component).Logger()
	base = base.Level(level.zerologLevel())
	return &Logger{Logger: base, component: component}
}

// NewDaily creates a logger that writes to both stdout and a daily-rotated
// file under <dataDir>/logs/kiro-memory-YYYY-MM-DD.log.
func NewDaily(component string, level Level, dataDir string) (*Logger, func() error, error) {
	logsDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, nil, err
	}
	name := "kiro-memory-" + time.Now().Format("2006-01-02") + ".log"
	f, err := os.OpenFile(filepath.Join(logsDir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	w := io.MultiWriter(os.Stdout, f)
	return New(component, level, w), f.Close, nil
}

// With returns a child logger scoped to a sub-component, e.g. "store.migrate".
func (l *Logger) With(sub string) *Logger {
	child := l.Logger.With().Str("component", l.component+"."+sub).Logger()
	return &Logger{Logger: child, component: l.component + "." + sub}
}

// WarnFallback emits a single "planned optimization fell back" warning,
// tagged with the caller's file:line.
func (l *Logger) WarnFallback(callerFileLine, reason string, err error) {
	ev := l.Warn().Str("caller", callerFileLine).Str("reason", reason)
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("fell back to degraded path")
}
