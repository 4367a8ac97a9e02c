package logger

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

var base atomic.Pointer[zap.Logger]

func init() {
	l, err := New("info")
	if err != nil {
		l = zap.NewNop()
	}
	base.Store(l)
}

// New builds a JSON production logger at the given level.
func New(level string) (*zap.Logger, error) {
	parsed, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true

	l, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return l, nil
}

// SetLevel replaces the process logger with one at the given level
func SetLevel(level string) error {
	l, err := New(level)
	if err != nil {
		return err
	}
	Replace(l)
	return nil
}

// Replace swaps the process logger. Tests use it with zap.NewNop or an observer core.
func Replace(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	base.Store(l)
}

// Base returns the process logger.
func Base() *zap.Logger {
	return base.Load()
}

// NewLogger creates a new logger with the given component name
func NewLogger(name string) *zap.SugaredLogger {
	return Base().With(zap.String("component", name)).Sugar()
}

// Slog adapts the process logger for libraries that log through log/slog.
func Slog(name string) *slog.Logger {
	return slog.New(zapslog.NewHandler(Base().Core(), zapslog.WithName(name)))
}

// Sync flushes buffered entries.
func Sync() {
	_ = Base().Sync()
}

func parseLevel(level string) (zapcore.Level, error) {
	var parsed zapcore.Level
	normalized := strings.ToLower(strings.TrimSpace(level))
	if normalized == "" {
		normalized = "info"
	}
	if err := parsed.UnmarshalText([]byte(normalized)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return parsed, nil
}
