package logger

import (
	"sort"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var current atomic.Pointer[zap.Logger]

func init() {
	current.Store(zap.NewNop())
}

// Init installs the JSON production logger. Until Init is called every
// log call is discarded, which keeps tests quiet.
func Init(debug bool) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		l = zap.NewExample()
	}
	current.Store(l)
	Info("logger initialized", nil)
}

// Use replaces the active logger. Intended for tests that want to
// observe output.
func Use(l *zap.Logger) {
	current.Store(l)
}

func Sync() {
	_ = current.Load().Sync()
}

func Debug(msg string, fields map[string]any) {
	current.Load().Debug(msg, toFields(fields)...)
}

func Info(msg string, fields map[string]any) {
	current.Load().Info(msg, toFields(fields)...)
}

func Warn(msg string, fields map[string]any) {
	current.Load().Warn(msg, toFields(fields)...)
}

func Error(msg string, fields map[string]any) {
	current.Load().Error(msg, toFields(fields)...)
}

func Fatal(msg string, fields map[string]any) {
	current.Load().Fatal(msg, toFields(fields)...)
}

// toFields keeps field order stable so log lines diff cleanly.
func toFields(fields map[string]any) []zap.Field {
	if len(fields) == 0 {
		return nil
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		if err, ok := fields[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}
