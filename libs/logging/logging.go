package logging

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LevelEnv names the variable consulted when no level is passed explicitly.
const LevelEnv = "LOG_LEVEL"

type settings struct {
	level    zapcore.Level
	outputs  []string
	encoding string
	name     string
}

// Option tweaks the logger built by NewLogger.
type Option func(*settings)

// WithLevel overrides the level taken from LOG_LEVEL.
func WithLevel(level zapcore.Level) Option {
	return func(s *settings) { s.level = level }
}

// WithOutputPaths sends entries to the given zap sinks instead of stderr.
func WithOutputPaths(paths ...string) Option {
	return func(s *settings) {
		if len(paths) > 0 {
			s.outputs = paths
		}
	}
}

// WithConsoleEncoding switches from JSON lines to the human readable encoder.
func WithConsoleEncoding() Option {
	return func(s *settings) { s.encoding = "console" }
}

// WithName sets the logger name attached to every entry.
func WithName(name string) Option {
	return func(s *settings) { s.name = name }
}

// ParseLevel maps a level name to a zap level. Unknown or empty names fall back to info.
func ParseLevel(raw string) zapcore.Level {
	var level zapcore.Level
	if err := level.Set(strings.ToLower(strings.TrimSpace(raw))); err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// NewLogger builds a sampled zap logger. Entries go to stderr by default so they stay out of
// command output.
func NewLogger(opts ...Option) (*zap.Logger, error) {
	s := &settings{
		level:    ParseLevel(os.Getenv(LevelEnv)),
		outputs:  []string{"stderr"},
		encoding: "json",
	}
	for _, opt := range opts {
		opt(s)
	}

	logger, err := zap.Config{
		Level: zap.NewAtomicLevelAt(s.level),
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding:         s.encoding,
		EncoderConfig:    encoderConfig(),
		OutputPaths:      s.outputs,
		ErrorOutputPaths: []string{"stderr"},
	}.Build()
	if err != nil {
		return nil, err
	}
	if s.name != "" {
		logger = logger.Named(s.name)
	}
	return logger, nil
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.StacktraceKey = "stack"
	cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339Nano))
	}
	cfg.EncodeDuration = zapcore.StringDurationEncoder
	return cfg
}
