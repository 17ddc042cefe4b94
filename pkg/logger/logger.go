// Package logger holds the process-wide zap logger and the context keys that
// tie a log line to a run and a data link.
package logger

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	global *zap.Logger
	once   sync.Once
)

type contextKey string

const (
	runIDKey contextKey = "run_id"
	linkKey  contextKey = "link"
	jobIDKey contextKey = "job_id"
)

// Config selects level, encoding and destination of the global logger.
type Config struct {
	Level       string
	Development bool
	Encoding    string // json or console
	OutputPaths []string
}

// Init builds the global logger. Only the first call has an effect.
func Init(cfg Config) error {
	var err error
	once.Do(func() {
		global, err = newLogger(cfg)
	})
	return err
}

func newLogger(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.MessageKey = "message"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.StringDurationEncoder
	if cfg.Development {
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zcfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Development,
		Encoding:         cfg.Encoding,
		EncoderConfig:    enc,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}
	if zcfg.Encoding == "" {
		zcfg.Encoding = "json"
	}
	if len(zcfg.OutputPaths) == 0 {
		zcfg.OutputPaths = []string{"stdout"}
	}

	l, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return l, nil
}

// Get returns the global logger, initializing it at info level when Init was
// never called.
func Get() *zap.Logger {
	if err := Init(Config{Level: "info"}); err != nil || global == nil {
		l, _ := zap.NewProduction()
		return l
	}
	return global
}

// With returns a child of the global logger.
func With(fields ...zap.Field) *zap.Logger {
	return Get().With(fields...)
}

// FromContext adds the run, link and job ids carried by ctx to base.
func FromContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	var fields []zap.Field
	for _, k := range []contextKey{runIDKey, linkKey, jobIDKey} {
		if v, ok := ctx.Value(k).(string); ok {
			fields = append(fields, zap.String(string(k), v))
		}
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ContextWithRun returns ctx carrying the run id shared by every link.
func ContextWithRun(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// ContextWithLink returns ctx carrying a data link's name and ledger job id.
func ContextWithLink(ctx context.Context, link, jobID string) context.Context {
	ctx = context.WithValue(ctx, linkKey, link)
	return context.WithValue(ctx, jobIDKey, jobID)
}

// Sync flushes the global logger if it was built.
func Sync() error {
	if global == nil {
		return nil
	}
	return global.Sync()
}
