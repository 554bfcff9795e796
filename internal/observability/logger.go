package observability

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
)

// basic global logger, JSON to stdout. Replaced once by Init.
var logger atomic.Pointer[zap.SugaredLogger]

func init() {
	l, err := newZap("info")
	if err != nil {
		l = zap.NewNop()
	}
	logger.Store(l.Sugar())
}

func newZap(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// Init rebuilds the global logger at the given level ("debug", "info", ...).
func Init(level string) error {
	l, err := newZap(level)
	if err != nil {
		return err
	}
	logger.Store(l.Sugar())
	return nil
}

// SetLogger swaps the global logger. Tests use it with zap.NewNop().
func SetLogger(l *zap.Logger) {
	logger.Store(l.Sugar())
}

// Sync flushes buffered log entries.
func Sync() {
	_ = logger.Load().Sync()
}

func Logger() *zap.SugaredLogger {
	return logger.Load()
}

// WithFields returns a logger with additional fields.
func WithFields(kv ...any) *zap.SugaredLogger {
	return logger.Load().With(kv...)
}

// WithRequestID stores a request_id in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// RequestID returns the request_id stored in ctx, if any.
func RequestID(ctx context.Context) string {
	reqID, _ := ctx.Value(ctxKeyRequestID).(string)
	return reqID
}

// LoggerFromContext adds request_id if present.
func LoggerFromContext(ctx context.Context) *zap.SugaredLogger {
	reqID := RequestID(ctx)
	if reqID == "" {
		return logger.Load()
	}
	return logger.Load().With("request_id", reqID)
}
