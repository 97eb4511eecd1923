package logger

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// Config selects level, encoding and the fields stamped on every entry.
// It is filled from config.LoggerConfig without importing that package.
type Config struct {
	Level    string
	Encoding string
	// Service and Env are attached to every entry when set.
	Service string
	Env     string
	// Output defaults to stdout.
	Output zapcore.WriteSyncer
}

// New builds the service logger. An unknown level falls back to info.
func New(cfg Config) (*zap.Logger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	level := zapcore.InfoLevel
	if err := level.Set(cfg.Level); err != nil {
		level = zapcore.InfoLevel
	}

	var encoder zapcore.Encoder
	switch cfg.Encoding {
	case "console":
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	default:
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	out := cfg.Output
	if out == nil {
		out = zapcore.Lock(os.Stdout)
	}

	opts := []zap.Option{zap.AddCaller()}
	var fields []zap.Field
	if cfg.Service != "" {
		fields = append(fields, zap.String("service", cfg.Service))
	}
	if cfg.Env != "" {
		fields = append(fields, zap.String("env", cfg.Env))
	}
	if len(fields) > 0 {
		opts = append(opts, zap.Fields(fields...))
	}

	return zap.New(zapcore.NewCore(encoder, out, level), opts...), nil
}

// ContextWithRequestID attaches a request ID to the provided context.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request ID stored in ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	reqID, _ := ctx.Value(requestIDKey).(string)
	return reqID
}

// WithRequestID enriches the logger with the request ID stored in the context.
func WithRequestID(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil || base == nil {
		return base
	}
	if reqID := RequestIDFromContext(ctx); reqID != "" {
		return base.With(zap.String("request_id", reqID))
	}
	return base
}
