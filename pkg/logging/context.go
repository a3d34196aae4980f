package logging

import (
	"context"

	"github.com/rs/zerolog"
)

type requestIDKey struct{}

// WithLogger stores logger in ctx. A nil logger leaves ctx unchanged.
func WithLogger(ctx context.Context, logger *zerolog.Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return logger.WithContext(ctx)
}

// FromContext returns the logger stored in ctx, or a disabled logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

// WithRequestID records the request id in ctx and tags its logger with it.
func WithRequestID(ctx context.Context, id string) context.Context {
	ctx = context.WithValue(ctx, requestIDKey{}, id)
	return with(ctx, "request_id", id)
}

// RequestID returns the id stored by WithRequestID.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithModel tags the context logger with a model identity.
func WithModel(ctx context.Context, identity string) context.Context {
	return with(ctx, "model", identity)
}

// WithRecord tags the context logger with a record primary key.
func WithRecord(ctx context.Context, id string) context.Context {
	return with(ctx, "record_id", id)
}

// WithTransport tags the context logger with "http" or "socket".
func WithTransport(ctx context.Context, transport string) context.Context {
	return with(ctx, "transport", transport)
}

// WithOperation tags the context logger with a blueprint action name.
func WithOperation(ctx context.Context, op string) context.Context {
	return with(ctx, "operation", op)
}

func with(ctx context.Context, key, value string) context.Context {
	logger := FromContext(ctx).With().Str(key, value).Logger()
	return logger.WithContext(ctx)
}
