package gateway

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

// ContextKeyRequestID is the context key for the request ID (for tracing).
const ContextKeyRequestID contextKey = "request_id"

// WithRequestID sets the request ID sent with gateway calls made under ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext returns the request ID carried by ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	requestID, _ := ctx.Value(ContextKeyRequestID).(string)
	return requestID
}

func requestIDFor(ctx context.Context) string {
	if id := RequestIDFromContext(ctx); id != "" {
		return id
	}
	return uuid.New().String()
}
