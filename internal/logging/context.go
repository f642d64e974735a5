package logging

import "context"

// contextKey type for context value keys
type contextKey string

const correlationIDKey contextKey = "correlation_id"

// WithCorrelationID adds the request correlation ID to ctx
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID retrieves the correlation ID from ctx, empty if absent
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}
