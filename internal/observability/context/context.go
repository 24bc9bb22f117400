// Package context carries request-scoped identifiers used by logs and spans.
package context

import (
	"context"
	"strings"
)

type requestIDKey struct{}
type eventIDKey struct{}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

// WithEventID tags the context with the provider event being processed.
func WithEventID(ctx context.Context, eventID string) context.Context {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return ctx
	}
	return context.WithValue(ctx, eventIDKey{}, eventID)
}

func EventIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(eventIDKey{}).(string)
	return value
}
