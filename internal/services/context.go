package services

import "context"

type contextKey string

const (
	postIDKey    contextKey = "post_id"
	platformKey  contextKey = "platform"
	cycleIDKey   contextKey = "cycle_id"
	requestIDKey contextKey = "request_id"
)

// WithPostID annotates context with the queued post identifier.
func WithPostID(ctx context.Context, id string) context.Context {
	return withString(ctx, postIDKey, id)
}

// PostIDFromContext extracts the queued post identifier if present.
func PostIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, postIDKey)
}

// WithPlatform annotates context with the destination platform.
func WithPlatform(ctx context.Context, platform string) context.Context {
	return withString(ctx, platformKey, platform)
}

// PlatformFromContext returns the destination platform if present.
func PlatformFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, platformKey)
}

// WithCycleID annotates context with the poll cycle identifier.
func WithCycleID(ctx context.Context, id string) context.Context {
	return withString(ctx, cycleIDKey, id)
}

// CycleIDFromContext returns the poll cycle identifier if present.
func CycleIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, cycleIDKey)
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, requestIDKey)
}

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
