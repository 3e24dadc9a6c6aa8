package services

import "context"

type contextKey string

const (
	candidateIDKey contextKey = "candidate_id"
	cycleIDKey     contextKey = "cycle_id"
	requestIDKey   contextKey = "request_id"
)

// WithCandidateID annotates context with the candidate identifier.
func WithCandidateID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, candidateIDKey, id)
}

// CandidateIDFromContext extracts the candidate identifier if present.
func CandidateIDFromContext(ctx context.Context) (int64, bool) {
	switch val := ctx.Value(candidateIDKey).(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}

// WithCycleID annotates context with the publish cycle identifier.
func WithCycleID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, cycleIDKey, id)
}

// CycleIDFromContext returns the cycle identifier if present.
func CycleIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(cycleIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
