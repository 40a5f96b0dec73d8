package shared

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"regexp"

	"github.com/google/uuid"
)

// ContextKey is the type of context keys set by the HTTP layer.
type ContextKey string

const (
	// TraceIDKey is the key for the trace ID in the request context
	TraceIDKey ContextKey = "traceID"

	// TraceIDHeader carries a caller-supplied trace ID and echoes it back.
	TraceIDHeader = "X-Request-ID"

	// TraceIDLength is the number of random bytes in a generated trace ID
	TraceIDLength = 16 // 32 hex characters
)

// acceptedTraceID limits caller-supplied IDs to short, log-safe tokens.
var acceptedTraceID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// WithTraceID returns a copy of ctx carrying traceID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from the context.
// If no trace ID exists, it returns an empty string.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}

// TraceIDFromHeader returns the caller's trace ID when it is acceptable,
// and a freshly generated one otherwise.
func TraceIDFromHeader(header string) string {
	if acceptedTraceID.MatchString(header) {
		return header
	}
	return NewTraceID()
}

// NewTraceID returns a random 32-character hex string. If the system random
// source fails, a random UUID's hex form is used instead.
func NewTraceID() string {
	b := make([]byte, TraceIDLength)
	if n, err := rand.Read(b); err != nil || n != TraceIDLength {
		id := uuid.New()
		return hex.EncodeToString(id[:])
	}
	return hex.EncodeToString(b)
}
