package shared

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithAndGetTraceID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx), "Expected empty trace ID in original context")

	ctxWithTrace := WithTraceID(ctx, "abc123")
	assert.Equal(t, "abc123", GetTraceID(ctxWithTrace))
	assert.Empty(t, GetTraceID(ctx), "Expected original context to remain unchanged")
}

func TestGetTraceIDWithInvalidContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), TraceIDKey, 123) // Not a string
	assert.Empty(t, GetTraceID(ctx), "Expected empty trace ID when context has invalid type")
}

func TestNewTraceID(t *testing.T) {
	const iterations = 1000
	seen := make(map[string]bool, iterations)

	for i := 0; i < iterations; i++ {
		id := NewTraceID()
		assert.Len(t, id, 32, "Expected trace ID length to be 32 hex characters (16 bytes)")
		_, err := hex.DecodeString(id)
		assert.NoError(t, err, "Expected valid hex string")
		assert.False(t, seen[id], "Expected all trace IDs to be unique")
		seen[id] = true
	}
}

func TestTraceIDFromHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{name: "accepted token", header: "req-42.a_b", keep: true},
		{name: "empty header", header: "", keep: false},
		{name: "too long", header: strings.Repeat("a", 65), keep: false},
		{name: "log injection", header: "abc\nlevel=ERROR", keep: false},
		{name: "spaces", header: "a b", keep: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := TraceIDFromHeader(tc.header)
			if tc.keep {
				assert.Equal(t, tc.header, got)
				return
			}
			assert.NotEqual(t, tc.header, got)
			assert.Len(t, got, 32)
		})
	}
}
