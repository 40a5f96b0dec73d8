package logger_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/imgbatch-api/internal/config"
	"github.com/phrazzld/imgbatch-api/internal/platform/logger"
)

func TestSetupWithWriter_LevelFiltering(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	var buf bytes.Buffer
	l, err := logger.SetupWithWriter(config.ServerConfig{LogLevel: "warn", Port: 8080}, &buf)
	require.NoError(t, err)
	require.NotNil(t, l)

	l.Info("info message")
	l.Warn("warn message")

	out := buf.String()
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message")
	assert.Contains(t, out, `"service":"imgbatch-api"`)
	assert.Same(t, l, slog.Default(), "Setup should install the logger as default")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"Warn", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := logger.ParseLevel(tc.name)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.ok, ok)
		})
	}
}

func TestFromContextOrDefault(t *testing.T) {
	t.Parallel()

	defaultLogger := slog.Default()
	customLogger, _ := logger.NewTestLogger()

	tests := []struct {
		name     string
		ctx      context.Context
		expected *slog.Logger
	}{
		{
			name:     "nil_context_returns_default",
			ctx:      nil,
			expected: defaultLogger,
		},
		{
			name:     "context_without_logger_returns_default",
			ctx:      context.Background(),
			expected: defaultLogger,
		},
		{
			name:     "context_with_logger_returns_context_logger",
			ctx:      logger.WithLogger(context.Background(), customLogger),
			expected: customLogger,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := logger.FromContextOrDefault(tt.ctx, defaultLogger)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestWithLogger(t *testing.T) {
	t.Parallel()

	t.Run("valid_logger", func(t *testing.T) {
		customLogger, buf := logger.NewTestLogger()
		ctx := logger.WithLogger(context.Background(), customLogger)

		logger.FromContext(ctx).Info("hello", "request_id", "abc")

		entries, err := buf.GetLogEntries()
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "hello", entries[0]["msg"])
		assert.Equal(t, "abc", entries[0]["request_id"])
	})

	t.Run("nil_logger_panics", func(t *testing.T) {
		assert.Panics(t, func() {
			logger.WithLogger(context.Background(), nil)
		})
	})
}
