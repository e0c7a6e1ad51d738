package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     LogConfig
		wantErr bool
	}{
		{name: "json info", cfg: LogConfig{Level: "info", Format: "json"}},
		{name: "console debug", cfg: LogConfig{Level: "debug", Format: "console"}},
		{name: "stderr output", cfg: LogConfig{Level: "warn", Format: "json", Output: "stderr"}},
		{name: "invalid level", cfg: LogConfig{Level: "chatty"}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			logger, err := NewLogger(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestNopLoggerDoesNotPanic(t *testing.T) {
	t.Parallel()

	logger := NopLogger()
	logger.Debug("debug", String("k", "v"))
	logger.Info("info", Int("n", 1))
	logger.Warn("warn", Bool("b", true))
	logger.Error("error", Any("x", struct{}{}))
	assert.NoError(t, logger.Sync())
}

func TestLoggerWith(t *testing.T) {
	t.Parallel()

	logger := NopLogger().With(String("component", "test"))
	assert.NotNil(t, logger)
	logger.Info("scoped")
}

func TestRequestIDContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))

	ctx = ContextWithRequestID(ctx, "req-1")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
}

func TestTraceIDContext(t *testing.T) {
	t.Parallel()

	ctx := ContextWithTraceID(context.Background(), "trace-1")
	assert.Equal(t, "trace-1", TraceIDFromContext(ctx))
}

func TestWithContextAttachesIdentifiers(t *testing.T) {
	t.Parallel()

	ctx := ContextWithRequestID(context.Background(), "req-2")
	scoped := NopLogger().WithContext(ctx)
	assert.NotNil(t, scoped)
	scoped.Info("has request id")
}
