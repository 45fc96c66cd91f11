package logging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnhancedLoggerEmitsContextValues(t *testing.T) {
	base := NewTestLogger()
	ctx := context.WithValue(context.Background(), CorrelationIDKey, "corr-123")
	ctx = context.WithValue(ctx, CallerKeyKey, "203.0.113.7")

	el := NewEnhancedLogger(base, ctx)
	el.Info("publish accepted", "stream", "orders")

	out := base.GetOutput()
	assert.Contains(t, out, "corr-123")
	assert.Contains(t, out, "203.0.113.7")
	assert.Contains(t, out, "publish accepted")
}

func TestEnhancedLoggerFieldsAreCopied(t *testing.T) {
	base := NewTestLogger()
	el := NewEnhancedLogger(base, context.Background())

	withStream := el.WithField("stream", "orders")
	withTopic := withStream.WithField("topic", "created")

	withStream.Info("first")
	assert.NotContains(t, base.GetOutput(), "topic")

	withTopic.Info("second")
	assert.Contains(t, base.GetOutput(), "topic")
}

func TestEnhancedLoggerRequestAndCallerHelpers(t *testing.T) {
	base := NewTestLogger()
	el := NewEnhancedLogger(base, context.Background()).
		WithRequestID("req-9").
		WithCallerKey("198.51.100.4")

	el.Warn("rate limited")

	out := base.GetOutput()
	assert.Contains(t, out, "req-9")
	assert.Contains(t, out, "198.51.100.4")
}

func TestTimeOperationLogsOutcome(t *testing.T) {
	base := NewTestLogger()
	el := NewEnhancedLogger(base, context.Background())

	err := el.TimeOperation("ensure_stream", func() error { return nil })
	require.NoError(t, err)
	assert.Contains(t, base.GetOutput(), "operation completed")

	base.Buffer.Reset()
	err = el.TimeOperation("ensure_stream", func() error { return assert.AnError })
	require.Error(t, err)
	assert.Contains(t, base.GetOutput(), "operation failed")
}

func TestLogHTTPRequestLevels(t *testing.T) {
	for _, tc := range []struct {
		name   string
		status int
		err    error
		expect string
	}{
		{"success", 200, nil, "http request completed"},
		{"client error", 404, nil, "client error"},
		{"server error", 503, nil, "server error"},
		{"handler error", 200, assert.AnError, "http request failed"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			base := NewTestLogger()
			el := NewEnhancedLogger(base, context.Background())
			el.LogHTTPRequest("GET", "/streams", tc.status, 12*time.Millisecond, tc.err)
			assert.Contains(t, base.GetOutput(), tc.expect)
		})
	}
}
