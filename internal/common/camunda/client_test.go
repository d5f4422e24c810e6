package camunda

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "trainer-match-workers/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(maxRetries int) *Client {
	return &Client{config: &ClientConfig{RetryConfig: &RetryConfig{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
	}}}
}

func TestExecuteWithRetry_RetriesTransientErrors(t *testing.T) {
	c := newTestClient(3)
	calls := 0

	res, err := c.ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("rpc error: code = Unavailable desc = connection refused")
		}
		return "ok", nil
	}, "complete")

	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, 3, calls)
}

func TestExecuteWithRetry_StopsOnPermanentError(t *testing.T) {
	c := newTestClient(3)
	calls := 0

	_, err := c.ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, errors.New("job with key 42 not found")
	}, "complete")

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeWorkflowEngineRejected))
}

func TestExecuteWithRetry_ExhaustedTimeoutMapsToTimeoutError(t *testing.T) {
	c := newTestClient(2)
	calls := 0

	_, err := c.ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, errors.New("context deadline exceeded")
	}, "topology")

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeWorkflowEngineTimeout))
}

func TestExecuteWithRetry_CancelledContext(t *testing.T) {
	c := &Client{config: &ClientConfig{RetryConfig: &RetryConfig{
		MaxRetries: 5,
		BaseDelay:  time.Hour,
		MaxDelay:   time.Hour,
	}}}
	ctx, cancel := context.WithCancel(context.Background())

	_, err := c.ExecuteWithRetry(ctx, func(ctx context.Context) (interface{}, error) {
		cancel()
		return nil, errors.New("broken pipe")
	}, "activate")

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryableZeebeError(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"connection reset by peer", true},
		{"rpc error: code = Unavailable", true},
		{"Deadline Exceeded", true},
		{"job not found", false},
		{"permission denied", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isRetryableZeebeError(errors.New(tt.msg)), tt.msg)
	}
}
