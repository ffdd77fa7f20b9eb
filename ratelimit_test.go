package reqx

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimit_FailFast(t *testing.T) {
	mock := NewMockTransport().StubResponse(http.StatusOK, "ok")
	client := New(
		WithTransport(mock),
		WithRateLimit(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2}),
	)

	for i := 0; i < 2; i++ {
		_, err := client.Get(context.Background(), "https://api.example.com/x")
		require.NoError(t, err)
	}

	// The bucket is empty and refills at a glacial rate.
	_, err := client.Get(context.Background(), "https://api.example.com/x")
	require.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 2, mock.CallCount())
}

func TestRateLimit_WaitBlocksForToken(t *testing.T) {
	mock := NewMockTransport().StubResponse(http.StatusOK, "ok")
	client := New(
		WithTransport(mock),
		WithRateLimit(RateLimitConfig{RequestsPerSecond: 50, Burst: 1, WaitOnLimit: true}),
	)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.Get(context.Background(), "https://api.example.com/x")
		require.NoError(t, err)
	}

	// Two of the three requests had to wait roughly 20ms each.
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, 3, mock.CallCount())
}

func TestRateLimit_WaitHonorsCancellation(t *testing.T) {
	mock := NewMockTransport().StubResponse(http.StatusOK, "ok")
	client := New(
		WithTransport(mock),
		WithRateLimit(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1, WaitOnLimit: true}),
	)

	_, err := client.Get(context.Background(), "https://api.example.com/x")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	p := client.Start(ctx, Options{URL: "https://api.example.com/x"})
	cancel()

	err = p.Wait()
	require.Error(t, err)
	var ce *CancelError
	assert.ErrorAs(t, err, &ce)
}

func TestRateLimit_ZeroRateDisables(t *testing.T) {
	mock := NewMockTransport().StubResponse(http.StatusOK, "ok")
	client := New(
		WithTransport(mock),
		WithRateLimit(RateLimitConfig{RequestsPerSecond: 0}),
	)

	for i := 0; i < 10; i++ {
		_, err := client.Get(context.Background(), "https://api.example.com/x")
		require.NoError(t, err)
	}
	assert.Equal(t, 10, mock.CallCount())
}
