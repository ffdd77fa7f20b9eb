package reqx

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCurlCommand(t *testing.T) {
	t.Run("given a GET, then no -X flag", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "https://api.example.com/users?page=2", nil)
		got := generateCurlCommand(req, nil)
		assert.Equal(t, "curl 'https://api.example.com/users?page=2'", got)
	})

	t.Run("given a POST with headers and body, then all parts render", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "https://api.example.com/users", nil)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer tok")

		got := generateCurlCommand(req, []byte(`{"a":1}`))
		assert.Contains(t, got, "-X POST")
		assert.Contains(t, got, "-H 'Authorization: Bearer tok'")
		assert.Contains(t, got, "-H 'Content-Type: application/json'")
		assert.Contains(t, got, `-d '{"a":1}'`)
	})

	t.Run("given single quotes in the body, then they are escaped", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "https://api.example.com/x", nil)
		got := generateCurlCommand(req, []byte("it's"))
		assert.Contains(t, got, `-d 'it'\''s'`)
	})
}

func TestClient_DebugLogging(t *testing.T) {
	mock := NewMockTransport().
		Enqueue(http.StatusServiceUnavailable, "down").
		Enqueue(http.StatusOK, "up")

	var buf bytes.Buffer
	client := New(
		WithTransport(mock),
		WithLogger(zerolog.New(&buf)),
		WithDebug(true),
		WithCurl(true),
	)

	_, err := client.Get(context.Background(), "https://api.example.com/x", Options{
		Retry: fastRetry(1),
	})
	require.NoError(t, err)

	logs := buf.String()
	assert.Contains(t, logs, `"message":"request"`)
	assert.Contains(t, logs, `"message":"retrying"`)
	assert.Contains(t, logs, `"message":"response"`)
	assert.Contains(t, logs, `"curl":"curl 'https://api.example.com/x'`)
}

func TestClient_DebugOffLogsNothing(t *testing.T) {
	mock := NewMockTransport().StubResponse(http.StatusOK, "ok")

	var buf bytes.Buffer
	client := New(WithTransport(mock), WithLogger(zerolog.New(&buf)))

	_, err := client.Get(context.Background(), "https://api.example.com/x")
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}
