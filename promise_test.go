package reqx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromise_Settles(t *testing.T) {
	mock := NewMockTransport().StubResponse(http.StatusOK, `{"ok":true}`)
	client := New(WithTransport(mock))

	p := client.Start(context.Background(), Options{URL: "https://api.example.com/x"})

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("promise never settled")
	}

	resp, err := p.Response()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, p.IsCanceled())
}

func TestPromise_AccessorsAgree(t *testing.T) {
	mock := NewMockTransport().StubResponse(http.StatusOK, `{"n":5}`)
	client := New(WithTransport(mock))

	p := client.Start(context.Background(), Options{URL: "https://api.example.com/x"})

	text, err := p.Text()
	require.NoError(t, err)
	assert.Equal(t, `{"n":5}`, text)

	raw, err := p.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"n":5}`), raw)

	var out struct {
		N int `json:"n"`
	}
	require.NoError(t, p.JSON(&out))
	assert.Equal(t, 5, out.N)

	// Every call after settlement returns the same response.
	r1, _ := p.Response()
	r2, _ := p.Response()
	assert.Same(t, r1, r2)
	assert.Equal(t, 1, mock.CallCount())
}

func TestPromise_ErrorSurfacesEverywhere(t *testing.T) {
	mock := NewMockTransport().StubResponse(http.StatusInternalServerError, "boom")
	client := New(WithTransport(mock))

	p := client.Start(context.Background(), Options{
		URL:   "https://api.example.com/x",
		Retry: &RetryOptions{Limit: Int(0)},
	})

	var herr *HTTPError
	require.ErrorAs(t, p.Wait(), &herr)

	_, err := p.Bytes()
	assert.ErrorAs(t, err, &herr)
	_, err = p.Text()
	assert.ErrorAs(t, err, &herr)
	assert.ErrorAs(t, p.JSON(&struct{}{}), &herr)
}

func TestPromise_Cancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	var mu sync.Mutex
	var afterSettle []Event
	settled := make(chan struct{})

	client := New()
	p := client.Start(context.Background(), Options{URL: srv.URL})
	p.On(func(e Event) {
		select {
		case <-settled:
			mu.Lock()
			afterSettle = append(afterSettle, e)
			mu.Unlock()
		default:
		}
	})

	p.Cancel()
	err := p.Wait()
	close(settled)

	var ce *CancelError
	require.ErrorAs(t, err, &ce)
	assert.True(t, p.IsCanceled())

	// Cancelling again is a no-op.
	p.Cancel()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, afterSettle)
}

func TestPromise_CancelDuringRetryWait(t *testing.T) {
	mock := NewMockTransport().StubResponse(http.StatusInternalServerError, "down")
	client := New(WithTransport(mock))

	p := client.Start(context.Background(), Options{
		URL: "https://api.example.com/x",
		Retry: &RetryOptions{
			Limit:   Int(5),
			Backoff: BackoffConfig{InitialInterval: 5 * time.Second},
		},
	})

	// Let the first attempt fail so the backoff wait is underway.
	time.Sleep(50 * time.Millisecond)
	p.Cancel()

	err := p.Wait()
	var ce *CancelError
	require.ErrorAs(t, err, &ce)
	assert.True(t, p.IsCanceled())
	assert.Equal(t, 1, mock.CallCount())
}

func TestPromise_ContextCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	client := New()
	p := client.Start(ctx, Options{URL: srv.URL})
	cancel()

	err := p.Wait()
	var ce *CancelError
	require.ErrorAs(t, err, &ce)
	assert.True(t, p.IsCanceled())
}

func TestPromise_Result(t *testing.T) {
	t.Run("given ResolveBodyOnly with json type, then decoded value", func(t *testing.T) {
		mock := NewMockTransport().StubResponse(http.StatusOK, `{"k":"v"}`)
		client := New(WithTransport(mock))

		p := client.Start(context.Background(), Options{
			URL:             "https://api.example.com/x",
			ResolveBodyOnly: Bool(true),
			ResponseType:    ResponseTypeJSON,
		})
		v, err := p.Result()
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"k": "v"}, v)
	})

	t.Run("given ResolveBodyOnly with text type, then string", func(t *testing.T) {
		mock := NewMockTransport().StubResponse(http.StatusOK, "plain")
		client := New(WithTransport(mock))

		p := client.Start(context.Background(), Options{
			URL:             "https://api.example.com/x",
			ResolveBodyOnly: Bool(true),
		})
		v, err := p.Result()
		require.NoError(t, err)
		assert.Equal(t, "plain", v)
	})

	t.Run("given ResolveBodyOnly with buffer type, then bytes", func(t *testing.T) {
		mock := NewMockTransport().StubResponse(http.StatusOK, "raw")
		client := New(WithTransport(mock))

		p := client.Start(context.Background(), Options{
			URL:             "https://api.example.com/x",
			ResolveBodyOnly: Bool(true),
			ResponseType:    ResponseTypeBuffer,
		})
		v, err := p.Result()
		require.NoError(t, err)
		assert.Equal(t, []byte("raw"), v)
	})

	t.Run("given default, then the response itself", func(t *testing.T) {
		mock := NewMockTransport().StubResponse(http.StatusOK, "x")
		client := New(WithTransport(mock))

		p := client.Start(context.Background(), Options{URL: "https://api.example.com/x"})
		v, err := p.Result()
		require.NoError(t, err)
		_, ok := v.(*Response)
		assert.True(t, ok)
	})
}
