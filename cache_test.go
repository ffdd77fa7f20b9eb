package reqx

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	cache := NewMemoryCache()

	t.Run("given a fresh entry, then it is returned", func(t *testing.T) {
		cache.Set("k", &CachedResponse{
			StatusCode: 200,
			Body:       []byte("cached"),
			StoredAt:   time.Now(),
			TTL:        time.Minute,
		})
		entry, ok := cache.Get("k")
		require.True(t, ok)
		assert.Equal(t, []byte("cached"), entry.Body)
	})

	t.Run("given an expired entry, then it is evicted on read", func(t *testing.T) {
		cache.Set("stale", &CachedResponse{
			StatusCode: 200,
			StoredAt:   time.Now().Add(-2 * time.Minute),
			TTL:        time.Minute,
		})
		_, ok := cache.Get("stale")
		assert.False(t, ok)
	})

	t.Run("given a zero TTL entry, then it is never served", func(t *testing.T) {
		cache.Set("zero", &CachedResponse{StatusCode: 200, StoredAt: time.Now()})
		_, ok := cache.Get("zero")
		assert.False(t, ok)
	})

	t.Run("given a deleted key, then the entry is gone", func(t *testing.T) {
		cache.Set("gone", &CachedResponse{StatusCode: 200, StoredAt: time.Now(), TTL: time.Minute})
		cache.Delete("gone")
		_, ok := cache.Get("gone")
		assert.False(t, ok)
	})
}

func TestFreshnessLifetime(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		want   time.Duration
		wantOK bool
	}{
		{
			name:   "given no cache-control, then not cacheable",
			header: http.Header{},
		},
		{
			name:   "given max-age, then the lifetime is returned",
			header: http.Header{"Cache-Control": {"max-age=60"}},
			want:   time.Minute,
			wantOK: true,
		},
		{
			name:   "given no-store, then not cacheable",
			header: http.Header{"Cache-Control": {"no-store, max-age=60"}},
		},
		{
			name:   "given no-cache, then not cacheable",
			header: http.Header{"Cache-Control": {"no-cache"}},
		},
		{
			name:   "given private, then not cacheable",
			header: http.Header{"Cache-Control": {"private, max-age=60"}},
		},
		{
			name:   "given zero max-age, then not cacheable",
			header: http.Header{"Cache-Control": {"max-age=0"}},
		},
		{
			name:   "given malformed max-age, then not cacheable",
			header: http.Header{"Cache-Control": {"max-age=soon"}},
		},
		{
			name: "given an Age header, then it is subtracted",
			header: http.Header{
				"Cache-Control": {"max-age=60"},
				"Age":           {"20"},
			},
			want:   40 * time.Second,
			wantOK: true,
		},
		{
			name: "given age past max-age, then not cacheable",
			header: http.Header{
				"Cache-Control": {"max-age=60"},
				"Age":           {"90"},
			},
		},
		{
			name:   "given mixed-case directives, then they still parse",
			header: http.Header{"Cache-Control": {"Public, Max-Age=30"}},
			want:   30 * time.Second,
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := freshnessLifetime(tt.header)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestClient_CacheServesFreshHit(t *testing.T) {
	mock := NewMockTransport()
	mock.EnqueueHeader(http.StatusOK, "origin", http.Header{"Cache-Control": {"max-age=300"}})

	cache := NewMemoryCache()
	client := New(WithTransport(mock))
	opts := Options{URL: "https://api.example.com/resource", Cache: cache}

	first, err := client.Do(context.Background(), opts)
	require.NoError(t, err)
	assert.False(t, first.FromCache())
	assert.Equal(t, "origin", first.Text())

	second, err := client.Do(context.Background(), opts)
	require.NoError(t, err)
	assert.True(t, second.FromCache())
	assert.Equal(t, "origin", second.Text())
	assert.Equal(t, 1, mock.CallCount())
}

func TestClient_CacheSkipsUncacheable(t *testing.T) {
	t.Run("given no-store, then every request hits the origin", func(t *testing.T) {
		mock := NewMockTransport()
		mock.EnqueueHeader(http.StatusOK, "a", http.Header{"Cache-Control": {"no-store"}})
		mock.EnqueueHeader(http.StatusOK, "b", http.Header{"Cache-Control": {"no-store"}})

		cache := NewMemoryCache()
		client := New(WithTransport(mock))
		opts := Options{URL: "https://api.example.com/x", Cache: cache}

		_, err := client.Do(context.Background(), opts)
		require.NoError(t, err)
		resp, err := client.Do(context.Background(), opts)
		require.NoError(t, err)
		assert.Equal(t, "b", resp.Text())
		assert.Equal(t, 2, mock.CallCount())
	})

	t.Run("given a POST, then the cache is bypassed", func(t *testing.T) {
		mock := NewMockTransport()
		mock.StubResponse(http.StatusOK, "posted")

		cache := NewMemoryCache()
		client := New(WithTransport(mock))

		for i := 0; i < 2; i++ {
			_, err := client.Post(context.Background(), "https://api.example.com/x", Options{Cache: cache})
			require.NoError(t, err)
		}
		assert.Equal(t, 2, mock.CallCount())
	})

	t.Run("given an error status, then nothing is stored", func(t *testing.T) {
		mock := NewMockTransport()
		mock.EnqueueHeader(http.StatusNotFound, "missing", http.Header{"Cache-Control": {"max-age=300"}})

		cache := NewMemoryCache()
		client := New(WithTransport(mock))
		_, err := client.Get(context.Background(), "https://api.example.com/x", Options{
			Cache:           cache,
			ThrowHTTPErrors: Bool(false),
		})
		require.NoError(t, err)
		_, ok := cache.Get("GET https://api.example.com/x")
		assert.False(t, ok)
	})
}
