package reqx

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoalesce_CollapsesConcurrentGets(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		fmt.Fprint(w, "shared")
	}))
	defer srv.Close()

	client := New(WithCoalescing())

	const n = 5
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := client.Get(context.Background(), srv.URL+"/resource")
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = resp.Text()
		}(i)
	}

	// Give the in-flight callers time to pile onto the same key.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", results[i])
	}
	assert.LessOrEqual(t, hits.Load(), int32(2))
}

func TestCoalesce_PostsPassThrough(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, "posted")
	}))
	defer srv.Close()

	client := New(WithCoalescing())
	for i := 0; i < 3; i++ {
		_, err := client.Post(context.Background(), srv.URL, Options{Body: "x"})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), hits.Load())
}

func TestCoalesceKey(t *testing.T) {
	mustReq := func(method, rawurl string, header http.Header) *http.Request {
		u, err := url.Parse(rawurl)
		require.NoError(t, err)
		req := &http.Request{Method: method, URL: u, Header: header}
		if header == nil {
			req.Header = http.Header{}
		}
		return req
	}

	t.Run("given reordered query params, then keys match", func(t *testing.T) {
		a := coalesceKey(mustReq("GET", "https://h/p?a=1&b=2", nil))
		b := coalesceKey(mustReq("GET", "https://h/p?b=2&a=1", nil))
		assert.Equal(t, a, b)
	})

	t.Run("given different paths, then keys differ", func(t *testing.T) {
		a := coalesceKey(mustReq("GET", "https://h/p1", nil))
		b := coalesceKey(mustReq("GET", "https://h/p2", nil))
		assert.NotEqual(t, a, b)
	})

	t.Run("given different methods, then keys differ", func(t *testing.T) {
		a := coalesceKey(mustReq("GET", "https://h/p", nil))
		b := coalesceKey(mustReq("HEAD", "https://h/p", nil))
		assert.NotEqual(t, a, b)
	})

	t.Run("given different credentials, then keys differ", func(t *testing.T) {
		a := coalesceKey(mustReq("GET", "https://h/p", http.Header{"Authorization": {"Bearer a"}}))
		b := coalesceKey(mustReq("GET", "https://h/p", http.Header{"Authorization": {"Bearer b"}}))
		assert.NotEqual(t, a, b)
	})
}
