package reqx

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Cache stores successful GET responses. Implementations must be safe
// for concurrent use; the engine consults the cache before dialing and
// populates it after a cacheable 2xx settlement.
type Cache interface {
	Get(key string) (*CachedResponse, bool)
	Set(key string, entry *CachedResponse)
	Delete(key string)
}

// CachedResponse is the stored form of a response: status, headers, the
// buffered body, and the freshness window computed at store time.
type CachedResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// StoredAt and TTL bound the entry's freshness. A zero TTL entry is
	// never served.
	StoredAt time.Time
	TTL      time.Duration
}

// fresh reports whether the entry may still be served without
// revalidation.
func (c *CachedResponse) fresh(now time.Time) bool {
	return c.TTL > 0 && now.Before(c.StoredAt.Add(c.TTL))
}

// MemoryCache is a Cache backed by a mutex-guarded map. Expired entries
// are evicted lazily on read.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*CachedResponse
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]*CachedResponse)}
}

func (m *MemoryCache) Get(key string) (*CachedResponse, bool) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !entry.fresh(time.Now()) {
		m.Delete(key)
		return nil, false
	}
	return entry, true
}

func (m *MemoryCache) Set(key string, entry *CachedResponse) {
	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
}

func (m *MemoryCache) Delete(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

func cacheKey(d *Descriptor) string {
	return d.Method + " " + d.URL.String()
}

// cacheLookup serves a fresh entry as a synthetic response that never
// touched the transport.
func cacheLookup(d *Descriptor) (*Response, bool) {
	entry, ok := d.Cache.Get(cacheKey(d))
	if !ok || !entry.fresh(time.Now()) {
		return nil, false
	}
	resp := &Response{
		Response: &http.Response{
			StatusCode: entry.StatusCode,
			Status:     http.StatusText(entry.StatusCode),
			Header:     cloneHeader(entry.Header),
			Proto:      "HTTP/1.1",
			ProtoMajor: 1,
			ProtoMinor: 1,
		},
		body:       entry.Body,
		Descriptor: d,
		fromCache:  true,
	}
	return resp, true
}

// cacheStore records a response when its headers allow it. Freshness
// comes from Cache-Control max-age; responses marked no-store or with no
// usable lifetime are not cached.
func cacheStore(d *Descriptor, resp *Response) {
	ttl, ok := freshnessLifetime(resp.Header)
	if !ok {
		return
	}
	d.Cache.Set(cacheKey(d), &CachedResponse{
		StatusCode: resp.StatusCode,
		Header:     cloneHeader(resp.Header),
		Body:       resp.Bytes(),
		StoredAt:   time.Now(),
		TTL:        ttl,
	})
}

func freshnessLifetime(h http.Header) (time.Duration, bool) {
	cc := h.Get("Cache-Control")
	if cc == "" {
		return 0, false
	}
	var maxAge time.Duration
	for _, directive := range strings.Split(cc, ",") {
		directive = strings.TrimSpace(strings.ToLower(directive))
		if directive == "no-store" || directive == "no-cache" || directive == "private" {
			return 0, false
		}
		if secs, found := strings.CutPrefix(directive, "max-age="); found {
			n, err := strconv.Atoi(secs)
			if err != nil || n <= 0 {
				return 0, false
			}
			maxAge = time.Duration(n) * time.Second
		}
	}
	if maxAge <= 0 {
		return 0, false
	}
	if age := h.Get("Age"); age != "" {
		if n, err := strconv.Atoi(age); err == nil && n > 0 {
			maxAge -= time.Duration(n) * time.Second
		}
	}
	if maxAge <= 0 {
		return 0, false
	}
	return maxAge, true
}
