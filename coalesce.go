package reqx

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"sort"
	"strings"

	"golang.org/x/sync/singleflight"
)

// coalescingTransport collapses identical concurrent GET and HEAD
// attempts into a single transport exchange. The winning exchange's body
// is buffered and every waiter receives its own copy. Anything with a
// body or a non-idempotent method passes straight through.
type coalescingTransport struct {
	next  http.RoundTripper
	group singleflight.Group
}

func newCoalescingTransport(next http.RoundTripper) http.RoundTripper {
	return &coalescingTransport{next: next}
}

// coalescedResult is the shared outcome of one deduplicated exchange.
type coalescedResult struct {
	resp *http.Response
	body []byte
}

func (t *coalescingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return t.next.RoundTrip(req)
	}

	key := coalesceKey(req)
	v, err, _ := t.group.Do(key, func() (any, error) {
		resp, err := t.next.RoundTrip(req) //nolint:bodyclose
		if err != nil {
			return nil, err
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		return &coalescedResult{resp: resp, body: body}, nil
	})
	if err != nil {
		return nil, err
	}

	res := v.(*coalescedResult)
	out := *res.resp
	out.Body = io.NopCloser(bytes.NewReader(res.body))
	return &out, nil
}

// coalesceKey derives the deduplication key: method, scheme, host, path
// and the query sorted into a canonical order, plus the Authorization
// header so callers with different credentials never share a response.
func coalesceKey(req *http.Request) string {
	q := req.URL.Query()
	params := make([]string, 0, len(q))
	for k, vs := range q {
		sorted := append([]string(nil), vs...)
		sort.Strings(sorted)
		for _, v := range sorted {
			params = append(params, k+"="+v)
		}
	}
	sort.Strings(params)

	parts := []string{
		req.Method,
		req.URL.Scheme + "://" + req.URL.Host + req.URL.Path,
		strings.Join(params, "&"),
		req.Header.Get("Authorization"),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
