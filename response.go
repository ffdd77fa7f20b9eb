package reqx

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Response is a fully buffered HTTP response. By the time a Response is
// handed to hooks or returned from a Promise, its body has been drained
// from the wire, decompressed if requested, and cached; the underlying
// connection is no longer held.
//
// Example usage:
//
//	resp, err := client.Get(ctx, "https://api.example.com/users")
//	if err != nil {
//	    return err
//	}
//	var users []User
//	if err := resp.JSON(&users); err != nil {
//	    return err
//	}
type Response struct {
	// Response embeds the standard http.Response. The embedded Body has
	// already been consumed; use Bytes, Text or JSON instead.
	*http.Response

	// body is the drained response payload.
	body []byte

	// RequestID identifies the logical request across every attempt,
	// redirect hop and event it produced.
	RequestID uuid.UUID

	// Descriptor is the request descriptor this response answered. For a
	// redirected exchange it is the descriptor of the final hop.
	Descriptor *Descriptor

	// RedirectChain holds the URLs of every followed redirect, in order.
	// Empty when the first exchange answered directly.
	RedirectChain []string

	// Attempt is the 1-based attempt number that produced this response.
	Attempt int

	// Trace carries per-phase timing for the final attempt.
	Trace *TraceInfo

	// fromCache reports whether the response was served from the
	// configured Cache without reaching the transport.
	fromCache bool
}

// Bytes returns the buffered response body.
func (r *Response) Bytes() []byte {
	return r.body
}

// Text returns the buffered response body as a string.
func (r *Response) Text() string {
	return string(r.body)
}

// JSON decodes the buffered response body into v. A malformed payload
// yields a *ParseError carrying the raw body.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.body, v); err != nil {
		return &ParseError{Response: r, Body: r.body, Err: err}
	}
	return nil
}

// IsSuccess reports whether the status code is in the 2xx range.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// FromCache reports whether this response was served from the cache.
func (r *Response) FromCache() bool {
	return r.fromCache
}

// RetryAfter returns the parsed Retry-After header, or false when the
// header is absent or malformed. Both delta-seconds and HTTP-date forms
// are understood.
func (r *Response) RetryAfter() (time.Duration, bool) {
	return parseRetryAfter(r.Header.Get("Retry-After"), time.Now())
}

// TraceInfo carries per-phase timings for a single attempt, collected via
// httptrace. Phases that did not occur (reused connections skip lookup,
// connect and the TLS handshake) are zero.
type TraceInfo struct {
	DNSLookup    time.Duration
	Connect      time.Duration
	TLSHandshake time.Duration
	// TimeToFirstByte measures from the request being fully written to
	// the first response byte arriving.
	TimeToFirstByte time.Duration
	Total           time.Duration

	// ConnReused reports whether the attempt rode an idle pooled
	// connection.
	ConnReused bool
	RemoteAddr string
}
