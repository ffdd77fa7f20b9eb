package reqx

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Sentinel errors returned for synchronous misuse of the API.
var (
	// ErrBodyConflict is returned by Stream.Write when the request already
	// carries a body from the Body, JSON or Form option. The writable side
	// of a Stream is only available when no body option was set.
	ErrBodyConflict = errors.New("reqx: cannot write to stream: request already has a body option")

	// ErrStreamClosed is returned by Stream.Write after the stream has been
	// closed or destroyed.
	ErrStreamClosed = errors.New("reqx: stream is closed")
)

// RequestError is the base error type for failures that occur while
// executing a request. Every error surfaced by the engine either is a
// *RequestError or wraps one of the more specific types below, all of
// which compose with errors.Is and errors.As.
//
// Example:
//
//	_, err := client.Do(ctx, reqx.Options{URL: "https://api.example.com"})
//	var reqErr *reqx.RequestError
//	if errors.As(err, &reqErr) {
//	    log.Printf("request to %s failed: %v", reqErr.URL, reqErr.Unwrap())
//	}
type RequestError struct {
	// Method and URL identify the logical request that failed.
	Method string
	URL    *url.URL

	// Attempt is the 1-based attempt number during which the failure
	// occurred.
	Attempt int

	// Err is the underlying cause.
	Err error
}

func (e *RequestError) Error() string {
	if e.URL != nil {
		return fmt.Sprintf("reqx: %s %s: %v", e.Method, e.URL, e.Err)
	}
	return fmt.Sprintf("reqx: %s: %v", e.Method, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// TimeoutError reports that a per-phase timer fired before the phase
// completed. Phase identifies the lifecycle segment and Threshold the
// configured budget that was exceeded.
type TimeoutError struct {
	Phase     Phase
	Threshold time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("reqx: timeout: %s phase exceeded %s", e.Phase, e.Threshold)
}

// Timeout reports true so the error satisfies net.Error-style timeout
// checks performed by callers and by the retry classifier.
func (e *TimeoutError) Timeout() bool { return true }

// HTTPError reports a non-2xx response received while ThrowHTTPErrors is
// enabled. The buffered response is carried so callers (and BeforeError
// hooks) can inspect the status and body.
type HTTPError struct {
	Response *Response
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("reqx: unexpected response status %d %s", e.Response.StatusCode, e.Response.Status)
}

// StatusCode returns the response status code.
func (e *HTTPError) StatusCode() int { return e.Response.StatusCode }

// MaxRedirectsError reports that following one more redirect would exceed
// MaxRedirects. Chain holds every URL visited, in order.
type MaxRedirectsError struct {
	Chain []string
	Limit int
}

func (e *MaxRedirectsError) Error() string {
	return fmt.Sprintf("reqx: redirect limit of %d exceeded after %d hops", e.Limit, len(e.Chain))
}

// ParseError reports that a final response body could not be parsed
// according to the requested ResponseType. The raw body and the response
// remain available; parse failures are never retried by the engine.
type ParseError struct {
	Response *Response
	Body     []byte
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("reqx: failed to parse response body: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// CancelError reports explicit cancellation through Promise.Cancel,
// Stream.Destroy, or the caller's context. It is terminal: canceled
// requests are never retried.
type CancelError struct {
	// Err is the context cause when cancellation came from the caller's
	// context, nil for an explicit Cancel call.
	Err error
}

func (e *CancelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("reqx: request canceled: %v", e.Err)
	}
	return "reqx: request canceled"
}

func (e *CancelError) Unwrap() error { return e.Err }

// UnsupportedProtocolError reports a URL scheme the engine cannot dial.
type UnsupportedProtocolError struct {
	Scheme string
}

func (e *UnsupportedProtocolError) Error() string {
	return fmt.Sprintf("reqx: unsupported protocol scheme %q", e.Scheme)
}

// ValidationError reports a malformed or contradictory option detected
// during normalization, before any I/O happens.
type ValidationError struct {
	Option string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("reqx: invalid option %s: %s", e.Option, e.Reason)
}

// wrapRequestError wraps err in a *RequestError carrying request identity,
// unless err already is one.
func wrapRequestError(method string, u *url.URL, attempt int, err error) error {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return err
	}
	return &RequestError{Method: method, URL: u, Attempt: attempt, Err: err}
}

// isCancel reports whether err is, or wraps, a *CancelError.
func isCancel(err error) bool {
	var ce *CancelError
	return errors.As(err, &ce)
}
