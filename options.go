package reqx

import (
	"net/http"
	"net/url"
	"time"
)

// ResponseType selects how Promise body shortcuts and ResolveBodyOnly
// interpret the buffered response body.
type ResponseType string

const (
	// ResponseTypeText decodes the body as a UTF-8 string.
	ResponseTypeText ResponseType = "text"
	// ResponseTypeJSON decodes the body as JSON.
	ResponseTypeJSON ResponseType = "json"
	// ResponseTypeBuffer returns the raw bytes.
	ResponseTypeBuffer ResponseType = "buffer"
)

// Default values applied during normalization when no layer sets the
// corresponding option.
const (
	// DefaultMaxRedirects is the redirect hop limit.
	DefaultMaxRedirects = 10

	// DefaultRetryLimit is the number of retries after the initial attempt.
	DefaultRetryLimit = 2

	// DefaultRequestTimeout bounds one attempt end to end.
	DefaultRequestTimeout = 15 * time.Second
)

// DefaultRetryMethods are the idempotent methods retried by default.
var DefaultRetryMethods = []string{
	http.MethodGet,
	http.MethodHead,
	http.MethodPut,
	http.MethodDelete,
	http.MethodOptions,
	http.MethodTrace,
}

// DefaultRetryStatusCodes are the response statuses retried by default.
var DefaultRetryStatusCodes = []int{408, 413, 429, 500, 502, 503, 504}

// Timeouts holds per-phase timeout budgets for a single request attempt.
// A zero field inherits the value from earlier option layers; a field that
// is zero after all layers are merged disables that phase's timer. Request
// is the outer bound for the whole attempt and supersedes the others.
//
// Phase semantics follow the connection lifecycle: Lookup covers DNS
// resolution (skipped for IP literals and reused connections), Connect the
// TCP dial, SecureConnect the TLS handshake, Socket is a rolling idle
// timer reset by every byte in either direction, Send covers writing the
// request body, Response the wait for the first response byte, and Read
// the response body download.
type Timeouts struct {
	Lookup        time.Duration
	Connect       time.Duration
	SecureConnect time.Duration
	Socket        time.Duration
	Send          time.Duration
	Response      time.Duration
	Read          time.Duration
	Request       time.Duration
}

// RetryOptions configures the retry engine for a request.
//
// Pointer and nil-able fields distinguish "not set in this layer" (nil,
// inherits from earlier layers or defaults) from an explicit value. An
// explicitly empty non-nil slice clears the inherited set.
type RetryOptions struct {
	// Limit is the maximum number of retries after the initial attempt.
	// A pointer to zero disables retries entirely.
	Limit *int

	// Methods is the set of HTTP methods eligible for retry on network
	// errors. Defaults to the idempotent methods (DefaultRetryMethods).
	Methods []string

	// StatusCodes is the set of response statuses that trigger a retry.
	// Defaults to DefaultRetryStatusCodes.
	StatusCodes []int

	// Classifier decides whether a transport-level error is retryable.
	// Defaults to DefaultClassifier.
	Classifier RetryClassifier

	// Backoff tunes the exponential delay computation.
	Backoff BackoffConfig

	// CalculateDelay, when set, receives the computed delay (including any
	// Retry-After override) in info.Delay and returns the delay actually
	// used. Returning 0 vetoes the retry.
	CalculateDelay func(info *RetryInfo) time.Duration

	// RespectRetryAfter controls whether a valid Retry-After response
	// header overrides the computed backoff delay. Defaults to true.
	RespectRetryAfter *bool

	// MaxRetryAfter caps a server-supplied Retry-After delay. A Retry-After
	// beyond the cap suppresses the retry instead of waiting. Zero means
	// the attempt Request timeout is used as the cap when set.
	MaxRetryAfter time.Duration
}

// RetryInfo describes a retry decision in flight. It is passed to
// CalculateDelay and to BeforeRetry hooks, which may adjust Delay before
// the wait occurs.
type RetryInfo struct {
	// Descriptor is the descriptor of the attempt that failed.
	Descriptor *Descriptor

	// Attempt is the 1-based index of the attempt that just failed.
	Attempt int

	// Err is the transport-level error, nil when the retry was triggered
	// by a response status.
	Err error

	// Response is the received response, nil on a transport-level error.
	Response *Response

	// RetryAfter is the parsed Retry-After header value, 0 when absent.
	RetryAfter time.Duration

	// Delay is the wait before the next attempt. BeforeRetry hooks may
	// modify it.
	Delay time.Duration
}

// Options is the closed, recognized option surface for one request. Option
// values from multiple layers (library defaults, client defaults set via
// Extend, the per-call Options) are merged by the normalizer into an
// immutable Descriptor; see Merge for the layering rules.
//
// Body, JSON and Form are mutually exclusive; setting more than one fails
// normalization with a *ValidationError.
type Options struct {
	// URL is the target resource. Relative URLs resolve against PrefixURL.
	URL string

	// PrefixURL is a base URL that relative URL values resolve against.
	// Inherited across layers like any other option.
	PrefixURL string

	// Method is the HTTP method. Empty means GET.
	Method string

	// Header holds request headers. Across layers, headers merge key-wise:
	// a later layer's values replace the same key, other keys persist.
	// Setting a key to an explicit empty slice deletes it.
	Header http.Header

	// SearchParams are query parameters appended to the URL, replacing any
	// query already present on it key-wise.
	SearchParams url.Values

	// Username and Password set basic auth credentials. They override
	// credentials embedded in the URL.
	Username string
	Password string

	// Body is the request body: a string, []byte, or io.Reader. Readers
	// are buffered so attempts can be repeated (except in stream mode).
	Body any

	// JSON is a value to encode as the JSON request body.
	JSON any

	// Form is form data to encode as an application/x-www-form-urlencoded
	// body.
	Form url.Values

	// Timeout configures the per-phase timeout tracker.
	Timeout Timeouts

	// Retry configures the retry engine. Nil inherits.
	Retry *RetryOptions

	// FollowRedirect enables the redirect handler. Defaults to true.
	FollowRedirect *bool

	// MaxRedirects bounds the redirect chain. Defaults to
	// DefaultMaxRedirects.
	MaxRedirects *int

	// MethodRewriting controls whether 301/302 responses rewrite non-GET
	// methods to GET and drop the body. Defaults to true. 303 always
	// rewrites; 307/308 never do.
	MethodRewriting *bool

	// ThrowHTTPErrors converts non-2xx final responses into *HTTPError.
	// Defaults to true.
	ThrowHTTPErrors *bool

	// ResponseType selects the body parsing for shortcuts and
	// ResolveBodyOnly. Defaults to ResponseTypeText.
	ResponseType ResponseType

	// ResolveBodyOnly makes Promise.Result return the parsed body instead
	// of the *Response.
	ResolveBodyOnly *bool

	// Decompress enables transparent decoding of gzip response bodies.
	// Defaults to true.
	Decompress *bool

	// Hooks holds lifecycle callbacks. Hook slices concatenate across
	// layers instead of replacing, so extending a client adds hooks after
	// the parent's.
	Hooks Hooks

	// OnEvent listeners receive lifecycle events (request, response,
	// redirect, retry, progress). Concatenated across layers like hooks.
	OnEvent []EventListener

	// Context is an opaque value passed through untouched for hook use.
	Context any

	// Cache is an optional response cache collaborator.
	Cache Cache

	// Transport overrides the client's RoundTripper (the "agent"). The
	// engine treats it as an opaque connection-pool collaborator.
	Transport http.RoundTripper

	// CookieJar is an optional cookie store collaborator. Jar errors
	// propagate as request errors.
	CookieJar http.CookieJar
}

// Bool returns a pointer to v, for setting tri-state option fields.
func Bool(v bool) *bool { return &v }

// Int returns a pointer to v, for setting tri-state option fields.
func Int(v int) *int { return &v }
