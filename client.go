package reqx

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
)

// Client issues requests. It carries a default option layer, the shared
// transport chain, and the ambient instrumentation; per-request options
// are merged on top of the defaults, later layers winning.
//
//	client := reqx.New(
//	    reqx.WithDefaults(reqx.Options{PrefixURL: "https://api.example.com"}),
//	)
//	resp, err := client.Get(ctx, "/users")
//
// Clients are safe for concurrent use and should be reused; each one owns
// a connection pool.
type Client struct {
	defaults  Options
	transport http.RoundTripper

	logger       zerolog.Logger
	debug        bool
	generateCurl bool

	instr *instrumentation
}

// ClientOption configures a Client at construction time.
type ClientOption func(*clientConfig)

type clientConfig struct {
	defaults        Options
	transportConfig TransportConfig
	transport       http.RoundTripper

	logger       zerolog.Logger
	debug        bool
	generateCurl bool

	breaker   *BreakerConfig
	rateLimit *RateLimitConfig
	coalesce  bool

	instrOpts []instrumentOption
}

// WithDefaults sets the client's default option layer. Every request
// merges its options on top of these.
func WithDefaults(o Options) ClientOption {
	return func(c *clientConfig) { c.defaults = o }
}

// WithTransportConfig builds the client's transport from cfg. Ignored
// when WithTransport is also given.
func WithTransportConfig(cfg TransportConfig) ClientOption {
	return func(c *clientConfig) { c.transportConfig = cfg }
}

// WithTransport installs a custom base RoundTripper. The breaker, rate
// limiter and coalescing wrappers still stack on top of it.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *clientConfig) { c.transport = rt }
}

// WithLogger sets the logger used for debug output.
func WithLogger(l zerolog.Logger) ClientOption {
	return func(c *clientConfig) { c.logger = l }
}

// WithDebug enables request, response and retry logging at debug level.
func WithDebug(enabled bool) ClientOption {
	return func(c *clientConfig) { c.debug = enabled }
}

// WithCurl includes an equivalent curl command in request debug logs.
// Implies nothing unless WithDebug is also on.
func WithCurl(enabled bool) ClientOption {
	return func(c *clientConfig) { c.generateCurl = enabled }
}

// WithBreaker wraps the transport in a circuit breaker.
func WithBreaker(cfg BreakerConfig) ClientOption {
	return func(c *clientConfig) { c.breaker = &cfg }
}

// WithRateLimit throttles attempts leaving the client.
func WithRateLimit(cfg RateLimitConfig) ClientOption {
	return func(c *clientConfig) { c.rateLimit = &cfg }
}

// WithCoalescing collapses identical concurrent GET and HEAD attempts
// into a single transport exchange. Off by default: coalesced callers
// share one response, which is surprising for anything non-idempotent.
func WithCoalescing() ClientOption {
	return func(c *clientConfig) { c.coalesce = true }
}

// New creates a Client. Zero options yield a working client with the
// default transport, default retry policy and a silent logger.
func New(opts ...ClientOption) *Client {
	cfg := &clientConfig{
		transportConfig: DefaultTransportConfig(),
		logger:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	transport := cfg.transport
	if transport == nil {
		transport = cfg.transportConfig.buildTransport()
	}
	if cfg.rateLimit != nil {
		transport = newRateLimitTransport(transport, *cfg.rateLimit)
	}
	if cfg.breaker != nil {
		transport = newBreakerTransport(transport, *cfg.breaker)
	}
	if cfg.coalesce {
		transport = newCoalescingTransport(transport)
	}

	return &Client{
		defaults:     cfg.defaults,
		transport:    transport,
		logger:       cfg.logger,
		debug:        cfg.debug,
		generateCurl: cfg.generateCurl,
		instr:        newInstrumentation(cfg.instrOpts...),
	}
}

// Extend returns a child client whose defaults are the parent's with o
// merged on top. Hook slices concatenate; everything else follows the
// usual layering rules. The transport chain and logger are shared.
func (c *Client) Extend(o Options) *Client {
	child := *c
	child.defaults = Merge(c.defaults, o)
	return &child
}

// Start begins a request and returns its Promise without waiting.
func (c *Client) Start(ctx context.Context, opts ...Options) *Promise {
	return newPromise(c, ctx, opts)
}

// Stream begins a request in streaming mode.
func (c *Client) Stream(ctx context.Context, opts ...Options) *Stream {
	return newStream(c, ctx, opts)
}

// Do runs a request to settlement and returns the buffered response.
func (c *Client) Do(ctx context.Context, opts ...Options) (*Response, error) {
	return c.Start(ctx, opts...).Response()
}

// Get issues a GET to url.
func (c *Client) Get(ctx context.Context, url string, opts ...Options) (*Response, error) {
	return c.verb(ctx, http.MethodGet, url, opts)
}

// Post issues a POST to url.
func (c *Client) Post(ctx context.Context, url string, opts ...Options) (*Response, error) {
	return c.verb(ctx, http.MethodPost, url, opts)
}

// Put issues a PUT to url.
func (c *Client) Put(ctx context.Context, url string, opts ...Options) (*Response, error) {
	return c.verb(ctx, http.MethodPut, url, opts)
}

// Patch issues a PATCH to url.
func (c *Client) Patch(ctx context.Context, url string, opts ...Options) (*Response, error) {
	return c.verb(ctx, http.MethodPatch, url, opts)
}

// Delete issues a DELETE to url.
func (c *Client) Delete(ctx context.Context, url string, opts ...Options) (*Response, error) {
	return c.verb(ctx, http.MethodDelete, url, opts)
}

// Head issues a HEAD to url.
func (c *Client) Head(ctx context.Context, url string, opts ...Options) (*Response, error) {
	return c.verb(ctx, http.MethodHead, url, opts)
}

func (c *Client) verb(ctx context.Context, method, url string, opts []Options) (*Response, error) {
	layers := append([]Options{{Method: method, URL: url}}, opts...)
	return c.Do(ctx, layers...)
}
