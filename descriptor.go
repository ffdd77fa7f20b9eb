package reqx

import (
	"net/http"
	"net/url"
)

// Descriptor is the fully-merged, resolved description of one logical
// request. The normalizer produces exactly one Descriptor per merge; the
// engine never mutates a frozen Descriptor in place; redirects, retry
// directives and hook rewrites always derive a new one.
//
// BeforeRequest and BeforeRedirect hooks receive the Descriptor before it
// freezes and may adjust Header and Body. After Freeze the engine treats
// every field as read-only.
type Descriptor struct {
	// URL is the resolved absolute target.
	URL *url.URL

	// Method is the upper-cased HTTP method, never empty.
	Method string

	// Header holds the request headers. Owned by the descriptor; never
	// shared with any Options layer.
	Header http.Header

	// Body is the buffered request body, nil for none. Stream-mode bodies
	// supplied through the writable side bypass this field.
	Body []byte

	// Username and Password are basic-auth credentials, either extracted
	// from the URL or set explicitly.
	Username string
	Password string

	// Timeout holds the resolved per-phase budgets.
	Timeout Timeouts

	// Redirect behavior.
	FollowRedirect  bool
	MaxRedirects    int
	MethodRewriting bool

	// Response handling.
	ThrowHTTPErrors bool
	ResponseType    ResponseType
	ResolveBodyOnly bool
	Decompress      bool

	// Hooks is the concatenated hook registry for this request.
	Hooks Hooks

	// Context is the opaque caller value, untouched by the engine.
	Context any

	// Collaborators. Nil fields fall back to the client's.
	Cache     Cache
	Transport http.RoundTripper
	CookieJar http.CookieJar

	retry retryConfig

	// layers is the option chain this descriptor was merged from; retry
	// directives re-merge through it.
	layers []Options

	frozen bool
}

// Freeze marks the descriptor immutable. Called by the engine after the
// BeforeRequest chain has run; freezing twice is a no-op.
func (d *Descriptor) Freeze() { d.frozen = true }

// Frozen reports whether the descriptor has been frozen.
func (d *Descriptor) Frozen() bool { return d.frozen }

// clone returns an unfrozen deep-enough copy: URL, Header and Body get
// fresh backing storage, collaborator handles are shared.
func (d *Descriptor) clone() *Descriptor {
	next := *d
	next.frozen = false
	if d.URL != nil {
		u := *d.URL
		next.URL = &u
	}
	next.Header = cloneHeader(d.Header)
	if d.Body != nil {
		next.Body = append([]byte(nil), d.Body...)
	}
	next.layers = append([]Options(nil), d.layers...)
	return &next
}

// hasBody reports whether a body option was set on this descriptor.
func (d *Descriptor) hasBody() bool { return d.Body != nil }

func cloneHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, vs := range h {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
