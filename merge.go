package reqx

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Merge folds option layers left to right into a single Options value,
// without validating or resolving. Merging is associative: folding in two
// steps yields the same result as one combined fold, with hook and
// listener slices always ending up as the in-order concatenation of every
// layer's.
//
// Per-field rules:
//   - scalars and handles: a later non-zero (non-nil) value replaces
//   - Header and SearchParams: key-wise merge; a key set to an explicit
//     empty non-nil slice deletes the accumulated key
//   - Body/JSON/Form: merge as a unit; a layer setting any of the three
//     clears the other two from the accumulated result
//   - Timeouts and Retry: field-wise with the same zero-inherits rule
//   - Hooks and OnEvent: concatenated
func Merge(layers ...Options) Options {
	var acc Options
	for _, layer := range layers {
		acc = mergeTwo(acc, layer)
	}
	return acc
}

func mergeTwo(acc, next Options) Options {
	if next.URL != "" {
		acc.URL = next.URL
	}
	if next.PrefixURL != "" {
		acc.PrefixURL = next.PrefixURL
	}
	if next.Method != "" {
		acc.Method = next.Method
	}
	acc.Header = mergeValueMap(acc.Header, next.Header)
	acc.SearchParams = url.Values(mergeValueMap(http.Header(acc.SearchParams), http.Header(next.SearchParams)))
	if next.Username != "" {
		acc.Username = next.Username
	}
	if next.Password != "" {
		acc.Password = next.Password
	}

	// The three body options displace each other as a group so that a
	// later layer's JSON cleanly overrides an earlier layer's Form.
	if next.Body != nil || next.JSON != nil || next.Form != nil {
		acc.Body, acc.JSON, acc.Form = next.Body, next.JSON, cloneValues(next.Form)
	}

	acc.Timeout = mergeTimeouts(acc.Timeout, next.Timeout)
	acc.Retry = mergeRetry(acc.Retry, next.Retry)

	if next.FollowRedirect != nil {
		acc.FollowRedirect = Bool(*next.FollowRedirect)
	}
	if next.MaxRedirects != nil {
		acc.MaxRedirects = Int(*next.MaxRedirects)
	}
	if next.MethodRewriting != nil {
		acc.MethodRewriting = Bool(*next.MethodRewriting)
	}
	if next.ThrowHTTPErrors != nil {
		acc.ThrowHTTPErrors = Bool(*next.ThrowHTTPErrors)
	}
	if next.ResponseType != "" {
		acc.ResponseType = next.ResponseType
	}
	if next.ResolveBodyOnly != nil {
		acc.ResolveBodyOnly = Bool(*next.ResolveBodyOnly)
	}
	if next.Decompress != nil {
		acc.Decompress = Bool(*next.Decompress)
	}

	acc.Hooks = acc.Hooks.concat(next.Hooks)
	acc.OnEvent = concatHooks(acc.OnEvent, next.OnEvent)

	if next.Context != nil {
		acc.Context = next.Context
	}
	if next.Cache != nil {
		acc.Cache = next.Cache
	}
	if next.Transport != nil {
		acc.Transport = next.Transport
	}
	if next.CookieJar != nil {
		acc.CookieJar = next.CookieJar
	}
	return acc
}

// mergeValueMap merges string-list maps key-wise. Values are copied, never
// shared with either input. An explicit empty non-nil slice in next
// deletes the key.
func mergeValueMap(acc, next http.Header) http.Header {
	if acc == nil && next == nil {
		return nil
	}
	out := make(http.Header, len(acc)+len(next))
	for k, vs := range acc {
		out[k] = append([]string(nil), vs...)
	}
	for k, vs := range next {
		if vs != nil && len(vs) == 0 {
			delete(out, k)
			continue
		}
		out[k] = append([]string(nil), vs...)
	}
	return out
}

func cloneValues(v url.Values) url.Values {
	if v == nil {
		return nil
	}
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

func mergeTimeouts(acc, next Timeouts) Timeouts {
	pick := func(a, b time.Duration) time.Duration {
		if b != 0 {
			return b
		}
		return a
	}
	return Timeouts{
		Lookup:        pick(acc.Lookup, next.Lookup),
		Connect:       pick(acc.Connect, next.Connect),
		SecureConnect: pick(acc.SecureConnect, next.SecureConnect),
		Socket:        pick(acc.Socket, next.Socket),
		Send:          pick(acc.Send, next.Send),
		Response:      pick(acc.Response, next.Response),
		Read:          pick(acc.Read, next.Read),
		Request:       pick(acc.Request, next.Request),
	}
}

func mergeRetry(acc, next *RetryOptions) *RetryOptions {
	if next == nil {
		return acc
	}
	out := RetryOptions{}
	if acc != nil {
		out = *acc
	}
	if next.Limit != nil {
		out.Limit = Int(*next.Limit)
	}
	if next.Methods != nil {
		out.Methods = append([]string(nil), next.Methods...)
	}
	if next.StatusCodes != nil {
		out.StatusCodes = append([]int(nil), next.StatusCodes...)
	}
	if next.Classifier != nil {
		out.Classifier = next.Classifier
	}
	out.Backoff = mergeBackoff(out.Backoff, next.Backoff)
	if next.CalculateDelay != nil {
		out.CalculateDelay = next.CalculateDelay
	}
	if next.RespectRetryAfter != nil {
		out.RespectRetryAfter = Bool(*next.RespectRetryAfter)
	}
	if next.MaxRetryAfter != 0 {
		out.MaxRetryAfter = next.MaxRetryAfter
	}
	return &out
}

// retryConfig is the resolved form of RetryOptions used by the engine.
type retryConfig struct {
	limit             int
	methods           map[string]bool
	statuses          map[int]bool
	classifier        RetryClassifier
	customClassifier  bool
	backoff           BackoffConfig
	calculateDelay    func(*RetryInfo) time.Duration
	respectRetryAfter bool
	maxRetryAfter     time.Duration
}

// normalize validates and resolves merged layers into a Descriptor. It is
// the only constructor of Descriptors: redirects and retry directives come
// back through it (or through Descriptor.clone for hop derivation), which
// is what keeps frozen descriptors immutable.
func normalize(layers ...Options) (*Descriptor, error) {
	o := Merge(layers...)

	if err := validate(&o); err != nil {
		return nil, err
	}

	u, err := resolveURL(o.URL, o.PrefixURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &UnsupportedProtocolError{Scheme: u.Scheme}
	}

	username, password := o.Username, o.Password
	if ui := u.User; ui != nil {
		if username == "" {
			username = ui.Username()
		}
		if password == "" {
			password, _ = ui.Password()
		}
		u.User = nil
	}

	if len(o.SearchParams) > 0 {
		q := u.Query()
		for k, vs := range o.SearchParams {
			q[k] = append([]string(nil), vs...)
		}
		u.RawQuery = q.Encode()
	}

	header := mergeValueMap(nil, o.Header)
	if header == nil {
		header = make(http.Header)
	}

	body, contentType, err := encodeBody(&o)
	if err != nil {
		return nil, err
	}
	if contentType != "" && header.Get("Content-Type") == "" {
		header.Set("Content-Type", contentType)
	}

	d := &Descriptor{
		URL:             u,
		Method:          resolveMethod(o.Method),
		Header:          header,
		Body:            body,
		Username:        username,
		Password:        password,
		Timeout:         resolveTimeouts(o.Timeout),
		FollowRedirect:  boolOr(o.FollowRedirect, true),
		MaxRedirects:    intOr(o.MaxRedirects, DefaultMaxRedirects),
		MethodRewriting: boolOr(o.MethodRewriting, true),
		ThrowHTTPErrors: boolOr(o.ThrowHTTPErrors, true),
		ResponseType:    resolveResponseType(o.ResponseType),
		ResolveBodyOnly: boolOr(o.ResolveBodyOnly, false),
		Decompress:      boolOr(o.Decompress, true),
		Hooks:           o.Hooks,
		Context:         o.Context,
		Cache:           o.Cache,
		Transport:       o.Transport,
		CookieJar:       o.CookieJar,
		retry:           resolveRetry(o.Retry, resolveTimeouts(o.Timeout).Request),
		layers:          append([]Options(nil), layers...),
	}
	return d, nil
}

func validate(o *Options) error {
	if o.URL == "" && o.PrefixURL == "" {
		return &ValidationError{Option: "url", Reason: "missing target URL"}
	}
	if o.Method != "" && strings.ContainsAny(o.Method, " \t\r\n/") {
		return &ValidationError{Option: "method", Reason: "not a valid HTTP method token"}
	}
	set := 0
	if o.Body != nil {
		set++
	}
	if o.JSON != nil {
		set++
	}
	if o.Form != nil {
		set++
	}
	if set > 1 {
		return &ValidationError{Option: "body", Reason: "body, json and form are mutually exclusive"}
	}
	if o.MaxRedirects != nil && *o.MaxRedirects < 0 {
		return &ValidationError{Option: "maxRedirects", Reason: "must not be negative"}
	}
	if o.Retry != nil && o.Retry.Limit != nil && *o.Retry.Limit < 0 {
		return &ValidationError{Option: "retry.limit", Reason: "must not be negative"}
	}
	switch o.ResponseType {
	case "", ResponseTypeText, ResponseTypeJSON, ResponseTypeBuffer:
	default:
		return &ValidationError{Option: "responseType", Reason: "unrecognized response type " + string(o.ResponseType)}
	}
	return nil
}

func resolveURL(raw, prefix string) (*url.URL, error) {
	if prefix == "" {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, &ValidationError{Option: "url", Reason: err.Error()}
		}
		return u, nil
	}
	base, err := url.Parse(prefix)
	if err != nil {
		return nil, &ValidationError{Option: "prefixUrl", Reason: err.Error()}
	}
	if raw == "" {
		return base, nil
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return nil, &ValidationError{Option: "url", Reason: err.Error()}
	}
	return base.ResolveReference(ref), nil
}

func resolveMethod(m string) string {
	if m == "" {
		return http.MethodGet
	}
	return strings.ToUpper(m)
}

func resolveResponseType(t ResponseType) ResponseType {
	if t == "" {
		return ResponseTypeText
	}
	return t
}

// resolveTimeouts applies the overall default. A negative Request value is
// the explicit "no overall bound" opt-out.
func resolveTimeouts(t Timeouts) Timeouts {
	switch {
	case t.Request == 0:
		t.Request = DefaultRequestTimeout
	case t.Request < 0:
		t.Request = 0
	}
	return t
}

// resolveRetry resolves the retry options against defaults. requestLimit
// is the overall request timeout, used as the Retry-After ceiling when no
// explicit MaxRetryAfter is set.
func resolveRetry(o *RetryOptions, requestLimit time.Duration) retryConfig {
	cfg := retryConfig{
		limit:             DefaultRetryLimit,
		methods:           toSet(DefaultRetryMethods),
		statuses:          toIntSet(DefaultRetryStatusCodes),
		classifier:        DefaultClassifier,
		backoff:           DefaultBackoffConfig(),
		respectRetryAfter: true,
		maxRetryAfter:     requestLimit,
	}
	if o == nil {
		return cfg
	}
	if o.Limit != nil {
		cfg.limit = *o.Limit
	}
	if o.Methods != nil {
		cfg.methods = toSet(o.Methods)
	}
	if o.StatusCodes != nil {
		cfg.statuses = toIntSet(o.StatusCodes)
	}
	if o.Classifier != nil {
		cfg.classifier = o.Classifier
		cfg.customClassifier = true
	}
	cfg.backoff = mergeBackoff(cfg.backoff, o.Backoff)
	cfg.calculateDelay = o.CalculateDelay
	if o.RespectRetryAfter != nil {
		cfg.respectRetryAfter = *o.RespectRetryAfter
	}
	if o.MaxRetryAfter != 0 {
		cfg.maxRetryAfter = o.MaxRetryAfter
	}
	return cfg
}

func toSet(ss []string) map[string]bool {
	out := make(map[string]bool, len(ss))
	for _, s := range ss {
		out[strings.ToUpper(s)] = true
	}
	return out
}

func toIntSet(ss []int) map[int]bool {
	out := make(map[int]bool, len(ss))
	for _, s := range ss {
		out[s] = true
	}
	return out
}

func boolOr(p *bool, def bool) bool {
	if p != nil {
		return *p
	}
	return def
}

func intOr(p *int, def int) int {
	if p != nil {
		return *p
	}
	return def
}
