package reqx

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
)

// engineState names the stages of a logical request. A request settles in
// exactly one of stateSucceeded or stateFailed.
type engineState int

const (
	stateInit engineState = iota
	stateNormalizing
	stateAwaitingTransport
	stateRedirecting
	stateRetrying
	stateSucceeded
	stateFailed
)

func (s engineState) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateNormalizing:
		return "normalizing"
	case stateAwaitingTransport:
		return "awaitingTransport"
	case stateRedirecting:
		return "redirecting"
	case stateRetrying:
		return "retrying"
	case stateSucceeded:
		return "succeeded"
	case stateFailed:
		return "failed"
	}
	return "unknown"
}

// engine executes one logical request: a single settlement built from any
// number of physical attempts and redirect hops. It is created per
// request and never reused.
type engine struct {
	client *Client
	id     uuid.UUID
	sink   *eventSink
	state  engineState

	// attempts is the number of the attempt currently in flight.
	attempts int

	// streaming disables response buffering, afterResponse hooks and
	// response-triggered retries; the terminal exchange is handed to the
	// caller with its body still live.
	streaming bool

	// requestBody, when set, replaces the descriptor body with a
	// caller-supplied reader. Such a body can be sent once, so no
	// attempt after the first is possible.
	requestBody io.Reader
}

func newEngine(c *Client) *engine {
	return &engine{
		client: c,
		id:     uuid.New(),
		sink:   newEventSink(nil),
		state:  stateInit,
	}
}

// run drives the request to settlement. Every terminal error has passed
// through the beforeError hooks and is wrapped in a *RequestError unless
// it already is one. No events are emitted after run returns, except
// download progress on a streaming body still being read.
func (e *engine) run(ctx context.Context, layers []Options) (*Response, error) {
	resp, d, err := e.execute(ctx, layers)
	if err != nil {
		e.state = stateFailed
		err = e.settleError(d, err)
	} else {
		e.state = stateSucceeded
	}
	if !e.streaming {
		e.sink.close()
	}
	return resp, err
}

func (e *engine) execute(ctx context.Context, layers []Options) (*Response, *Descriptor, error) {
	e.state = stateNormalizing

	merged := Merge(e.client.defaults, Merge(layers...))
	for _, init := range merged.Hooks.Init {
		init(&merged)
	}

	d, err := normalize(merged)
	if err != nil {
		return nil, nil, err
	}
	for _, l := range merged.OnEvent {
		e.sink.add(l)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	// The request phase spans every attempt and redirect hop.
	if limit := d.Timeout.Request; limit > 0 {
		t := time.AfterFunc(limit, func() {
			cancel(&TimeoutError{Phase: PhaseRequest, Threshold: limit})
		})
		defer t.Stop()
	}

	ctx, span := e.client.instr.start(ctx, d)
	resp, d, err := e.loop(ctx, d, layers)
	e.client.instr.end(span, resp, err)
	return resp, d, err
}

// loop is the attempt state machine. One iteration is one transport
// exchange; redirect hops and retries feed back into the top. The retry
// counter is shared across hops and with afterResponse retry directives.
func (e *engine) loop(ctx context.Context, d *Descriptor, layers []Options) (*Response, *Descriptor, error) {
	var chain []string
	attempt := 1
	bo := d.retry.backoff.newBackOff()

	for {
		e.attempts = attempt
		if err := d.Hooks.runBeforeRequest(ctx, d); err != nil {
			return nil, d, err
		}
		d.Freeze()

		if cached, ok := e.fromCache(d); ok {
			cached.RequestID = e.id
			cached.RedirectChain = chain
			cached.Attempt = attempt
			return cached, d, nil
		}

		e.state = stateAwaitingTransport
		ex, err := e.attempt(ctx, d, attempt)

		if err != nil {
			if isCancel(err) {
				return nil, d, err
			}
			if !e.retryable() || !shouldRetry(d, attempt, nil, err) {
				return nil, d, err
			}
			next, werr := e.backOffOnce(ctx, d, attempt, bo, nil, err)
			if werr != nil {
				return nil, d, werr
			}
			if next == nil {
				return nil, d, err
			}
			d = next
			attempt++
			e.state = stateRetrying
			continue
		}

		// Redirects are decided on headers alone, before the response
		// hooks, so afterResponse only ever sees the end of the chain.
		if d.FollowRedirect && followableRedirect(ex.resp) {
			if len(chain) >= d.MaxRedirects {
				ex.discard()
				return nil, d, &MaxRedirectsError{Chain: chain, Limit: d.MaxRedirects}
			}
			hop, err := e.redirectHop(ctx, d, ex, attempt, &chain)
			if err != nil {
				return nil, d, err
			}
			d = hop
			e.state = stateRedirecting
			continue
		}

		if e.streaming {
			return e.settleStream(d, ex, attempt, chain)
		}

		resp, err := e.buffer(d, ex, attempt, chain)
		if err != nil {
			if !shouldRetry(d, attempt, nil, err) {
				return nil, d, err
			}
			next, werr := e.backOffOnce(ctx, d, attempt, bo, nil, err)
			if werr != nil {
				return nil, d, werr
			}
			if next == nil {
				return nil, d, err
			}
			d = next
			attempt++
			e.state = stateRetrying
			continue
		}
		e.emit(Event{Type: EventResponse, Attempt: attempt, Response: resp})
		e.client.logResponse(d, resp)

		directive, err := d.Hooks.runAfterResponse(ctx, resp)
		if err != nil {
			return nil, d, err
		}
		// A directive past the retry bound is ignored and the response
		// resolves on its own terms.
		if directive != nil && attempt <= d.retry.limit {
			redone, err := normalize(append(append([]Options{e.client.defaults}, layers...), directive.Options)...)
			if err != nil {
				return nil, d, err
			}
			e.emit(Event{Type: EventRetry, Attempt: attempt, Response: resp})
			attempt++
			d = redone
			e.state = stateRetrying
			continue
		}

		if !resp.IsSuccess() && shouldRetry(d, attempt, resp.Response, nil) {
			next, werr := e.backOffOnce(ctx, d, attempt, bo, resp, nil)
			if werr != nil {
				return nil, d, werr
			}
			if next != nil {
				d = next
				attempt++
				e.state = stateRetrying
				continue
			}
		}

		e.toCache(d, resp)

		if d.ThrowHTTPErrors && !resp.IsSuccess() {
			return resp, d, &HTTPError{Response: resp}
		}
		return resp, d, nil
	}
}

// retryable reports whether any attempt after the first is possible. A
// caller-streamed request body can only be sent once.
func (e *engine) retryable() bool {
	return e.requestBody == nil
}

// backOffOnce runs the retry delay pipeline and beforeRetry hooks. It
// returns the descriptor for the next attempt, or nil when the retry is
// abandoned because the delay was vetoed; the caller then settles with
// the attempt's own error. A beforeRetry hook error or a cancellation
// while waiting returns a non-nil error that supersedes the attempt's.
func (e *engine) backOffOnce(ctx context.Context, d *Descriptor, attempt int, bo backoff.BackOff, resp *Response, cause error) (*Descriptor, error) {
	info := &RetryInfo{
		Descriptor: d,
		Attempt:    attempt,
		Err:        cause,
		Response:   resp,
	}
	delay, ok := retryDelay(d.retry, info, bo.NextBackOff())
	if !ok {
		return nil, nil
	}
	if err := d.Hooks.runBeforeRetry(ctx, info); err != nil {
		return nil, err
	}

	e.emit(Event{Type: EventRetry, Attempt: attempt, Delay: delay, Err: cause, Response: resp})
	e.client.instr.retry(ctx, attempt, delay)
	e.client.logRetry(d, attempt, delay, cause)

	select {
	case <-ctx.Done():
		return nil, resolveCause(ctx, context.Cause(ctx))
	case <-time.After(delay):
	}
	return d.clone(), nil
}

// exchange is one live transport round trip. The caller owns the body:
// discard for intermediate hops, buffer or hand off for the terminal one.
type exchange struct {
	ctx    context.Context
	resp   *http.Response
	timers *phaseTimers
	tracer *attemptTracer
	cancel context.CancelCauseFunc
}

// discard drains and releases an intermediate exchange so its connection
// can be reused.
func (ex *exchange) discard() {
	io.Copy(io.Discard, io.LimitReader(ex.resp.Body, 1<<20))
	ex.resp.Body.Close()
	ex.timers.stopAll()
	ex.cancel(nil)
}

// attempt performs one transport exchange. On success the response body
// is still live and the phase timers still armed.
func (e *engine) attempt(ctx context.Context, d *Descriptor, attempt int) (*exchange, error) {
	actx, acancel := context.WithCancelCause(ctx)

	timers := newPhaseTimers(acancel, d.Timeout)
	tracer := newAttemptTracer(timers)
	actx = httptrace.WithClientTrace(actx, tracer.clientTrace())

	req, err := e.buildRequest(actx, d, timers)
	if err != nil {
		timers.stopAll()
		acancel(nil)
		return nil, err
	}

	e.emit(Event{Type: EventRequest, Attempt: attempt, To: d.URL.String()})
	e.client.logRequest(d, req, attempt)

	resp, err := e.transportFor(d).RoundTrip(req)
	if err != nil {
		err = resolveCause(actx, err)
		timers.stopAll()
		acancel(nil)
		return nil, err
	}
	return &exchange{ctx: actx, resp: resp, timers: timers, tracer: tracer, cancel: acancel}, nil
}

// redirectHop consumes a redirecting exchange and derives the next hop.
func (e *engine) redirectHop(ctx context.Context, d *Descriptor, ex *exchange, attempt int, chain *[]string) (*Descriptor, error) {
	resp := &Response{
		Response:   ex.resp,
		RequestID:  e.id,
		Descriptor: d,
		Attempt:    attempt,
		Trace:      ex.tracer.traceInfo(),
	}
	next, err := nextDescriptor(d, ex.resp)
	ex.discard()
	if err != nil {
		return nil, err
	}
	if err := d.Hooks.runBeforeRedirect(ctx, next, resp); err != nil {
		return nil, err
	}
	*chain = append(*chain, next.URL.String())
	e.emit(Event{Type: EventRedirect, Attempt: attempt, From: d.URL.String(), To: next.URL.String(), Response: resp})
	e.client.instr.redirect(ctx, d.URL, next.URL)
	e.client.logRedirect(d, next, resp)
	return next, nil
}

// buffer drains the terminal exchange into a fully buffered Response.
func (e *engine) buffer(d *Descriptor, ex *exchange, attempt int, chain []string) (*Response, error) {
	body, err := e.readBody(d, ex)
	ex.timers.stopAll()
	ex.cancel(nil)
	if err != nil {
		ex.resp.Body.Close()
		return nil, resolveCause(ex.ctx, err)
	}
	return &Response{
		Response:      ex.resp,
		body:          body,
		RequestID:     e.id,
		Descriptor:    d,
		RedirectChain: append([]string(nil), chain...),
		Attempt:       attempt,
		Trace:         ex.tracer.traceInfo(),
	}, nil
}

// settleStream hands the terminal exchange to a streaming caller with the
// body still live. ThrowHTTPErrors still applies; the error response body
// is buffered so the error is self-contained.
func (e *engine) settleStream(d *Descriptor, ex *exchange, attempt int, chain []string) (*Response, *Descriptor, error) {
	resp := &Response{
		Response:      ex.resp,
		RequestID:     e.id,
		Descriptor:    d,
		RedirectChain: append([]string(nil), chain...),
		Attempt:       attempt,
		Trace:         ex.tracer.traceInfo(),
	}

	if d.ThrowHTTPErrors && !(ex.resp.StatusCode >= 200 && ex.resp.StatusCode <= 299) {
		body, _ := e.readBody(d, ex)
		ex.timers.stopAll()
		ex.cancel(nil)
		ex.resp.Body.Close()
		resp.body = body
		return nil, d, &HTTPError{Response: resp}
	}

	live := e.liveBody(d, ex)
	resp.Response.Body = live
	e.emit(Event{Type: EventResponse, Attempt: attempt, Response: resp})
	e.client.logResponse(d, resp)
	return resp, d, nil
}

// liveBody wraps a streaming exchange body so that reads feed progress
// events and the socket timer, gzip is transparently decoded, and closing
// releases the attempt.
func (e *engine) liveBody(d *Descriptor, ex *exchange) io.ReadCloser {
	var src io.ReadCloser = newCountingReader(ex.resp.Body, ex.resp.ContentLength, func(transferred, total int64) {
		ex.timers.touchSocket()
		e.emit(Event{Type: EventDownloadProgress, Progress: Progress{Transferred: transferred, Total: total}})
	})
	if d.Decompress && ex.resp.Header.Get("Content-Encoding") == "gzip" {
		src = &gzipBody{raw: src}
		ex.resp.Header.Del("Content-Encoding")
		ex.resp.ContentLength = -1
	}
	return &releaseOnClose{ReadCloser: src, ex: ex, sink: e.sink}
}

type releaseOnClose struct {
	io.ReadCloser
	ex   *exchange
	sink *eventSink
}

func (r *releaseOnClose) Close() error {
	err := r.ReadCloser.Close()
	r.ex.timers.stopAll()
	r.ex.cancel(nil)
	r.sink.close()
	return err
}

// gzipBody lazily initializes the gzip reader on first read, since the
// header bytes may not have arrived yet when the stream is handed off.
type gzipBody struct {
	raw io.ReadCloser
	gz  *gzip.Reader
}

func (g *gzipBody) Read(p []byte) (int, error) {
	if g.gz == nil {
		gz, err := gzip.NewReader(g.raw)
		if err != nil {
			return 0, err
		}
		g.gz = gz
	}
	return g.gz.Read(p)
}

func (g *gzipBody) Close() error {
	if g.gz != nil {
		g.gz.Close()
	}
	return g.raw.Close()
}

// readBody drains an exchange body to EOF under the read and socket
// timers, decompressing gzip payloads when requested.
func (e *engine) readBody(d *Descriptor, ex *exchange) ([]byte, error) {
	var src io.ReadCloser = newCountingReader(ex.resp.Body, ex.resp.ContentLength, func(transferred, total int64) {
		ex.timers.touchSocket()
		e.emit(Event{Type: EventDownloadProgress, Progress: Progress{Transferred: transferred, Total: total}})
	})

	if d.Decompress && ex.resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(src)
		if err != nil {
			src.Close()
			return nil, err
		}
		body, err := io.ReadAll(gz)
		gz.Close()
		src.Close()
		if err != nil {
			return nil, err
		}
		ex.resp.Header.Del("Content-Encoding")
		ex.resp.Header.Del("Content-Length")
		ex.resp.ContentLength = int64(len(body))
		e.storeCookies(d, ex.resp)
		return body, nil
	}

	body, err := io.ReadAll(src)
	if cerr := src.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}
	e.storeCookies(d, ex.resp)
	return body, nil
}

func (e *engine) storeCookies(d *Descriptor, resp *http.Response) {
	if jar := d.CookieJar; jar != nil {
		if cookies := resp.Cookies(); len(cookies) > 0 {
			jar.SetCookies(d.URL, cookies)
		}
	}
}

func (e *engine) buildRequest(ctx context.Context, d *Descriptor, timers *phaseTimers) (*http.Request, error) {
	var body io.Reader
	switch {
	case e.requestBody != nil:
		body = newCountingBodyReader(e.requestBody, -1, func(transferred, total int64) {
			timers.touchSocket()
			e.emit(Event{Type: EventUploadProgress, Progress: Progress{Transferred: transferred, Total: total}})
		})
	case d.hasBody():
		payload := d.Body
		body = newCountingBodyReader(bytes.NewReader(payload), int64(len(payload)), func(transferred, total int64) {
			timers.touchSocket()
			e.emit(Event{Type: EventUploadProgress, Progress: Progress{Transferred: transferred, Total: total}})
		})
	}

	req, err := http.NewRequestWithContext(ctx, d.Method, d.URL.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header = cloneHeader(d.Header)
	if e.requestBody == nil && d.hasBody() {
		req.ContentLength = int64(len(d.Body))
		payload := d.Body
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(payload)), nil
		}
	}
	if d.Username != "" || d.Password != "" {
		req.SetBasicAuth(d.Username, d.Password)
	}
	if req.Header.Get("Accept-Encoding") == "" {
		if d.Decompress {
			req.Header.Set("Accept-Encoding", "gzip")
		} else {
			req.Header.Set("Accept-Encoding", "identity")
		}
	}
	if jar := d.CookieJar; jar != nil {
		for _, c := range jar.Cookies(d.URL) {
			req.AddCookie(c)
		}
	}
	return req, nil
}

func (e *engine) transportFor(d *Descriptor) http.RoundTripper {
	if d.Transport != nil {
		return d.Transport
	}
	return e.client.transport
}

// resolveCause maps transport failures whose real cause lives in the
// context (a fired phase timer, a caller cancellation) back to the typed
// error the caller should see.
func resolveCause(ctx context.Context, err error) error {
	cause := context.Cause(ctx)
	var te *TimeoutError
	if errors.As(cause, &te) {
		return te
	}
	var ce *CancelError
	if errors.As(cause, &ce) {
		return ce
	}
	if errors.As(err, &te) || errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return &CancelError{Err: err}
	}
	return err
}

// settleError wraps the terminal error and runs the beforeError hooks.
func (e *engine) settleError(d *Descriptor, err error) error {
	if d != nil {
		err = wrapRequestError(d.Method, d.URL, e.attempts, err)
		err = d.Hooks.runBeforeError(err)
	}
	e.client.logError(d, err)
	return err
}

func (e *engine) emit(ev Event) {
	ev.RequestID = e.id
	e.sink.emit(ev)
}

func (e *engine) fromCache(d *Descriptor) (*Response, bool) {
	if e.streaming || d.Cache == nil || (d.Method != http.MethodGet && d.Method != http.MethodHead) {
		return nil, false
	}
	return cacheLookup(d)
}

func (e *engine) toCache(d *Descriptor, resp *Response) {
	if d.Cache == nil || d.Method != http.MethodGet || !resp.IsSuccess() {
		return
	}
	cacheStore(d, resp)
}
