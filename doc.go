// Package reqx is a general-purpose HTTP(S) request engine with layered
// options, a hook lifecycle, per-phase timeouts, retries and redirect
// handling, consumable as a buffered promise or a duplex stream.
//
// # Features
//
//   - Layered option merging: client defaults, Extend layers and per-call
//     options fold into one immutable request descriptor
//   - Hook lifecycle: init, beforeRequest, beforeRedirect, beforeRetry,
//     afterResponse and beforeError
//   - Per-phase timeouts (lookup, connect, secureConnect, socket, send,
//     response, read) plus an overall request budget
//   - Retries with exponential backoff, jitter and Retry-After support
//   - Redirect following with browser-style method rewriting
//   - OpenTelemetry tracing and metrics, zerolog debug output
//   - Opt-in circuit breaker, rate limiting and request coalescing
//
// # Quick Start
//
//	client := reqx.New(
//	    reqx.WithDefaults(reqx.Options{PrefixURL: "https://api.example.com"}),
//	)
//
//	// Buffered GET
//	resp, err := client.Get(ctx, "/users")
//
//	// POST with a JSON body, decoded response
//	var created User
//	resp, err := client.Post(ctx, "/users", reqx.Options{JSON: newUser})
//	if err == nil {
//	    err = resp.JSON(&created)
//	}
//
// # Promises and Streams
//
// Start returns without waiting; accessors block until settlement:
//
//	p := client.Start(ctx, reqx.Options{URL: "https://api.example.com/report"})
//	defer p.Cancel()
//	body, err := p.Bytes()
//
// Stream reads the response body off the wire instead of buffering, and
// exposes a writable side for the request body when no body option is
// set:
//
//	s := client.Stream(ctx, reqx.Options{URL: url})
//	defer s.Close()
//	_, err := io.Copy(dst, s)
//
// # Errors
//
// Failures settle as *RequestError wrapping a more specific cause:
// *TimeoutError with the phase that fired, *HTTPError carrying the
// response, *MaxRedirectsError with the chain, *CancelError, *ParseError
// or *ValidationError. All compose with errors.As.
package reqx
