package reqx

import (
	"context"
)

// InitHook runs synchronously before normalization and may rewrite the raw
// per-call Options in place, e.g. to expand a custom shorthand into
// recognized fields. Init hooks never perform I/O.
type InitHook func(o *Options)

// BeforeRequestHook runs after normalization, immediately before an
// attempt is handed to the transport. It may mutate the not-yet-frozen
// descriptor (headers, body). Returning an error aborts the request.
type BeforeRequestHook func(ctx context.Context, d *Descriptor) error

// BeforeRedirectHook runs against the candidate descriptor for the next
// hop before it is finalized. resp is the redirect response that triggered
// the hop. A common use is stripping an Authorization header when the hop
// crosses origins; the engine leaves that policy to hooks.
type BeforeRedirectHook func(ctx context.Context, next *Descriptor, resp *Response) error

// BeforeRetryHook runs after a positive retry verdict and before the
// backoff wait. It may observe or override info.Delay. Returning an error
// aborts the retry and fails the request.
type BeforeRetryHook func(ctx context.Context, info *RetryInfo) error

// AfterResponseHook runs on every final (non-redirect) response. It may
// return a *RetryDirective to merge extra options and re-dispatch the
// request; directive-driven retries share the same attempt counter as
// network-level retries, so the retry limit bounds them too. Returning an
// error fails the request.
type AfterResponseHook func(ctx context.Context, resp *Response) (*RetryDirective, error)

// BeforeErrorHook runs on every terminal error before it surfaces, and may
// return a replacement error. It can change which error is thrown but can
// never suppress the failure: returning nil keeps the original error.
type BeforeErrorHook func(err error) error

// RetryDirective is returned from an AfterResponseHook to request another
// attempt with extra options merged in, for example refreshed
// credentials after a 401.
type RetryDirective struct {
	// Options is merged on top of the current descriptor's layers for the
	// re-dispatched attempt.
	Options Options
}

// Hooks holds the ordered callback chains for each lifecycle event.
// Within a phase, hooks run strictly in registration order, each completing
// before the next starts; a hook error short-circuits the rest of the
// phase. Across option layers the slices concatenate rather than replace.
type Hooks struct {
	Init           []InitHook
	BeforeRequest  []BeforeRequestHook
	BeforeRedirect []BeforeRedirectHook
	BeforeRetry    []BeforeRetryHook
	AfterResponse  []AfterResponseHook
	BeforeError    []BeforeErrorHook
}

// concat returns the concatenation of h and next, preserving order. The
// receiver is not modified; slices are copied so layers never share
// backing arrays.
func (h Hooks) concat(next Hooks) Hooks {
	return Hooks{
		Init:           concatHooks(h.Init, next.Init),
		BeforeRequest:  concatHooks(h.BeforeRequest, next.BeforeRequest),
		BeforeRedirect: concatHooks(h.BeforeRedirect, next.BeforeRedirect),
		BeforeRetry:    concatHooks(h.BeforeRetry, next.BeforeRetry),
		AfterResponse:  concatHooks(h.AfterResponse, next.AfterResponse),
		BeforeError:    concatHooks(h.BeforeError, next.BeforeError),
	}
}

func concatHooks[T any](a, b []T) []T {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make([]T, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

// runBeforeRequest executes the BeforeRequest chain in order.
func (h Hooks) runBeforeRequest(ctx context.Context, d *Descriptor) error {
	for _, hook := range h.BeforeRequest {
		if err := hook(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// runBeforeRedirect executes the BeforeRedirect chain in order.
func (h Hooks) runBeforeRedirect(ctx context.Context, next *Descriptor, resp *Response) error {
	for _, hook := range h.BeforeRedirect {
		if err := hook(ctx, next, resp); err != nil {
			return err
		}
	}
	return nil
}

// runBeforeRetry executes the BeforeRetry chain in order.
func (h Hooks) runBeforeRetry(ctx context.Context, info *RetryInfo) error {
	for _, hook := range h.BeforeRetry {
		if err := hook(ctx, info); err != nil {
			return err
		}
	}
	return nil
}

// runAfterResponse executes the AfterResponse chain in order. The first
// hook to return a directive short-circuits the rest of the chain: the
// re-dispatched request runs the full chain again on its own response.
func (h Hooks) runAfterResponse(ctx context.Context, resp *Response) (*RetryDirective, error) {
	for _, hook := range h.AfterResponse {
		directive, err := hook(ctx, resp)
		if err != nil {
			return nil, err
		}
		if directive != nil {
			return directive, nil
		}
	}
	return nil, nil
}

// runBeforeError filters a terminal error through the BeforeError chain.
// A hook returning a non-nil error replaces the current error for the
// hooks that follow. A panic-free guarantee is not attempted: hooks are
// trusted code.
func (h Hooks) runBeforeError(err error) error {
	for _, hook := range h.BeforeError {
		if next := hook(err); next != nil {
			err = next
		}
	}
	return err
}
