package reqx

import (
	"context"
	"errors"
	"sync/atomic"
)

// Promise is the buffered consumption handle for an in-flight request.
// The request runs in its own goroutine; every accessor blocks until
// settlement and then returns the same outcome on every call.
//
//	p := client.Start(ctx, reqx.Options{URL: "https://api.example.com/users"})
//	var users []User
//	if err := p.JSON(&users); err != nil {
//	    return err
//	}
type Promise struct {
	eng    *engine
	cancel context.CancelCauseFunc

	done     chan struct{}
	resp     *Response
	err      error
	canceled atomic.Bool
}

func newPromise(c *Client, ctx context.Context, layers []Options) *Promise {
	ctx, cancel := context.WithCancelCause(ctx)
	p := &Promise{
		eng:    newEngine(c),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		p.resp, p.err = p.eng.run(ctx, layers)
		cancel(nil)
		close(p.done)
	}()
	return p
}

// Response blocks until settlement and returns the buffered response.
func (p *Promise) Response() (*Response, error) {
	<-p.done
	return p.resp, p.err
}

// Wait blocks until settlement and returns the terminal error, if any.
func (p *Promise) Wait() error {
	<-p.done
	return p.err
}

// Done is closed when the request has settled.
func (p *Promise) Done() <-chan struct{} {
	return p.done
}

// Bytes blocks until settlement and returns the response body.
func (p *Promise) Bytes() ([]byte, error) {
	resp, err := p.Response()
	if err != nil {
		return nil, err
	}
	return resp.Bytes(), nil
}

// Text blocks until settlement and returns the response body as a string.
func (p *Promise) Text() (string, error) {
	resp, err := p.Response()
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// JSON blocks until settlement and decodes the response body into v.
func (p *Promise) JSON(v any) error {
	resp, err := p.Response()
	if err != nil {
		return err
	}
	return resp.JSON(v)
}

// Result blocks until settlement. With ResolveBodyOnly set it returns the
// body rendered per the descriptor's ResponseType; otherwise it returns
// the *Response itself.
func (p *Promise) Result() (any, error) {
	resp, err := p.Response()
	if err != nil {
		return nil, err
	}
	if resp.Descriptor == nil || !resp.Descriptor.ResolveBodyOnly {
		return resp, nil
	}
	switch resp.Descriptor.ResponseType {
	case ResponseTypeBuffer:
		return resp.Bytes(), nil
	case ResponseTypeJSON:
		var v any
		if err := resp.JSON(&v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return resp.Text(), nil
	}
}

// Cancel aborts the request. The promise settles with exactly one
// *CancelError; cancelling an already settled or already cancelled
// promise is a no-op.
func (p *Promise) Cancel() {
	if !p.canceled.CompareAndSwap(false, true) {
		return
	}
	select {
	case <-p.done:
		return
	default:
	}
	p.cancel(&CancelError{Err: context.Canceled})
}

// IsCanceled reports whether the promise was cancelled, either via
// Cancel or because it settled with a *CancelError.
func (p *Promise) IsCanceled() bool {
	if p.canceled.Load() {
		return true
	}
	select {
	case <-p.done:
		var ce *CancelError
		return errors.As(p.err, &ce)
	default:
		return false
	}
}

// On registers a listener for this request's lifecycle events. Listeners
// added after settlement never fire.
func (p *Promise) On(l EventListener) *Promise {
	p.eng.sink.add(l)
	return p
}
