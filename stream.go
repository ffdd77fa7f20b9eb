package reqx

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
)

// Stream is the streaming consumption handle for an in-flight request.
// The response body is read incrementally from the wire rather than
// buffered; the writable side carries the request body when no body
// option was set.
//
//	s := client.Stream(ctx, reqx.Options{URL: url, Method: "POST"})
//	go func() {
//	    io.Copy(s, file)
//	    s.CloseWrite()
//	}()
//	io.Copy(dst, s)
//	s.Close()
//
// A stream whose request carries a caller-written body is never retried:
// the body bytes are gone once sent.
type Stream struct {
	eng    *engine
	cancel context.CancelCauseFunc

	done chan struct{}
	resp *Response
	err  error

	// pw is the write side of the request body pipe, nil when the
	// request body came from an option.
	pw *io.PipeWriter

	mu          sync.Mutex
	writeClosed bool
	destroyed   atomic.Bool
}

func newStream(c *Client, ctx context.Context, layers []Options) *Stream {
	ctx, cancel := context.WithCancelCause(ctx)
	s := &Stream{
		eng:    newEngine(c),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.eng.streaming = true

	merged := Merge(c.defaults, Merge(layers...))
	if merged.Body == nil && merged.JSON == nil && merged.Form == nil {
		pr, pw := io.Pipe()
		s.pw = pw
		s.eng.requestBody = pr
	}

	go func() {
		s.resp, s.err = s.eng.run(ctx, layers)
		if s.err != nil {
			cancel(nil)
			s.eng.sink.close()
		}
		close(s.done)
	}()
	return s
}

// Write sends request body bytes. It returns ErrBodyConflict when the
// request already has a body from an option, and ErrStreamClosed after
// CloseWrite or Close.
func (s *Stream) Write(p []byte) (int, error) {
	if s.pw == nil {
		return 0, ErrBodyConflict
	}
	s.mu.Lock()
	closed := s.writeClosed
	s.mu.Unlock()
	if closed {
		return 0, ErrStreamClosed
	}
	return s.pw.Write(p)
}

// CloseWrite signals end of the request body. The server will not see
// EOF until this is called, so a writable stream that skips it stalls.
func (s *Stream) CloseWrite() error {
	if s.pw == nil {
		return nil
	}
	s.mu.Lock()
	if s.writeClosed {
		s.mu.Unlock()
		return nil
	}
	s.writeClosed = true
	s.mu.Unlock()
	return s.pw.Close()
}

// Read blocks until response headers arrive, then reads body bytes as
// they come off the wire.
func (s *Stream) Read(p []byte) (int, error) {
	<-s.done
	if s.err != nil {
		return 0, s.err
	}
	return s.resp.Response.Body.Read(p)
}

// Response blocks until response headers arrive.
func (s *Stream) Response() (*Response, error) {
	<-s.done
	return s.resp, s.err
}

// Close releases the stream: the write side is closed, the live body is
// drained no further, and the attempt's resources are released.
func (s *Stream) Close() error {
	s.CloseWrite()
	<-s.done
	if s.resp != nil {
		return s.resp.Response.Body.Close()
	}
	return nil
}

// Destroy aborts the request immediately. The stream settles with a
// *CancelError; destroying twice is a no-op.
func (s *Stream) Destroy() {
	if !s.destroyed.CompareAndSwap(false, true) {
		return
	}
	s.cancel(&CancelError{Err: context.Canceled})
	if s.pw != nil {
		s.pw.CloseWithError(ErrStreamClosed)
	}
	go func() {
		<-s.done
		if s.resp != nil {
			s.resp.Response.Body.Close()
		}
	}()
}

// On registers a listener for this request's lifecycle events.
func (s *Stream) On(l EventListener) *Stream {
	s.eng.sink.add(l)
	return s
}
