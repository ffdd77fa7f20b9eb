package reqx

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/goccy/go-json"
)

// encodeBody turns whichever of Body/JSON/Form is set into the byte
// payload carried by the Descriptor, together with the implied content
// type. Mutual exclusion has already been validated.
func encodeBody(o *Options) ([]byte, string, error) {
	switch {
	case o.JSON != nil:
		b, err := json.Marshal(o.JSON)
		if err != nil {
			return nil, "", &ValidationError{Option: "json", Reason: err.Error()}
		}
		return b, "application/json", nil
	case o.Form != nil:
		return []byte(o.Form.Encode()), "application/x-www-form-urlencoded", nil
	case o.Body != nil:
		switch v := o.Body.(type) {
		case string:
			return []byte(v), "", nil
		case []byte:
			return append([]byte(nil), v...), "", nil
		case io.Reader:
			b, err := io.ReadAll(v)
			if err != nil {
				return nil, "", &ValidationError{Option: "body", Reason: err.Error()}
			}
			return b, "", nil
		default:
			return nil, "", &ValidationError{Option: "body", Reason: fmt.Sprintf("unsupported body type %T", v)}
		}
	}
	return nil, "", nil
}

// countingReader wraps a response body, reporting bytes read to onRead
// after every successful read. The engine uses it to feed download
// progress events and to reset the socket idle timer.
type countingReader struct {
	r           io.ReadCloser
	transferred atomic.Int64
	total       int64
	onRead      func(transferred, total int64)
}

func newCountingReader(r io.ReadCloser, total int64, onRead func(transferred, total int64)) *countingReader {
	return &countingReader{r: r, total: total, onRead: onRead}
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		t := c.transferred.Add(int64(n))
		if c.onRead != nil {
			c.onRead(t, c.total)
		}
	}
	return n, err
}

func (c *countingReader) Close() error { return c.r.Close() }

// countingReaderAt mirrors countingReader for request bodies. The
// transport reads the request body, so the hook fires on upload bytes.
type countingBodyReader struct {
	r           io.Reader
	transferred atomic.Int64
	total       int64
	onRead      func(transferred, total int64)
}

func newCountingBodyReader(r io.Reader, total int64, onRead func(transferred, total int64)) *countingBodyReader {
	return &countingBodyReader{r: r, total: total, onRead: onRead}
}

func (c *countingBodyReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		t := c.transferred.Add(int64(n))
		if c.onRead != nil {
			c.onRead(t, c.total)
		}
	}
	return n, err
}
