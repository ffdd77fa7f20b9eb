package reqx

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"sync"
)

// MockTransport is a configurable http.RoundTripper for tests. Responses
// can be stubbed per path, queued as an ordered sequence (useful for
// retry scenarios), or defaulted; every request is recorded for
// assertions.
type MockTransport struct {
	mu          sync.Mutex
	queue       []mockResult
	stubs       []mockStub
	defaultResp *mockResult
	requests    []*http.Request
}

type mockResult struct {
	status int
	header http.Header
	body   string
	err    error
}

type mockStub struct {
	matcher func(*http.Request) bool
	result  mockResult
}

func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// StubResponse makes every unmatched request return the given response.
func (m *MockTransport) StubResponse(statusCode int, body string) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultResp = &mockResult{status: statusCode, body: body}
	return m
}

// StubError makes every unmatched request fail with err.
func (m *MockTransport) StubError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultResp = &mockResult{err: err}
	return m
}

// Enqueue appends a response to the ordered queue. Queued responses are
// consumed first, one per request, before stubs are considered.
func (m *MockTransport) Enqueue(statusCode int, body string) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockResult{status: statusCode, body: body})
	return m
}

// EnqueueHeader appends a response with headers to the ordered queue.
func (m *MockTransport) EnqueueHeader(statusCode int, body string, header http.Header) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockResult{status: statusCode, body: body, header: header})
	return m
}

// EnqueueError appends a transport failure to the ordered queue.
func (m *MockTransport) EnqueueError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockResult{err: err})
	return m
}

// StubPath makes requests for path return the given response.
func (m *MockTransport) StubPath(path string, statusCode int, body string) *MockTransport {
	return m.StubFunc(func(req *http.Request) bool {
		return req.URL.Path == path
	}, statusCode, body)
}

// StubFunc makes requests matching the predicate return the given
// response.
func (m *MockTransport) StubFunc(matcher func(*http.Request) bool, statusCode int, body string) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, mockStub{
		matcher: matcher,
		result:  mockResult{status: statusCode, body: body},
	})
	return m
}

// Requests returns every request seen, in order.
func (m *MockTransport) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*http.Request(nil), m.requests...)
}

// CallCount returns the number of requests seen.
func (m *MockTransport) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// RoundTrip implements http.RoundTripper.
func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)

	var result *mockResult
	if len(m.queue) > 0 {
		result = &m.queue[0]
		m.queue = m.queue[1:]
	} else {
		for i := range m.stubs {
			if m.stubs[i].matcher(req) {
				result = &m.stubs[i].result
				break
			}
		}
		if result == nil {
			result = m.defaultResp
		}
	}
	m.mu.Unlock()

	if req.Body != nil {
		io.Copy(io.Discard, req.Body)
		req.Body.Close()
	}

	if result == nil {
		return nil, errors.New("reqx: mock transport: no stub for " + req.Method + " " + req.URL.String())
	}
	if result.err != nil {
		return nil, result.err
	}

	header := make(http.Header)
	for k, vs := range result.header {
		header[k] = append([]string(nil), vs...)
	}
	return &http.Response{
		StatusCode:    result.status,
		Status:        http.StatusText(result.status),
		Header:        header,
		Body:          io.NopCloser(bytes.NewBufferString(result.body)),
		ContentLength: int64(len(result.body)),
		Request:       req,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
	}, nil
}
