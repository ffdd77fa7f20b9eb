package reqx

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockReq(t *testing.T, method, rawurl string) *http.Request {
	t.Helper()
	u, err := url.Parse(rawurl)
	require.NoError(t, err)
	return &http.Request{Method: method, URL: u, Header: http.Header{}}
}

func TestMockTransport_QueueDrainsInOrder(t *testing.T) {
	mock := NewMockTransport().
		Enqueue(500, "first").
		Enqueue(200, "second").
		StubResponse(204, "fallback")

	read := func() (int, string) {
		resp, err := mock.RoundTrip(mockReq(t, "GET", "https://h/x"))
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return resp.StatusCode, string(body)
	}

	status, body := read()
	assert.Equal(t, 500, status)
	assert.Equal(t, "first", body)

	status, body = read()
	assert.Equal(t, 200, status)
	assert.Equal(t, "second", body)

	// Queue exhausted, the default stub takes over.
	status, _ = read()
	assert.Equal(t, 204, status)
}

func TestMockTransport_StubsMatchByPredicate(t *testing.T) {
	mock := NewMockTransport().
		StubPath("/users", 200, "users").
		StubResponse(404, "nope")

	resp, err := mock.RoundTrip(mockReq(t, "GET", "https://h/users"))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = mock.RoundTrip(mockReq(t, "GET", "https://h/other"))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestMockTransport_ErrorsAndRecording(t *testing.T) {
	boom := errors.New("dial refused by test")
	mock := NewMockTransport().
		EnqueueError(boom).
		Enqueue(200, "ok")

	_, err := mock.RoundTrip(mockReq(t, "GET", "https://h/a"))
	assert.ErrorIs(t, err, boom)

	_, err = mock.RoundTrip(mockReq(t, "POST", "https://h/b"))
	require.NoError(t, err)

	assert.Equal(t, 2, mock.CallCount())
	reqs := mock.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "/a", reqs[0].URL.Path)
	assert.Equal(t, "POST", reqs[1].Method)
}

func TestMockTransport_NoStubFails(t *testing.T) {
	_, err := NewMockTransport().RoundTrip(mockReq(t, "GET", "https://h/x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no stub")
}
