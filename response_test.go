package reqx

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func respWithBody(status int, body string, header http.Header) *Response {
	if header == nil {
		header = http.Header{}
	}
	return &Response{
		Response: &http.Response{StatusCode: status, Header: header},
		body:     []byte(body),
	}
}

func TestResponse_BodyAccessors(t *testing.T) {
	resp := respWithBody(200, `{"name":"bob"}`, nil)

	assert.Equal(t, []byte(`{"name":"bob"}`), resp.Bytes())
	assert.Equal(t, `{"name":"bob"}`, resp.Text())

	var out struct {
		Name string `json:"name"`
	}
	require.NoError(t, resp.JSON(&out))
	assert.Equal(t, "bob", out.Name)
}

func TestResponse_JSONParseError(t *testing.T) {
	resp := respWithBody(200, "<html>nope</html>", nil)

	err := resp.JSON(&struct{}{})
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, []byte("<html>nope</html>"), perr.Body)
	assert.Same(t, resp, perr.Response)
}

func TestResponse_IsSuccess(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{199, false},
		{200, true},
		{204, true},
		{299, true},
		{300, false},
		{404, false},
		{500, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, respWithBody(tt.status, "", nil).IsSuccess(), "status %d", tt.status)
	}
}

func TestResponse_RetryAfter(t *testing.T) {
	t.Run("given delta seconds, then the duration is parsed", func(t *testing.T) {
		resp := respWithBody(429, "", http.Header{"Retry-After": {"120"}})
		d, ok := resp.RetryAfter()
		require.True(t, ok)
		assert.Equal(t, 2*time.Minute, d)
	})

	t.Run("given an HTTP date, then the remaining wait is returned", func(t *testing.T) {
		when := time.Now().Add(90 * time.Second).UTC().Format(http.TimeFormat)
		resp := respWithBody(503, "", http.Header{"Retry-After": {when}})
		d, ok := resp.RetryAfter()
		require.True(t, ok)
		assert.InDelta(t, float64(90*time.Second), float64(d), float64(2*time.Second))
	})

	t.Run("given no header, then false", func(t *testing.T) {
		_, ok := respWithBody(503, "", nil).RetryAfter()
		assert.False(t, ok)
	})

	t.Run("given garbage, then false", func(t *testing.T) {
		resp := respWithBody(503, "", http.Header{"Retry-After": {"soonish"}})
		_, ok := resp.RetryAfter()
		assert.False(t, ok)
	})
}
