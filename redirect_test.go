package reqx

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redirectResp(status int, location string) *http.Response {
	h := make(http.Header)
	h.Set("Location", location)
	return &http.Response{StatusCode: status, Header: h}
}

func TestFollowableRedirect(t *testing.T) {
	assert.True(t, followableRedirect(redirectResp(302, "/next")))
	assert.False(t, followableRedirect(&http.Response{StatusCode: 302, Header: make(http.Header)}))
	assert.False(t, followableRedirect(redirectResp(200, "/next")))
	assert.False(t, followableRedirect(redirectResp(304, "/next")))
}

func TestNextDescriptor_MethodRewriting(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		method      string
		rewriting   bool
		wantMethod  string
		wantHasBody bool
	}{
		{
			name:        "given 303 on POST, then method becomes GET and body drops",
			status:      http.StatusSeeOther,
			method:      "POST",
			rewriting:   true,
			wantMethod:  "GET",
			wantHasBody: false,
		},
		{
			name:        "given 303 on PUT, then method becomes GET",
			status:      http.StatusSeeOther,
			method:      "PUT",
			rewriting:   true,
			wantMethod:  "GET",
			wantHasBody: false,
		},
		{
			name:        "given 303 on HEAD, then HEAD is preserved",
			status:      http.StatusSeeOther,
			method:      "HEAD",
			rewriting:   true,
			wantMethod:  "HEAD",
			wantHasBody: false,
		},
		{
			name:        "given 301 on POST with rewriting, then method becomes GET",
			status:      http.StatusMovedPermanently,
			method:      "POST",
			rewriting:   true,
			wantMethod:  "GET",
			wantHasBody: false,
		},
		{
			name:        "given 302 on POST with rewriting, then method becomes GET",
			status:      http.StatusFound,
			method:      "POST",
			rewriting:   true,
			wantMethod:  "GET",
			wantHasBody: false,
		},
		{
			name:        "given 302 on PUT with rewriting, then method becomes GET",
			status:      http.StatusFound,
			method:      "PUT",
			rewriting:   true,
			wantMethod:  "GET",
			wantHasBody: false,
		},
		{
			name:        "given 301 on DELETE with rewriting, then method becomes GET",
			status:      http.StatusMovedPermanently,
			method:      "DELETE",
			rewriting:   true,
			wantMethod:  "GET",
			wantHasBody: false,
		},
		{
			name:        "given 302 on PATCH without rewriting, then PATCH is preserved",
			status:      http.StatusFound,
			method:      "PATCH",
			rewriting:   false,
			wantMethod:  "PATCH",
			wantHasBody: true,
		},
		{
			name:        "given 301 on POST without rewriting, then POST is preserved",
			status:      http.StatusMovedPermanently,
			method:      "POST",
			rewriting:   false,
			wantMethod:  "POST",
			wantHasBody: true,
		},
		{
			name:        "given 307 on POST, then method and body are preserved",
			status:      http.StatusTemporaryRedirect,
			method:      "POST",
			rewriting:   true,
			wantMethod:  "POST",
			wantHasBody: true,
		},
		{
			name:        "given 308 on POST, then method and body are preserved",
			status:      http.StatusPermanentRedirect,
			method:      "POST",
			rewriting:   true,
			wantMethod:  "POST",
			wantHasBody: true,
		},
		{
			name:        "given 301 on GET, then nothing changes",
			status:      http.StatusMovedPermanently,
			method:      "GET",
			rewriting:   true,
			wantMethod:  "GET",
			wantHasBody: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Options{
				URL:             "https://example.com/start",
				Method:          tt.method,
				MethodRewriting: Bool(tt.rewriting),
			}
			if tt.method != "GET" && tt.method != "HEAD" {
				opts.Body = "payload"
			}
			d := mustNormalize(t, opts)

			next, err := nextDescriptor(d, redirectResp(tt.status, "/moved"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantMethod, next.Method)
			assert.Equal(t, tt.wantHasBody, next.hasBody())
			assert.Equal(t, "https://example.com/moved", next.URL.String())
		})
	}
}

func TestNextDescriptor_RelativeResolution(t *testing.T) {
	d := mustNormalize(t, Options{URL: "https://example.com/a/b?q=1"})

	tests := []struct {
		location string
		want     string
	}{
		{"/root", "https://example.com/root"},
		{"c", "https://example.com/a/c"},
		{"https://other.example.com/x", "https://other.example.com/x"},
		{"//other.example.com/y", "https://other.example.com/y"},
	}

	for _, tt := range tests {
		next, err := nextDescriptor(d, redirectResp(302, tt.location))
		require.NoError(t, err)
		assert.Equal(t, tt.want, next.URL.String())
	}
}

func TestNextDescriptor_EncodesNonASCIILocation(t *testing.T) {
	d := mustNormalize(t, Options{URL: "https://example.com/"})
	next, err := nextDescriptor(d, redirectResp(302, "/caf\xc3\xa9"))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/caf%C3%A9", next.URL.String())
}

func TestNextDescriptor_CrossHostStripsCredentials(t *testing.T) {
	d := mustNormalize(t, Options{
		URL:      "https://example.com/",
		Username: "alice",
		Password: "secret",
		Header: http.Header{
			"Authorization": {"Bearer token"},
			"Cookie":        {"session=1"},
			"X-Custom":      {"kept"},
		},
	})

	t.Run("given same host hop, then credentials survive", func(t *testing.T) {
		next, err := nextDescriptor(d, redirectResp(302, "/elsewhere"))
		require.NoError(t, err)
		assert.Equal(t, "alice", next.Username)
		assert.Equal(t, "Bearer token", next.Header.Get("Authorization"))
	})

	t.Run("given cross host hop, then credentials are stripped", func(t *testing.T) {
		next, err := nextDescriptor(d, redirectResp(302, "https://other.example.com/"))
		require.NoError(t, err)
		assert.Empty(t, next.Username)
		assert.Empty(t, next.Password)
		assert.Empty(t, next.Header.Get("Authorization"))
		assert.Empty(t, next.Header.Get("Cookie"))
		assert.Equal(t, "kept", next.Header.Get("X-Custom"))
	})
}

func TestNextDescriptor_UnsupportedScheme(t *testing.T) {
	d := mustNormalize(t, Options{URL: "https://example.com/"})
	_, err := nextDescriptor(d, redirectResp(302, "ftp://example.com/file"))
	var perr *UnsupportedProtocolError
	require.ErrorAs(t, err, &perr)
}

func TestNextDescriptor_DoesNotMutateCurrent(t *testing.T) {
	d := mustNormalize(t, Options{URL: "https://example.com/", Method: "POST", Body: "x"})
	d.Freeze()

	next, err := nextDescriptor(d, redirectResp(303, "/done"))
	require.NoError(t, err)

	assert.Equal(t, "POST", d.Method)
	assert.Equal(t, []byte("x"), d.Body)
	assert.Equal(t, "GET", next.Method)
	assert.False(t, next.Frozen())
}
