package reqx

import (
	"net/http"
	"net/url"
	"strings"
)

// isRedirectStatus reports whether a status code participates in redirect
// handling when a Location header is present.
func isRedirectStatus(code int) bool {
	switch code {
	case http.StatusMultipleChoices,
		http.StatusMovedPermanently,
		http.StatusFound,
		http.StatusSeeOther,
		http.StatusTemporaryRedirect,
		http.StatusPermanentRedirect:
		return true
	}
	return false
}

// followableRedirect reports whether resp asks for a redirect the engine
// can act on.
func followableRedirect(resp *http.Response) bool {
	return isRedirectStatus(resp.StatusCode) && resp.Header.Get("Location") != ""
}

// nextDescriptor derives the descriptor for the next redirect hop from
// the current one and the redirecting response. The current descriptor is
// never mutated.
//
// Method rewriting follows browser practice: 303 always downgrades to GET
// (HEAD stays HEAD), 301 and 302 downgrade any method but GET and HEAD to
// GET when rewriting is enabled, 307 and 308 preserve the method and body.
// A downgrade drops
// the body and its framing headers. Credentials and cookies are stripped
// when the hop leaves the original host.
func nextDescriptor(d *Descriptor, resp *http.Response) (*Descriptor, error) {
	loc := resp.Header.Get("Location")
	ref, err := url.Parse(encodeLocation(loc))
	if err != nil {
		return nil, &ValidationError{Option: "location", Reason: err.Error()}
	}
	target := d.URL.ResolveReference(ref)
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, &UnsupportedProtocolError{Scheme: target.Scheme}
	}

	next := d.clone()
	next.URL = target

	rewrite := false
	switch resp.StatusCode {
	case http.StatusSeeOther:
		rewrite = next.Method != http.MethodHead
	case http.StatusMovedPermanently, http.StatusFound:
		rewrite = d.MethodRewriting && next.Method != http.MethodGet && next.Method != http.MethodHead
	}
	if rewrite {
		next.Method = http.MethodGet
		next.Body = nil
		next.Header.Del("Content-Length")
		next.Header.Del("Content-Type")
		next.Header.Del("Content-Encoding")
	}

	if !sameHost(d.URL, target) {
		next.Header.Del("Authorization")
		next.Header.Del("Cookie")
		next.Username = ""
		next.Password = ""
	}

	return next, nil
}

func sameHost(a, b *url.URL) bool {
	return strings.EqualFold(a.Hostname(), b.Hostname())
}

// encodeLocation percent-encodes the bytes a server should not have put
// in a Location header but sometimes does: raw non-ASCII and spaces.
// Already-encoded sequences pass through untouched.
func encodeLocation(loc string) string {
	var b strings.Builder
	for i := 0; i < len(loc); i++ {
		c := loc[i]
		if c >= 0x80 || c == ' ' {
			b.WriteString("%" + upperHex(c))
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func upperHex(c byte) string {
	const digits = "0123456789ABCDEF"
	return string([]byte{digits[c>>4], digits[c&0xf]})
}
