package reqx

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// generateCurlCommand renders a curl equivalent of the request for debug
// logs. Sensitive headers are included verbatim; debug output is for
// development, not production log pipelines.
func generateCurlCommand(req *http.Request, body []byte) string {
	parts := []string{"curl"}

	if req.Method != http.MethodGet {
		parts = append(parts, "-X", req.Method)
	}
	parts = append(parts, fmt.Sprintf("'%s'", req.URL.String()))

	keys := make([]string, 0, len(req.Header))
	for k := range req.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range req.Header[k] {
			parts = append(parts, "-H", fmt.Sprintf("'%s: %s'", k, v))
		}
	}

	if len(body) > 0 {
		escaped := strings.ReplaceAll(string(body), "'", "'\\''")
		parts = append(parts, "-d", fmt.Sprintf("'%s'", escaped))
	}
	return strings.Join(parts, " ")
}

func (c *Client) logRequest(d *Descriptor, req *http.Request, attempt int) {
	if !c.debug {
		return
	}
	ev := c.logger.Debug().
		Str("method", d.Method).
		Str("url", d.URL.String()).
		Int("attempt", attempt)
	if c.generateCurl {
		ev = ev.Str("curl", generateCurlCommand(req, d.Body))
	}
	ev.Msg("request")
}

func (c *Client) logResponse(d *Descriptor, resp *Response) {
	if !c.debug {
		return
	}
	ev := c.logger.Debug().
		Str("method", d.Method).
		Str("url", d.URL.String()).
		Int("status", resp.StatusCode).
		Int("attempt", resp.Attempt)
	if resp.Trace != nil {
		ev = ev.Dur("total", resp.Trace.Total).
			Dur("ttfb", resp.Trace.TimeToFirstByte).
			Bool("conn_reused", resp.Trace.ConnReused)
	}
	ev.Msg("response")
}

func (c *Client) logRetry(d *Descriptor, attempt int, delay time.Duration, cause error) {
	if !c.debug {
		return
	}
	ev := c.logger.Debug().
		Str("method", d.Method).
		Str("url", d.URL.String()).
		Int("attempt", attempt).
		Dur("delay", delay)
	if cause != nil {
		ev = ev.Err(cause)
	}
	ev.Msg("retrying")
}

func (c *Client) logRedirect(from, to *Descriptor, resp *Response) {
	if !c.debug {
		return
	}
	c.logger.Debug().
		Int("status", resp.StatusCode).
		Str("from", from.URL.String()).
		Str("to", to.URL.String()).
		Str("method", to.Method).
		Msg("following redirect")
}

func (c *Client) logError(d *Descriptor, err error) {
	if !c.debug {
		return
	}
	ev := c.logger.Debug().Err(err)
	if d != nil {
		ev = ev.Str("method", d.Method).Str("url", d.URL.String())
	}
	ev.Msg("request failed")
}
