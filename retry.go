package reqx

import (
	"net/http"
	"strconv"
	"time"
)

// shouldRetry decides whether a failed attempt may be retried, in order:
// cancellation never retries, the attempt limit is a hard bound, then the
// outcome must be classified as transient. Responses additionally require
// the method to be in the retryable set, since a non-idempotent request
// may have taken effect on the server.
func shouldRetry(d *Descriptor, attempt int, resp *http.Response, err error) bool {
	if err != nil && isCancel(err) {
		return false
	}
	cfg := d.retry
	if attempt > cfg.limit {
		return false
	}
	if !cfg.methods[d.Method] {
		return false
	}
	if err != nil {
		return cfg.classifier(nil, err)
	}
	if resp == nil {
		return false
	}
	if cfg.classifierIsCustom() {
		return cfg.classifier(resp, nil)
	}
	return cfg.statuses[resp.StatusCode]
}

// classifierIsCustom reports whether the caller installed their own
// classifier, which then owns status-code judgment too.
func (c retryConfig) classifierIsCustom() bool {
	return c.customClassifier
}

// retryDelay computes how long to wait before the next attempt, or false
// to abandon the retry. A Retry-After header, when respected, replaces
// the backoff value; one that exceeds the configured ceiling abandons the
// retry entirely rather than oversleeping.
func retryDelay(cfg retryConfig, info *RetryInfo, next time.Duration) (time.Duration, bool) {
	delay := next
	if cfg.respectRetryAfter && info.Response != nil {
		if ra, ok := parseRetryAfter(info.Response.Header.Get("Retry-After"), time.Now()); ok {
			if cfg.maxRetryAfter > 0 && ra > cfg.maxRetryAfter {
				return 0, false
			}
			info.RetryAfter = ra
			delay = ra
		}
	}
	info.Delay = delay

	if cfg.calculateDelay != nil {
		delay = cfg.calculateDelay(info)
		if delay <= 0 {
			return 0, false
		}
		info.Delay = delay
	}
	return delay, true
}

// parseRetryAfter understands both forms of the header: delta-seconds and
// an HTTP-date. A date in the past yields a zero delay rather than a
// negative one.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	when, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	d := when.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}
