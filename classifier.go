package reqx

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"
)

// RetryClassifier decides whether a failed exchange may be retried.
// It is consulted after the cheaper checks (cancellation, attempt limit,
// method eligibility) have passed. Return true to allow a retry.
//
// The default engine path uses the classifier for transport errors and
// the configured status code set for responses; a custom classifier
// replaces both judgments:
//
//	opts := reqx.Options{Retry: &reqx.RetryOptions{
//	    Classifier: func(resp *http.Response, err error) bool {
//	        if resp != nil && resp.StatusCode >= 500 {
//	            return true
//	        }
//	        return reqx.DefaultClassifier(resp, err)
//	    },
//	}}
type RetryClassifier func(resp *http.Response, err error) bool

// DefaultClassifier applies production-safe retry rules: transient
// network errors retry, permanent failures (TLS verification, NXDOMAIN,
// caller cancellation) do not, and responses defer to the status set
// carried on the descriptor via a nil return path in the engine.
func DefaultClassifier(resp *http.Response, err error) bool {
	if err != nil {
		if errors.Is(err, context.Canceled) || isCancel(err) {
			return false
		}
		if isPermanentError(err) {
			return false
		}
		return isRetryableNetworkError(err)
	}
	if resp != nil {
		return defaultRetryStatus(resp.StatusCode)
	}
	return false
}

func defaultRetryStatus(code int) bool {
	for _, c := range DefaultRetryStatusCodes {
		if c == code {
			return true
		}
	}
	return false
}

// isRetryableNetworkError reports whether err is a transport failure that
// is typically transient.
func isRetryableNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		// NXDOMAIN and friends are permanent; only explicitly transient
		// resolver failures retry.
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}

	return containsTransientPattern(err)
}

// containsTransientPattern is a fallback for wrapped errors whose type
// information was lost along the way.
func containsTransientPattern(err error) bool {
	s := strings.ToLower(err.Error())
	patterns := []string{
		"connection refused",
		"connection reset",
		"network is down",
		"network unreachable",
		"i/o timeout",
		"temporary failure",
		"server closed",
		"broken pipe",
		"eof",
	}
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// isPermanentError reports whether err cannot succeed on retry.
func isPermanentError(err error) bool {
	if err == nil {
		return false
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return true
	}

	if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EHOSTDOWN) {
		return true
	}

	return containsPermanentPattern(err)
}

func containsPermanentPattern(err error) bool {
	s := strings.ToLower(err.Error())
	patterns := []string{
		"x509:",
		"certificate",
		"tls:",
		"protocol error",
		"no route to host",
		"permission denied",
	}
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// NeverRetry is a classifier that refuses every retry. Useful when retry
// decisions are handled at a higher layer.
func NeverRetry(_ *http.Response, _ error) bool { return false }
