package reqx

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"time"
)

// TransportConfig tunes the shared connection pool under a Client. The
// engine owns per-request timeouts, so the transport carries none of the
// overall deadlines; only dial, TLS and pool parameters live here.
type TransportConfig struct {
	// MaxIdleConns is the total number of idle keep-alive connections
	// kept across all hosts.
	MaxIdleConns int

	// MaxIdleConnsPerHost bounds idle connections to a single host.
	MaxIdleConnsPerHost int

	// MaxConnsPerHost bounds total connections to a single host,
	// including in-flight ones. Zero means unlimited.
	MaxConnsPerHost int

	// IdleConnTimeout is how long an idle connection stays pooled.
	IdleConnTimeout time.Duration

	// DialTimeout bounds establishing a TCP connection. The per-request
	// connect phase timeout is enforced separately and may be tighter.
	DialTimeout time.Duration

	// KeepAlive is the TCP keep-alive probe interval.
	KeepAlive time.Duration

	// TLSHandshakeTimeout bounds the TLS handshake at transport level.
	TLSHandshakeTimeout time.Duration

	// ExpectContinueTimeout bounds waiting for a 100 Continue.
	ExpectContinueTimeout time.Duration

	// WriteBufferSize and ReadBufferSize size the per-connection
	// buffers. Zero uses the http.Transport defaults.
	WriteBufferSize int
	ReadBufferSize  int

	// DisableKeepAlives turns off connection reuse entirely.
	DisableKeepAlives bool

	// ForceHTTP2 attempts HTTP/2 even for plain URLs.
	ForceHTTP2 bool

	// TLSConfig is the client TLS configuration, nil for defaults.
	TLSConfig *tls.Config

	// ProxyURL routes all requests through a fixed proxy. When nil,
	// ProxyFromEnvironment decides whether the standard environment
	// variables are consulted.
	ProxyURL             *url.URL
	ProxyFromEnvironment bool
}

// DefaultTransportConfig returns balanced settings for typical service
// to service traffic.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		MaxConnsPerHost:       100,
		IdleConnTimeout:       90 * time.Second,
		DialTimeout:           5 * time.Second,
		KeepAlive:             30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		WriteBufferSize:       64 * 1024,
		ReadBufferSize:        64 * 1024,
		ProxyFromEnvironment:  true,
	}
}

// HighThroughputTransportConfig raises pool limits and buffer sizes for
// heavy concurrent traffic to few hosts.
func HighThroughputTransportConfig() TransportConfig {
	cfg := DefaultTransportConfig()
	cfg.MaxIdleConns = 500
	cfg.MaxIdleConnsPerHost = 100
	cfg.MaxConnsPerHost = 500
	cfg.WriteBufferSize = 128 * 1024
	cfg.ReadBufferSize = 128 * 1024
	return cfg
}

// LowLatencyTransportConfig shortens dial and handshake budgets for
// latency-sensitive paths that prefer failing fast.
func LowLatencyTransportConfig() TransportConfig {
	cfg := DefaultTransportConfig()
	cfg.MaxIdleConns = 50
	cfg.MaxIdleConnsPerHost = 25
	cfg.DialTimeout = 2 * time.Second
	cfg.TLSHandshakeTimeout = 3 * time.Second
	return cfg
}

// ConservativeTransportConfig keeps the pool small for low-volume
// clients talking to many hosts.
func ConservativeTransportConfig() TransportConfig {
	cfg := DefaultTransportConfig()
	cfg.MaxIdleConns = 20
	cfg.MaxIdleConnsPerHost = 5
	cfg.MaxConnsPerHost = 20
	return cfg
}

// buildTransport materializes an http.Transport. Compression is left to
// the engine, which negotiates and decodes gzip itself so that the
// Decompress option works per request.
func (cfg TransportConfig) buildTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: cfg.KeepAlive,
	}

	t := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ExpectContinueTimeout: cfg.ExpectContinueTimeout,
		DisableKeepAlives:     cfg.DisableKeepAlives,
		DisableCompression:    true,
		WriteBufferSize:       cfg.WriteBufferSize,
		ReadBufferSize:        cfg.ReadBufferSize,
		TLSClientConfig:       cfg.TLSConfig,
		ForceAttemptHTTP2:     cfg.ForceHTTP2,
	}

	if cfg.ProxyURL != nil {
		t.Proxy = http.ProxyURL(cfg.ProxyURL)
	} else if cfg.ProxyFromEnvironment {
		t.Proxy = http.ProxyFromEnvironment
	}
	return t
}
