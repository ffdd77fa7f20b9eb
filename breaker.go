package reqx

import (
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned while the breaker is open and attempts are
// being rejected without reaching the transport.
var ErrCircuitOpen = gobreaker.ErrOpenState

// BreakerConfig configures the opt-in circuit breaker around a client's
// transport. The breaker sits below the retry engine, so rejected
// attempts are still subject to retry classification (gobreaker's open
// state error is not transient, so they fail fast by default).
type BreakerConfig struct {
	// Name identifies the breaker in state change callbacks.
	Name string

	// MaxRequests is the number of probe requests allowed through while
	// half-open.
	MaxRequests uint32

	// Interval is the cyclic period for clearing counts while closed.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration

	// ConsecutiveFailures trips the breaker after this many failures in
	// a row. Zero disables the consecutive rule.
	ConsecutiveFailures uint32

	// FailureRatio trips the breaker when the failure ratio over
	// Interval reaches this value. Zero disables the ratio rule.
	FailureRatio float64

	// MinRequests is the minimum sample size before FailureRatio is
	// considered.
	MinRequests uint32

	// Classifier decides what counts as a failure. Defaults to
	// transport errors and 5xx responses.
	Classifier func(resp *http.Response, err error) bool

	// OnStateChange is invoked on every breaker transition.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultBreakerConfig trips after five consecutive failures or a 60%
// failure ratio over at least ten requests, and probes after 30 seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:                "reqx",
		MaxRequests:         3,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
		FailureRatio:        0.6,
		MinRequests:         10,
	}
}

// errBreakerSynthetic marks a response the classifier counted as a
// failure even though RoundTrip succeeded. Unwrapped before returning.
var errBreakerSynthetic = errors.New("reqx: breaker synthetic failure")

type breakerTransport struct {
	next       http.RoundTripper
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	classifier func(resp *http.Response, err error) bool
}

func newBreakerTransport(next http.RoundTripper, cfg BreakerConfig) http.RoundTripper {
	classifier := cfg.Classifier
	if classifier == nil {
		classifier = func(resp *http.Response, err error) bool {
			return err != nil || (resp != nil && resp.StatusCode >= 500)
		}
	}

	name := cfg.Name
	if name == "" {
		name = "reqx"
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if cfg.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
				return true
			}
			if cfg.FailureRatio > 0 && counts.Requests >= cfg.MinRequests && counts.Requests > 0 {
				ratio := float64(counts.TotalFailures) / float64(counts.Requests)
				return ratio >= cfg.FailureRatio
			}
			return false
		},
		OnStateChange: cfg.OnStateChange,
	}

	return &breakerTransport{
		next:       next,
		breaker:    gobreaker.NewCircuitBreaker[*http.Response](settings),
		classifier: classifier,
	}
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.breaker.Execute(func() (*http.Response, error) {
		resp, err := t.next.RoundTrip(req) //nolint:bodyclose
		if err != nil {
			return nil, err
		}
		if t.classifier(resp, nil) {
			return resp, errBreakerSynthetic
		}
		return resp, nil
	})
	if errors.Is(err, errBreakerSynthetic) && resp != nil {
		// A failure for breaker accounting, not for the caller.
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}
