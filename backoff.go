package reqx

import (
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// BackoffConfig shapes the delay between retry attempts. The zero value
// inherits defaults field by field; a non-nil Strategy overrides the
// exponential parameters entirely.
type BackoffConfig struct {
	// Strategy plugs in a custom backoff.BackOff, constructed once per
	// logical request so concurrent requests never share interval state.
	// When set, the remaining fields are ignored.
	Strategy func() backoff.BackOff

	// InitialInterval is the delay before the first retry.
	// Default: 1s.
	InitialInterval time.Duration

	// MaxInterval caps the computed delay. Default: 30s.
	MaxInterval time.Duration

	// Multiplier controls exponential growth. Default: 2.0.
	Multiplier float64

	// JitterFactor randomizes each interval (0.0 to 1.0) so that
	// synchronized clients do not retry in lockstep. Default: 0.1.
	JitterFactor float64
}

const (
	defaultInitialInterval = 1 * time.Second
	defaultMaxInterval     = 30 * time.Second
	defaultMultiplier      = 2.0
	defaultJitterFactor    = 0.1
)

// DefaultBackoffConfig returns the stock exponential configuration:
// 1s, 2s, 4s and so on, jittered, capped at 30s.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialInterval: defaultInitialInterval,
		MaxInterval:     defaultMaxInterval,
		Multiplier:      defaultMultiplier,
		JitterFactor:    defaultJitterFactor,
	}
}

func mergeBackoff(acc, next BackoffConfig) BackoffConfig {
	if next.Strategy != nil {
		acc.Strategy = next.Strategy
	}
	if next.InitialInterval != 0 {
		acc.InitialInterval = next.InitialInterval
	}
	if next.MaxInterval != 0 {
		acc.MaxInterval = next.MaxInterval
	}
	if next.Multiplier != 0 {
		acc.Multiplier = next.Multiplier
	}
	if next.JitterFactor != 0 {
		acc.JitterFactor = next.JitterFactor
	}
	return acc
}

// newBackOff materializes the configured strategy for one logical
// request. Each request gets a fresh instance so that attempt state is
// never shared.
func (c BackoffConfig) newBackOff() backoff.BackOff {
	if c.Strategy != nil {
		return c.Strategy()
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.InitialInterval,
		RandomizationFactor: c.JitterFactor,
		Multiplier:          c.Multiplier,
		MaxInterval:         c.MaxInterval,
	}
	if b.InitialInterval <= 0 {
		b.InitialInterval = defaultInitialInterval
	}
	if b.MaxInterval <= 0 {
		b.MaxInterval = defaultMaxInterval
	}
	if b.Multiplier <= 0 {
		b.Multiplier = defaultMultiplier
	}
	if b.RandomizationFactor <= 0 {
		b.RandomizationFactor = defaultJitterFactor
	}
	b.Reset()
	return b
}

// ConstantBackOff waits a fixed, jittered interval between retries.
type ConstantBackOff struct {
	// Interval is the base delay. Default: 1s.
	Interval time.Duration

	// JitterFactor randomizes the delay (0.0 to 1.0). Default: 0.1.
	JitterFactor float64
}

var _ backoff.BackOff = (*ConstantBackOff)(nil)

func (b *ConstantBackOff) Reset() {}

func (b *ConstantBackOff) NextBackOff() time.Duration {
	interval := b.Interval
	if interval <= 0 {
		interval = defaultInitialInterval
	}
	jitter := b.JitterFactor
	if jitter <= 0 {
		jitter = defaultJitterFactor
	}
	return applyJitter(interval, jitter)
}

// applyJitter spreads interval across [interval*(1-f), interval*(1+f)].
func applyJitter(interval time.Duration, factor float64) time.Duration {
	if factor <= 0 {
		return interval
	}
	if factor > 1 {
		factor = 1
	}
	delta := float64(interval) * factor
	lo := float64(interval) - delta
	hi := float64(interval) + delta
	//nolint:gosec // weak rand is fine for jitter
	return time.Duration(lo + rand.Float64()*(hi-lo))
}
