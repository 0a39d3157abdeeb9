package provider

import (
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// RetryPolicy controls the Delivery Client's backoff behavior. It is explicit
// configuration passed into NewClient, never ambient state, so tests can
// inject deterministic zero-jitter, zero-delay policies.
type RetryPolicy struct {
	// MaxRetries is the number of extra attempts after the first one.
	MaxRetries int
	// BaseDelay seeds the exponential backoff.
	BaseDelay time.Duration
	// MaxDelay caps the computed delay.
	MaxDelay time.Duration
	// Jitter returns a multiplier applied to the computed delay. nil means
	// full jitter uniform in [0.5, 1.5).
	Jitter func() float64
}

// DefaultRetryPolicy matches the documented defaults: 3 retries, 1s base
// delay, 30s cap, full jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// Delay computes the backoff before the attempt following the given one:
// BaseDelay * 2^(attempt-1) * jitter, capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))

	jitter := p.Jitter
	if jitter == nil {
		jitter = func() float64 { return 0.5 + rand.Float64() }
	}
	d := time.Duration(base * jitter())

	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d < 0 {
		d = p.MaxDelay
	}
	return d
}

// parseRetryAfter parses a Retry-After header value, either delta-seconds or
// an HTTP-date. Returns 0 when the value is absent or unparseable.
func parseRetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	value := resp.Header.Get("Retry-After")
	if value == "" {
		return 0
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
