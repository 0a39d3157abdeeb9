package provider

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelay_ExponentialGrowth(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay: time.Second,
		MaxDelay:  30 * time.Second,
		Jitter:    func() float64 { return 1 },
	}

	assert.Equal(t, 1*time.Second, policy.Delay(1))
	assert.Equal(t, 2*time.Second, policy.Delay(2))
	assert.Equal(t, 4*time.Second, policy.Delay(3))
	assert.Equal(t, 8*time.Second, policy.Delay(4))
}

func TestDelay_CappedAtMax(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay: time.Second,
		MaxDelay:  5 * time.Second,
		Jitter:    func() float64 { return 1 },
	}

	assert.Equal(t, 5*time.Second, policy.Delay(4))
	assert.Equal(t, 5*time.Second, policy.Delay(20))
}

func TestDelay_JitterBounds(t *testing.T) {
	policy := DefaultRetryPolicy()

	for i := 0; i < 100; i++ {
		d := policy.Delay(1)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.Less(t, d, 1500*time.Millisecond)
	}
}

func TestParseRetryAfter(t *testing.T) {
	mkResp := func(value string) *http.Response {
		resp := &http.Response{Header: http.Header{}}
		if value != "" {
			resp.Header.Set("Retry-After", value)
		}
		return resp
	}

	assert.Equal(t, 2*time.Second, parseRetryAfter(mkResp("2")))
	assert.Equal(t, time.Duration(0), parseRetryAfter(mkResp("")))
	assert.Equal(t, time.Duration(0), parseRetryAfter(mkResp("soon")))
	assert.Equal(t, time.Duration(0), parseRetryAfter(mkResp("-5")))
	assert.Equal(t, time.Duration(0), parseRetryAfter(nil))

	future := time.Now().Add(10 * time.Second).UTC().Format(http.TimeFormat)
	d := parseRetryAfter(mkResp(future))
	assert.Greater(t, d, 8*time.Second)
	assert.LessOrEqual(t, d, 10*time.Second)

	past := time.Now().Add(-10 * time.Second).UTC().Format(http.TimeFormat)
	assert.Equal(t, time.Duration(0), parseRetryAfter(mkResp(past)))
}
