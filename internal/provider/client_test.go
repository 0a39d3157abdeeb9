package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mailgoatai/mailgoat-inbox/internal/domain"
)

// zeroDelayPolicy keeps tests deterministic and fast.
func zeroDelayPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries: maxRetries,
		BaseDelay:  time.Nanosecond,
		MaxDelay:   time.Nanosecond,
		Jitter:     func() float64 { return 1 },
	}
}

func newTestClient(t *testing.T, serverURL string, policy RetryPolicy) *Client {
	t.Helper()
	return NewClient(Config{
		BaseURL:        serverURL,
		APIKey:         "test-key",
		AttemptTimeout: 2 * time.Second,
		Retry:          policy,
	}, zap.NewNop(), nil)
}

func validRequest() *domain.OutboundRequest {
	return &domain.OutboundRequest{
		To:        []string{"rcpt@example.com"},
		Subject:   "hi",
		PlainBody: "hello",
	}
}

func TestSubmit_Success(t *testing.T) {
	var gotAuth, gotIdem string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotIdem = r.Header.Get(IdempotencyHeader)
		assert.Equal(t, "/send", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message_id":"msg-1","messages":{"rcpt@example.com":{"id":"d-1","token":"tok-1"}}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, zeroDelayPolicy(3))

	accepted, err := client.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, "msg-1", accepted.MessageID)
	assert.Equal(t, "tok-1", accepted.Recipients["rcpt@example.com"].Token)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.NotEmpty(t, gotIdem)
}

func TestSubmit_RetryCeilingOn503(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"maintenance"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, zeroDelayPolicy(3))

	_, err := client.Submit(context.Background(), validRequest())
	require.Error(t, err)

	var sendErr *domain.SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, domain.SendErrTransient, sendErr.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, sendErr.StatusCode)
	assert.Equal(t, 4, sendErr.Attempts)
	assert.Equal(t, "maintenance", sendErr.Message)

	// Exactly maxRetries + 1 attempts.
	assert.Equal(t, int32(4), atomic.LoadInt32(&attempts))
}

func TestSubmit_NoRetryOn422(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"invalid recipient"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, zeroDelayPolicy(3))

	_, err := client.Submit(context.Background(), validRequest())
	require.Error(t, err)

	var sendErr *domain.SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, domain.SendErrValidation, sendErr.Kind)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestSubmit_NoRetryOnAuthFailure(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad api key"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, zeroDelayPolicy(3))

	_, err := client.Submit(context.Background(), validRequest())
	var sendErr *domain.SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, domain.SendErrAuth, sendErr.Kind)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestSubmit_RetryAfterOverridesBackoff(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message_id":"msg-1"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, zeroDelayPolicy(3))

	var slept []time.Duration
	client.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	_, err := client.Submit(context.Background(), validRequest())
	require.NoError(t, err)

	require.Len(t, slept, 1)
	assert.GreaterOrEqual(t, slept[0], 2*time.Second)
}

func TestSubmit_IdempotencyKeyStableAcrossRetries(t *testing.T) {
	var keys []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get(IdempotencyHeader))
		if len(keys) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message_id":"msg-1"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, zeroDelayPolicy(3))

	req := validRequest()
	req.IdempotencyKey = "caller-hint-1"
	_, err := client.Submit(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, keys, 3)
	for _, k := range keys {
		assert.Equal(t, "caller-hint-1", k)
	}
}

func TestSubmit_DeadlineAbortsBeforeSleep(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	policy := RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Hour, // next backoff cannot fit in the deadline
		MaxDelay:   time.Hour,
		Jitter:     func() float64 { return 1 },
	}
	client := newTestClient(t, server.URL, policy)
	client.sleep = func(ctx context.Context, d time.Duration) error {
		t.Fatal("client slept past the deadline")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Submit(ctx, validRequest())
	require.Error(t, err)

	var sendErr *domain.SendError
	require.ErrorAs(t, err, &sendErr)
	assert.ErrorIs(t, sendErr.Err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSubmit_ValidationFailsWithoutAttempt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, zeroDelayPolicy(3))

	_, err := client.Submit(context.Background(), &domain.OutboundRequest{Subject: "no recipients"})
	var sendErr *domain.SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, domain.SendErrValidation, sendErr.Kind)
	assert.ErrorIs(t, err, domain.ErrNoRecipients)

	_, err = client.Submit(context.Background(), &domain.OutboundRequest{To: []string{"a@b.c"}})
	require.ErrorAs(t, err, &sendErr)
	assert.ErrorIs(t, err, domain.ErrEmptyBody)
}

func TestSubmit_Malformed2xxIsRetried(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{}`)) // 2xx without a message id
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message_id":"msg-1"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, zeroDelayPolicy(3))

	accepted, err := client.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, "msg-1", accepted.MessageID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestSubmit_ConnectionRefusedIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // nothing listens anymore

	client := newTestClient(t, server.URL, zeroDelayPolicy(1))

	_, err := client.Submit(context.Background(), validRequest())
	var sendErr *domain.SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, domain.SendErrTransient, sendErr.Kind)
	assert.Equal(t, 2, sendErr.Attempts)
}

func TestLookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/messages/msg-1":
			w.Write([]byte(`{"messageId":"msg-1","from":"alice@example.com","subject":"hi"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"unknown message"}`))
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, zeroDelayPolicy(2))

	msg, err := client.Lookup(context.Background(), "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", msg.From)

	_, err = client.Lookup(context.Background(), "msg-2")
	assert.ErrorIs(t, err, domain.ErrProviderMessageNotFound)
}
