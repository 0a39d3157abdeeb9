// Package provider implements the HTTP client for the MailGoat provider API.
// The provider exposes exactly two operations: submit a message and look one
// message up by id. There is no list endpoint; the inbox is reconstructed
// locally from webhook events.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mailgoatai/mailgoat-inbox/internal/domain"
	"github.com/mailgoatai/mailgoat-inbox/internal/monitoring"
)

// IdempotencyHeader carries the best-effort dedup hint on every send attempt.
// The provider honors it on a best-effort basis only; a retried send after a
// true network timeout can still deliver twice.
const IdempotencyHeader = "Idempotency-Key"

const maxResponseBytes = 1 << 20 // 1MB

// Config holds the Delivery Client settings.
type Config struct {
	BaseURL        string
	APIKey         string
	AttemptTimeout time.Duration // per-attempt HTTP timeout
	Retry          RetryPolicy
	RatePerSecond  float64 // outbound send cap, 0 disables the limiter
}

// Client talks to the provider's send and lookup endpoints with retry,
// backoff and error classification. A Client is safe for concurrent use; each
// Submit call is a single logical retry sequence that blocks only its caller.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	policy     RetryPolicy
	limiter    *rate.Limiter
	logger     *zap.Logger
	metrics    *monitoring.Metrics

	// sleep is swapped out in tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Delivery Client.
func NewClient(cfg Config, logger *zap.Logger, metrics *monitoring.Metrics) *Client {
	timeout := cfg.AttemptTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		policy:     cfg.Retry,
		limiter:    limiter,
		logger:     logger,
		metrics:    metrics,
		sleep:      sleepCtx,
	}
}

// sendRequest is the provider's wire shape for POST /send.
type sendRequest struct {
	To          []string                    `json:"to"`
	From        string                      `json:"from,omitempty"`
	Subject     string                      `json:"subject"`
	PlainBody   string                      `json:"plain_body,omitempty"`
	HTMLBody    string                      `json:"html_body,omitempty"`
	Attachments []domain.OutboundAttachment `json:"attachments,omitempty"`
}

// sendResponse is the provider's success envelope.
type sendResponse struct {
	MessageID string `json:"message_id"`
	Messages  map[string]struct {
		ID    string `json:"id"`
		Token string `json:"token"`
	} `json:"messages"`
}

// errorResponse is the provider's error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

// Submit sends one message through the provider, retrying transient and
// rate-limited failures per the configured policy. The context deadline spans
// all retries: if the next backoff would outlive it, Submit returns
// immediately instead of sleeping past the deadline. The terminal error is
// always the last classified cause.
func (c *Client) Submit(ctx context.Context, req *domain.OutboundRequest) (*domain.SendAccepted, error) {
	start := time.Now()

	if err := req.Validate(); err != nil {
		c.metrics.RecordSendResult("validation_error", time.Since(start))
		return nil, &domain.SendError{Kind: domain.SendErrValidation, Message: err.Error(), Err: err}
	}

	idemKey := req.IdempotencyKey
	if idemKey == "" {
		// Generated once per call so every retry of this call shares it.
		idemKey = uuid.New().String()
	}

	body, err := json.Marshal(sendRequest{
		To:          req.To,
		From:        req.From,
		Subject:     req.Subject,
		PlainBody:   req.PlainBody,
		HTMLBody:    req.HTMLBody,
		Attachments: req.Attachments,
	})
	if err != nil {
		return nil, &domain.SendError{Kind: domain.SendErrValidation, Message: "encode request", Err: err}
	}

	var lastErr *domain.SendError
	maxAttempts := c.policy.MaxRetries + 1

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, c.deadlineError(attempt-1, err, start)
			}
		}

		accepted, sendErr := c.attemptSend(ctx, body, idemKey)
		if sendErr == nil {
			c.metrics.RecordSendAttempt("success")
			c.metrics.RecordSendResult("success", time.Since(start))
			c.logger.Info("message submitted",
				zap.String("message_id", accepted.MessageID),
				zap.Int("attempt", attempt),
			)
			return accepted, nil
		}

		c.metrics.RecordSendAttempt(string(sendErr.Kind))
		sendErr.Attempts = attempt
		lastErr = sendErr

		if !sendErr.Retryable() {
			c.metrics.RecordSendResult(string(sendErr.Kind), time.Since(start))
			return nil, sendErr
		}
		if attempt == maxAttempts {
			break
		}

		delay := c.policy.Delay(attempt)
		if sendErr.RetryAfter > 0 {
			// Provider guidance overrides the computed backoff.
			delay = sendErr.RetryAfter
		}

		if deadline, ok := ctx.Deadline(); ok && time.Now().Add(delay).After(deadline) {
			err := c.deadlineError(attempt, context.DeadlineExceeded, start)
			return nil, err
		}

		c.logger.Warn("send attempt failed, backing off",
			zap.Int("attempt", attempt),
			zap.String("class", string(sendErr.Kind)),
			zap.Duration("delay", delay),
			zap.Error(sendErr),
		)

		if err := c.sleep(ctx, delay); err != nil {
			return nil, c.deadlineError(attempt, err, start)
		}
	}

	c.metrics.RecordSendResult(string(lastErr.Kind), time.Since(start))
	return nil, lastErr
}

// attemptSend performs a single classified attempt against POST /send.
func (c *Client) attemptSend(ctx context.Context, body []byte, idemKey string) (*domain.SendAccepted, *domain.SendError) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send", bytes.NewReader(body))
	if err != nil {
		return nil, &domain.SendError{Kind: domain.SendErrValidation, Message: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set(IdempotencyHeader, idemKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// No response observed: connection refused, DNS failure, timeout.
		// Ambiguous outcome, retried anyway with the same idempotency key.
		return nil, &domain.SendError{Kind: domain.SendErrTransient, Message: "no response from provider", Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var out sendResponse
		if err := json.Unmarshal(respBody, &out); err != nil || out.MessageID == "" {
			// A 2xx without a parseable message id is as ambiguous as a
			// timeout; retry with the same idempotency key.
			return nil, &domain.SendError{
				Kind:       domain.SendErrTransient,
				StatusCode: resp.StatusCode,
				Message:    "malformed provider response",
				Err:        err,
			}
		}

		accepted := &domain.SendAccepted{MessageID: out.MessageID}
		if len(out.Messages) > 0 {
			accepted.Recipients = make(map[string]domain.RecipientStatus, len(out.Messages))
			for rcpt, st := range out.Messages {
				accepted.Recipients[rcpt] = domain.RecipientStatus{ID: st.ID, Token: st.Token}
			}
		}
		return accepted, nil
	}

	return nil, classifyResponse(resp, respBody)
}

// Lookup fetches one message by id from the provider, with the same
// classification and retry loop as Submit. The read is idempotent so
// retrying is always safe.
func (c *Client) Lookup(ctx context.Context, messageID string) (*domain.ProviderMessage, error) {
	if messageID == "" {
		return nil, &domain.SendError{Kind: domain.SendErrValidation, Message: "empty message id"}
	}

	var lastErr *domain.SendError
	maxAttempts := c.policy.MaxRetries + 1

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		msg, sendErr := c.attemptLookup(ctx, messageID)
		if sendErr == nil {
			return msg, nil
		}
		if sendErr.StatusCode == http.StatusNotFound {
			return nil, domain.ErrProviderMessageNotFound
		}

		sendErr.Attempts = attempt
		lastErr = sendErr

		if !sendErr.Retryable() || attempt == maxAttempts {
			break
		}

		delay := c.policy.Delay(attempt)
		if sendErr.RetryAfter > 0 {
			delay = sendErr.RetryAfter
		}
		if deadline, ok := ctx.Deadline(); ok && time.Now().Add(delay).After(deadline) {
			return nil, c.deadlineError(attempt, context.DeadlineExceeded, time.Now())
		}
		if err := c.sleep(ctx, delay); err != nil {
			return nil, c.deadlineError(attempt, err, time.Now())
		}
	}

	return nil, lastErr
}

// attemptLookup performs a single classified attempt against GET /messages/{id}.
func (c *Client) attemptLookup(ctx context.Context, messageID string) (*domain.ProviderMessage, *domain.SendError) {
	url := fmt.Sprintf("%s/messages/%s", c.baseURL, messageID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &domain.SendError{Kind: domain.SendErrValidation, Message: "build request", Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &domain.SendError{Kind: domain.SendErrTransient, Message: "no response from provider", Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var msg domain.ProviderMessage
		if err := json.Unmarshal(respBody, &msg); err != nil {
			return nil, &domain.SendError{
				Kind:       domain.SendErrTransient,
				StatusCode: resp.StatusCode,
				Message:    "malformed provider response",
				Err:        err,
			}
		}
		return &msg, nil
	}

	return nil, classifyResponse(resp, respBody)
}

// classifyResponse buckets a non-2xx provider response:
// 429 rate-limited (retryable, honoring Retry-After), 401/403 auth failure
// (permanent), other 4xx validation (permanent), 5xx transient.
func classifyResponse(resp *http.Response, body []byte) *domain.SendError {
	var envelope errorResponse
	_ = json.Unmarshal(body, &envelope)
	msg := envelope.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	sendErr := &domain.SendError{StatusCode: resp.StatusCode, Message: msg}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		sendErr.Kind = domain.SendErrRateLimited
		sendErr.RetryAfter = parseRetryAfter(resp)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		sendErr.Kind = domain.SendErrAuth
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		sendErr.Kind = domain.SendErrValidation
	default:
		sendErr.Kind = domain.SendErrTransient
		sendErr.RetryAfter = parseRetryAfter(resp)
	}
	return sendErr
}

// deadlineError builds the terminal error for a submit cut short by its
// context.
func (c *Client) deadlineError(attempts int, cause error, start time.Time) *domain.SendError {
	err := &domain.SendError{
		Kind:     domain.SendErrTransient,
		Message:  "deadline exceeded before next attempt",
		Attempts: attempts,
		Err:      cause,
	}
	c.metrics.RecordSendResult("deadline_exceeded", time.Since(start))
	return err
}

// sleepCtx blocks for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
