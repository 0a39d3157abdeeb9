package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoRecipients is returned when an outbound request has no recipient.
	ErrNoRecipients = errors.New("outbound request has no recipients")
	// ErrEmptyBody is returned when both plain and HTML bodies are empty.
	ErrEmptyBody = errors.New("outbound request has no body")
	// ErrSignatureMismatch is returned when a webhook HMAC signature does not
	// verify against the configured secret.
	ErrSignatureMismatch = errors.New("webhook signature mismatch")
	// ErrMessageNotFound is returned by the store when no cached message
	// exists for a message id.
	ErrMessageNotFound = errors.New("message not found")
	// ErrReplayRecordNotFound is returned when a replay record id is unknown.
	ErrReplayRecordNotFound = errors.New("replay record not found")
	// ErrProviderMessageNotFound is returned by Lookup when the provider does
	// not know the message id.
	ErrProviderMessageNotFound = errors.New("provider message not found")
)

// SendErrorKind classifies a failed send attempt. The kind decides retry
// behavior: only transient and rate-limited errors are retried.
type SendErrorKind string

const (
	SendErrValidation  SendErrorKind = "validation"   // bad input or permanent 4xx, never retried
	SendErrAuth        SendErrorKind = "auth"         // invalid credentials, never retried
	SendErrRateLimited SendErrorKind = "rate_limited" // 429, retried honoring Retry-After
	SendErrTransient   SendErrorKind = "transient"    // 5xx / network failure / timeout, retried
)

// SendError is the classified terminal error of a Submit or Lookup call. After
// retry exhaustion it carries the last observed cause, not generic retry noise.
type SendError struct {
	Kind       SendErrorKind
	StatusCode int           // 0 when no response was observed
	Message    string        // provider error text or local description
	Attempts   int           // attempts made before surfacing
	RetryAfter time.Duration // parsed Retry-After, if the response carried one
	Err        error         // underlying transport error, if any
}

// Error implements the error interface.
func (e *SendError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("send failed (%s, HTTP %d): %s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("send failed (%s): %s", e.Kind, msg)
}

// Unwrap exposes the underlying transport error to errors.Is/As.
func (e *SendError) Unwrap() error { return e.Err }

// Retryable reports whether the retry loop may try again after this error.
func (e *SendError) Retryable() bool {
	return e.Kind == SendErrTransient || e.Kind == SendErrRateLimited
}

// StoreError wraps a persistence failure so the receiver can distinguish it
// from normalization failures: store errors fail the webhook acknowledgment so
// the provider redelivers, normalization failures do not.
type StoreError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

// Unwrap exposes the wrapped persistence error.
func (e *StoreError) Unwrap() error { return e.Err }

// NormalizationError marks a webhook payload this version cannot parse. It is
// recorded on the replay record and does not fail the acknowledgment.
type NormalizationError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *NormalizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("normalize webhook: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("normalize webhook: %s", e.Reason)
}

// Unwrap exposes the wrapped decode error.
func (e *NormalizationError) Unwrap() error { return e.Err }
