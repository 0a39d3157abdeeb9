package httptransport

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mailgoatai/mailgoat-inbox/internal/domain"
)

// sendRequest is the inbound shape of POST /v1/send.
type sendRequest struct {
	To             []string                    `json:"to"`
	From           string                      `json:"from"`
	Subject        string                      `json:"subject"`
	PlainBody      string                      `json:"plain_body"`
	HTMLBody       string                      `json:"html_body"`
	Attachments    []domain.OutboundAttachment `json:"attachments"`
	IdempotencyKey string                      `json:"idempotency_key"`
}

// send submits one message through the provider. The whole retry sequence
// runs under one deadline so a flapping provider cannot hold the request
// open indefinitely.
func (h *Handler) send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	if err := h.attachments.CheckAll(req.Attachments); err != nil {
		UnprocessableEntity(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	if h.sendDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.sendDeadline)
		defer cancel()
	}

	accepted, err := h.sender.Submit(ctx, &domain.OutboundRequest{
		To:             req.To,
		From:           req.From,
		Subject:        req.Subject,
		PlainBody:      req.PlainBody,
		HTMLBody:       req.HTMLBody,
		Attachments:    req.Attachments,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.respondSendError(c, err)
		return
	}

	Accepted(c, accepted)
}

// lookupProviderMessage proxies the provider's only read operation, GET by
// message id.
func (h *Handler) lookupProviderMessage(c *gin.Context) {
	msg, err := h.sender.Lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrProviderMessageNotFound) {
			NotFound(c, "message not found at provider")
			return
		}
		h.respondSendError(c, err)
		return
	}

	Success(c, msg)
}

// respondSendError maps a classified provider failure onto an HTTP status.
func (h *Handler) respondSendError(c *gin.Context, err error) {
	var sendErr *domain.SendError
	if !errors.As(err, &sendErr) {
		h.logger.Error("unclassified send failure", zap.Error(err))
		InternalError(c, "send failed")
		return
	}

	switch sendErr.Kind {
	case domain.SendErrValidation:
		UnprocessableEntity(c, sendErr.Message)
	case domain.SendErrAuth:
		Unauthorized(c, "provider rejected our credentials")
	case domain.SendErrRateLimited:
		TooManyRequests(c, "provider rate limit exceeded", int(sendErr.RetryAfter.Seconds()))
	default:
		h.logger.Warn("send exhausted retries",
			zap.Int("attempts", sendErr.Attempts),
			zap.Int("status", sendErr.StatusCode),
			zap.Error(sendErr),
		)
		UpstreamError(c, "provider unavailable")
	}
}
