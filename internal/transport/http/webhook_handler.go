package httptransport

import (
	"errors"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mailgoatai/mailgoat-inbox/internal/domain"
	"github.com/mailgoatai/mailgoat-inbox/internal/webhook"
)

// receiveWebhook accepts one provider delivery. The status code is the
// acknowledgment protocol: 2xx tells the provider to stop redelivering, so
// only signature failures and storage failures answer non-2xx. An unparsable
// body is acked; redelivering it would never help, and the raw record stays
// parked for replay after a fix.
func (h *Handler) receiveWebhook(c *gin.Context) {
	contentType := c.GetHeader("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
		BadRequest(c, "expected application/json")
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		BadRequest(c, "unreadable request body")
		return
	}
	if len(body) == 0 {
		BadRequest(c, "empty request body")
		return
	}

	signature := c.GetHeader(webhook.SignatureHeader)

	result, err := h.ingest.Ingest(c.Request.Context(), body, signature)
	if err != nil {
		if errors.Is(err, domain.ErrSignatureMismatch) {
			Unauthorized(c, "signature verification failed")
			return
		}

		// Storage failure: fail the ack so the provider redelivers.
		h.logger.Error("webhook ingest failed", zap.Error(err))
		InternalError(c, "event not persisted")
		return
	}

	Success(c, gin.H{
		"accepted": result.Accepted,
		"applied":  result.Applied,
		"eventId":  result.EventID,
	})
}
