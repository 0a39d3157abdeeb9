package httptransport

import (
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mailgoatai/mailgoat-inbox/internal/domain"
)

// replayRequest scopes a replay run. All fields optional; empty replays the
// whole log.
type replayRequest struct {
	MessageID string `json:"message_id"`
	EventID   string `json:"event_id"`
	From      string `json:"from"` // RFC3339, receipt time lower bound
	To        string `json:"to"`   // RFC3339, receipt time upper bound
}

// runReplay answers POST /v1/replay with the run summary.
func (h *Handler) runReplay(c *gin.Context) {
	// An empty body replays the whole log.
	var req replayRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(c, "invalid request body")
		return
	}

	selector := domain.ReplaySelector{
		MessageID: req.MessageID,
		EventID:   req.EventID,
	}
	if req.From != "" {
		from, err := time.Parse(time.RFC3339, req.From)
		if err != nil {
			BadRequest(c, "invalid from timestamp, expected RFC3339")
			return
		}
		selector.From = &from
	}
	if req.To != "" {
		to, err := time.Parse(time.RFC3339, req.To)
		if err != nil {
			BadRequest(c, "invalid to timestamp, expected RFC3339")
			return
		}
		selector.To = &to
	}

	summary, err := h.replay.Replay(selector)
	if err != nil {
		h.logger.Error("replay run failed", zap.Error(err))
		InternalError(c, "replay failed")
		return
	}

	Success(c, summary)
}

// listUnprocessed answers GET /v1/inbox/unprocessed with parked records.
func (h *Handler) listUnprocessed(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			BadRequest(c, "invalid limit")
			return
		}
		limit = parsed
	}

	records, err := h.replay.ListUnprocessed(limit)
	if err != nil {
		h.logger.Error("unprocessed listing failed", zap.Error(err))
		InternalError(c, "replay log unavailable")
		return
	}

	// Raw bodies can be large and binary; answer metadata only.
	type recordView struct {
		ID         uint64    `json:"id"`
		ReceivedAt time.Time `json:"receivedAt"`
		Error      string    `json:"error,omitempty"`
		BodySize   int       `json:"bodySize"`
	}
	views := make([]recordView, 0, len(records))
	for _, r := range records {
		views = append(views, recordView{
			ID:         r.ID,
			ReceivedAt: r.ReceivedAt,
			Error:      r.Error,
			BodySize:   len(r.Body),
		})
	}

	Success(c, gin.H{
		"records": views,
		"count":   len(views),
	})
}
