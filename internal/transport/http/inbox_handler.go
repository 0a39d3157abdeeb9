package httptransport

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mailgoatai/mailgoat-inbox/internal/domain"
)

// listInbox answers GET /v1/inbox with filtered, newest-first messages.
func (h *Handler) listInbox(c *gin.Context) {
	filter, err := parseListFilter(c)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	messages, err := h.inbox.List(filter)
	if err != nil {
		h.logger.Error("inbox list failed", zap.Error(err))
		InternalError(c, "inbox unavailable")
		return
	}

	Success(c, gin.H{
		"messages": messages,
		"count":    len(messages),
	})
}

// getMessage answers GET /v1/inbox/:id.
func (h *Handler) getMessage(c *gin.Context) {
	msg, err := h.inbox.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrMessageNotFound) {
			NotFound(c, "message not in cache")
			return
		}
		h.logger.Error("inbox get failed", zap.Error(err))
		InternalError(c, "inbox unavailable")
		return
	}

	Success(c, msg)
}

// markRead answers POST /v1/inbox/:id/read. Marking an already-read message
// succeeds; the flag is local state, not a counter.
func (h *Handler) markRead(c *gin.Context) {
	ok, err := h.inbox.MarkRead(c.Param("id"))
	if err != nil {
		h.logger.Error("mark read failed", zap.Error(err))
		InternalError(c, "inbox unavailable")
		return
	}
	if !ok {
		NotFound(c, "message not in cache")
		return
	}

	Success(c, gin.H{"read": true})
}

// parseListFilter builds a ListFilter from query parameters.
func parseListFilter(c *gin.Context) (domain.ListFilter, error) {
	var filter domain.ListFilter

	filter.From = c.Query("from")
	filter.Subject = c.Query("subject")

	if raw := c.Query("unread"); raw != "" {
		unread, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, errors.New("invalid unread flag")
		}
		filter.UnreadOnly = unread
	}

	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New("invalid since timestamp, expected RFC3339")
		}
		filter.Since = &since
	}
	if raw := c.Query("until"); raw != "" {
		until, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New("invalid until timestamp, expected RFC3339")
		}
		filter.Until = &until
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, errors.New("invalid limit")
		}
		filter.Limit = limit
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, errors.New("invalid offset")
		}
		filter.Offset = offset
	}

	return filter, nil
}
