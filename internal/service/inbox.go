package service

import (
	"go.uber.org/zap"

	"github.com/mailgoatai/mailgoat-inbox/internal/domain"
)

// InboxService is the read path over the cached inbox.
type InboxService struct {
	store  domain.Store
	logger *zap.Logger
}

// NewInboxService creates the inbox query service.
func NewInboxService(store domain.Store, logger *zap.Logger) *InboxService {
	return &InboxService{store: store, logger: logger}
}

// List returns cached messages matching the filter, newest first. An empty
// inbox is an empty slice, not an error.
func (s *InboxService) List(filter domain.ListFilter) ([]domain.CachedMessage, error) {
	filter.Normalize()
	return s.store.ListMessages(filter)
}

// Get returns one cached message or domain.ErrMessageNotFound.
func (s *InboxService) Get(messageID string) (*domain.CachedMessage, error) {
	return s.store.GetMessage(messageID)
}

// MarkRead sets the local read flag. The bool reports whether the message
// existed.
func (s *InboxService) MarkRead(messageID string) (bool, error) {
	ok, err := s.store.MarkMessageRead(messageID)
	if err != nil {
		return false, err
	}
	if ok {
		s.logger.Debug("message marked read", zap.String("message_id", messageID))
	}
	return ok, nil
}
