// Package service holds the application services over the store: webhook
// ingestion, inbox queries and replay.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mailgoatai/mailgoat-inbox/internal/domain"
	"github.com/mailgoatai/mailgoat-inbox/internal/monitoring"
	"github.com/mailgoatai/mailgoat-inbox/internal/webhook"
)

// DedupCache is the optional fast path consulted before the store. The store
// remains authoritative; a nil or cold cache only costs one extra upsert.
type DedupCache interface {
	Seen(ctx context.Context, eventID string) bool
	MarkSeen(ctx context.Context, eventID string)
}

// UpdateBroadcaster pushes projection updates to live watchers.
type UpdateBroadcaster interface {
	BroadcastMessage(msg *domain.CachedMessage)
}

// IngestService is the receiver core: it makes a raw webhook body durable,
// normalizes it and folds it into the inbox cache.
type IngestService struct {
	store      domain.Store
	normalizer *webhook.Normalizer
	dedup      DedupCache
	hub        UpdateBroadcaster
	metrics    *monitoring.Metrics
	logger     *zap.Logger
}

// NewIngestService creates the ingest service. dedup and hub may be nil.
func NewIngestService(
	store domain.Store,
	normalizer *webhook.Normalizer,
	dedup DedupCache,
	hub UpdateBroadcaster,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *IngestService {
	return &IngestService{
		store:      store,
		normalizer: normalizer,
		dedup:      dedup,
		hub:        hub,
		metrics:    metrics,
		logger:     logger,
	}
}

// IngestResult reports what happened to one webhook delivery.
type IngestResult struct {
	RecordID uint64 // replay record id assigned at receipt
	Accepted bool   // normalized successfully
	Applied  bool   // mutated the projection (false for duplicates/stale)
	EventID  string
}

// Ingest processes one inbound webhook call. The raw body is appended to the
// replay log before any parsing so a crash mid-processing is recoverable.
// Returned errors decide the HTTP acknowledgment: a *domain.StoreError fails
// the ack (provider redelivers), domain.ErrSignatureMismatch rejects it, and
// normalization failures return a nil error with Accepted=false so the
// provider does not endlessly redeliver an unparsable payload.
func (s *IngestService) Ingest(ctx context.Context, body []byte, signature string) (*IngestResult, error) {
	record := &domain.ReplayRecord{
		Body:       body,
		Signature:  signature,
		ReceivedAt: time.Now().UTC(),
	}
	if err := s.store.AppendReplayRecord(record); err != nil {
		s.metrics.RecordWebhookFailure("store_append")
		return nil, err
	}

	result := &IngestResult{RecordID: record.ID}

	event, err := s.normalizer.Normalize(body, signature)
	if err != nil {
		if errors.Is(err, domain.ErrSignatureMismatch) {
			s.metrics.RecordWebhookFailure("signature")
			s.recordOutcome(record.ID, false, err.Error())
			return result, err
		}
		// Unparsable payload: parked for replay, ack still succeeds.
		s.metrics.RecordWebhookFailure("normalize")
		s.logger.Warn("webhook payload failed normalization",
			zap.Uint64("replay_record_id", record.ID),
			zap.Error(err),
		)
		s.recordOutcome(record.ID, false, err.Error())
		return result, nil
	}

	result.Accepted = true
	result.EventID = event.EventID
	s.metrics.RecordWebhookEvent(string(event.EventType))

	if s.dedup != nil && s.dedup.Seen(ctx, event.EventID) {
		s.metrics.RecordEventSkipped()
		s.recordOutcome(record.ID, true, "")
		return result, nil
	}

	applied, err := s.store.ApplyEvent(event)
	if err != nil {
		// Left unprocessed; the provider redelivers and the background
		// replay loop retries too.
		s.metrics.RecordWebhookFailure("store_apply")
		return result, err
	}

	result.Applied = applied
	if applied {
		s.metrics.RecordEventApplied()
	} else {
		s.metrics.RecordEventSkipped()
	}

	s.recordOutcome(record.ID, true, "")
	if s.dedup != nil {
		s.dedup.MarkSeen(ctx, event.EventID)
	}

	if applied && s.hub != nil {
		if msg, err := s.store.GetMessage(event.MessageID); err == nil {
			s.hub.BroadcastMessage(msg)
		}
	}

	s.logger.Debug("webhook event ingested",
		zap.String("event_id", event.EventID),
		zap.String("message_id", event.MessageID),
		zap.String("event_type", string(event.EventType)),
		zap.Bool("applied", applied),
	)
	return result, nil
}

// recordOutcome updates the replay record, logging rather than failing the
// ingest when the update itself errors.
func (s *IngestService) recordOutcome(id uint64, processed bool, procErr string) {
	if err := s.store.SetReplayOutcome(id, processed, procErr); err != nil {
		s.logger.Error("failed to update replay record outcome",
			zap.Uint64("replay_record_id", id),
			zap.Error(err),
		)
	}
}
