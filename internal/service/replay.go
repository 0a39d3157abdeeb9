package service

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mailgoatai/mailgoat-inbox/internal/domain"
	"github.com/mailgoatai/mailgoat-inbox/internal/monitoring"
	"github.com/mailgoatai/mailgoat-inbox/internal/webhook"
)

// ReplayService re-runs stored raw webhook bodies through the normalizer and
// the store, exactly as the live path would. The store's idempotent upsert
// makes a replay safe to run repeatedly or over overlapping ranges.
type ReplayService struct {
	store      domain.Store
	normalizer *webhook.Normalizer
	metrics    *monitoring.Metrics
	logger     *zap.Logger
}

// NewReplayService creates the replay controller.
func NewReplayService(
	store domain.Store,
	normalizer *webhook.Normalizer,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *ReplayService {
	return &ReplayService{
		store:      store,
		normalizer: normalizer,
		metrics:    metrics,
		logger:     logger,
	}
}

// Replay loads the records the selector covers, in original receipt order,
// and pushes each back through normalization and the upsert. Signature
// verification runs against the stored header, so after a secret rotation old
// records deliberately fail rather than being trusted blindly.
func (s *ReplayService) Replay(selector domain.ReplaySelector) (*domain.ReplaySummary, error) {
	start := time.Now()

	records, err := s.store.ListReplayRecords(selector)
	if err != nil {
		return nil, err
	}

	summary := &domain.ReplaySummary{RunID: uuid.New().String()}

	for _, record := range records {
		summary.Scanned++

		event, err := s.normalizer.Normalize(record.Body, record.Signature)
		if err != nil {
			// Only failures on records the identifier filters could match
			// are interesting, but without a parsed event we cannot tell;
			// count them all.
			summary.Failed++
			continue
		}
		if !selector.Matches(event) {
			continue
		}
		summary.Matched++

		applied, err := s.store.ApplyEvent(event)
		if err != nil {
			summary.Failed++
			s.logger.Error("replay upsert failed",
				zap.Uint64("replay_record_id", record.ID),
				zap.String("event_id", event.EventID),
				zap.Error(err),
			)
			continue
		}

		if applied {
			summary.Applied++
		} else {
			summary.Skipped++
		}

		if !record.Processed {
			if err := s.store.SetReplayOutcome(record.ID, true, ""); err != nil {
				s.logger.Error("failed to mark replayed record processed",
					zap.Uint64("replay_record_id", record.ID),
					zap.Error(err),
				)
			}
		}
	}

	summary.Duration = time.Since(start)
	s.metrics.RecordReplayRun(summary.Applied)
	s.logger.Info("replay run complete",
		zap.String("run_id", summary.RunID),
		zap.Int("scanned", summary.Scanned),
		zap.Int("matched", summary.Matched),
		zap.Int("applied", summary.Applied),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

// ListUnprocessed surfaces records that failed normalization or persistence,
// for the operator.
func (s *ReplayService) ListUnprocessed(limit int) ([]domain.ReplayRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	return s.store.ListUnprocessedReplayRecords(limit)
}

// RetryUnprocessed re-runs up to limit unprocessed records through the live
// path. Called from the background maintenance ticker; records that still
// fail stay parked for the next pass.
func (s *ReplayService) RetryUnprocessed(limit int) (int, error) {
	records, err := s.store.ListUnprocessedReplayRecords(limit)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, record := range records {
		event, err := s.normalizer.Normalize(record.Body, record.Signature)
		if err != nil {
			// Still unparsable with this version; leave it parked.
			continue
		}
		if _, err := s.store.ApplyEvent(event); err != nil {
			continue
		}
		if err := s.store.SetReplayOutcome(record.ID, true, ""); err != nil {
			s.logger.Error("failed to mark retried record processed",
				zap.Uint64("replay_record_id", record.ID),
				zap.Error(err),
			)
			continue
		}
		recovered++
	}

	if recovered > 0 {
		s.logger.Info("recovered unprocessed webhook records", zap.Int("count", recovered))
	}
	return recovered, nil
}
