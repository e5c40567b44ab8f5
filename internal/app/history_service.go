package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightswitch/internal/config"
	"github.com/dokzlo13/lightswitch/internal/ledger"
)

// History records press episodes. Implementations must be safe for
// concurrent use; they are called from async work.
type History interface {
	Record(eventType ledger.EventType, episode string, payload map[string]any)
}

type nopHistory struct{}

func (nopHistory) Record(ledger.EventType, string, map[string]any) {}

// HistoryService writes gesture history to the ledger and prunes it.
type HistoryService struct {
	cfg    *config.Config
	ledger *ledger.Ledger
	source string
}

// NewHistoryService creates a history service over l.
func NewHistoryService(cfg *config.Config, l *ledger.Ledger) *HistoryService {
	return &HistoryService{
		cfg:    cfg,
		ledger: l,
		source: cfg.Input.Source,
	}
}

// Record implements History. Failures are logged and dropped.
func (s *HistoryService) Record(eventType ledger.EventType, episode string, payload map[string]any) {
	if err := s.ledger.Append(eventType, episode, s.source, payload); err != nil {
		log.Warn().Err(err).Str("event_type", string(eventType)).Str("episode", episode).Msg("Failed to record history")
	}
}

// Recent returns the newest ledger entries.
func (s *HistoryService) Recent(limit int) ([]*ledger.Entry, error) {
	return s.ledger.Recent(limit)
}

// Start runs one cleanup immediately and then every cleanup interval.
func (s *HistoryService) Start(ctx context.Context) {
	go s.runLedgerCleanup(ctx)
}

// runLedgerCleanup periodically cleans up old ledger entries.
func (s *HistoryService) runLedgerCleanup(ctx context.Context) {
	retention := time.Duration(s.cfg.Ledger.RetentionDays) * 24 * time.Hour
	interval := s.cfg.Ledger.CleanupInterval.Duration()

	s.cleanup(retention)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup(retention)
		}
	}
}

func (s *HistoryService) cleanup(retention time.Duration) {
	deleted, err := s.ledger.DeleteOlderThan(retention)
	if err != nil {
		log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
	} else if deleted > 0 {
		log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old ledger entries")
	}
}
