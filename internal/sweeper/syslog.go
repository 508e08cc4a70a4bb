package sweeper

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// LogStore is the audit log access the pruning sweeper needs.
type LogStore interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// LogPruning removes audit records older than the retention window.
type LogPruning struct {
	store         LogStore
	retentionDays int
}

// NewLogPruning creates the log pruning sweeper
func NewLogPruning(store LogStore, retentionDays int) *LogPruning {
	return &LogPruning{store: store, retentionDays: retentionDays}
}

// Name identifies the sweeper in logs and traces
func (s *LogPruning) Name() string { return "log-pruning" }

// Sweep deletes audit records past retention.
func (s *LogPruning) Sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	pruned, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return errors.Wrap(err, "failed to prune system log entries")
	}
	if pruned > 0 {
		log.Info().Int64("pruned", pruned).Int("retention_days", s.retentionDays).Msg("Pruned system log entries")
	}
	return nil
}
