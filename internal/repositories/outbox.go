package repositories

import (
	"context"
	"time"

	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OutboxRepository provides access to the outbox event table. The relay is
// the only component that drains it; business code appends through
// events.Record on its own transaction.
type OutboxRepository struct {
	db *gorm.DB
}

// NewOutboxRepository creates a new outbox repository
func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// OutboxStats summarizes the pending side of the outbox table.
type OutboxStats struct {
	Pending       int64      `json:"pending"`
	OldestPending *time.Time `json:"oldest_pending"`
}

// DrainPending claims up to limit pending rows and feeds them to fn inside a
// single transaction. Claimed rows are locked with FOR UPDATE SKIP LOCKED so
// concurrent relay instances never work the same row, while a crash before
// commit releases the claim and leaves the rows pending. Rows are visited in
// creation order (created_at, id). When fn returns nil the row's processed
// timestamp is set, guarded on it still being null; otherwise the attempt
// counter is bumped and the row stays pending. When maxAttempts is positive,
// rows that already reached it are not claimed. Returns the number of rows
// processed and the number that failed.
func (r *OutboxRepository) DrainPending(ctx context.Context, limit, maxAttempts int, fn func(models.OutboxEvent) error) (int, int, error) {
	var processed, failed int

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []models.OutboxEvent

		q := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("processed_at IS NULL")
		if maxAttempts > 0 {
			q = q.Where("attempts < ?", maxAttempts)
		}
		if err := q.Order("created_at, id").Limit(limit).Find(&rows).Error; err != nil {
			return errors.Wrap(err, "failed to claim pending outbox events")
		}

		for i := range rows {
			// Shutdown finishes the current item, not the batch
			if ctx.Err() != nil {
				break
			}

			if err := fn(rows[i]); err != nil {
				failed++
				uerr := tx.Model(&models.OutboxEvent{}).
					Where("id = ?", rows[i].ID).
					UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error
				if uerr != nil {
					return errors.Wrap(uerr, "failed to record outbox attempt")
				}
				continue
			}

			now := time.Now().UTC()
			uerr := tx.Model(&models.OutboxEvent{}).
				Where("id = ? AND processed_at IS NULL", rows[i].ID).
				Update("processed_at", now).Error
			if uerr != nil {
				return errors.Wrap(uerr, "failed to mark outbox event processed")
			}
			processed++
		}

		return nil
	})

	return processed, failed, err
}

// MarkProcessed sets the processed timestamp for an event. Marking an
// already-processed row again is a no-op.
func (r *OutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Model(&models.OutboxEvent{}).
		Where("id = ? AND processed_at IS NULL", id).
		Update("processed_at", time.Now().UTC()).Error
	if err != nil {
		return errors.Wrap(err, "failed to mark outbox event processed")
	}
	return nil
}

// DeleteProcessedOlderThan purges processed rows older than age and returns
// the number of rows deleted.
func (r *OutboxRepository) DeleteProcessedOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-age)
	result := r.db.WithContext(ctx).
		Where("processed_at IS NOT NULL AND processed_at < ?", cutoff).
		Delete(&models.OutboxEvent{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to purge processed outbox events")
	}
	return result.RowsAffected, nil
}

// Stats returns the pending row count and the age marker of the oldest
// pending row.
func (r *OutboxRepository) Stats(ctx context.Context) (*OutboxStats, error) {
	stats := &OutboxStats{}

	err := r.db.WithContext(ctx).
		Model(&models.OutboxEvent{}).
		Where("processed_at IS NULL").
		Count(&stats.Pending).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to count pending outbox events")
	}

	if stats.Pending > 0 {
		var oldest models.OutboxEvent
		err = r.db.WithContext(ctx).
			Where("processed_at IS NULL").
			Order("created_at, id").
			First(&oldest).Error
		if err != nil {
			return nil, errors.Wrap(err, "failed to find oldest pending outbox event")
		}
		stats.OldestPending = &oldest.CreatedAt
	}

	return stats, nil
}
