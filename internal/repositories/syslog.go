package repositories

import (
	"context"
	"time"

	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// SystemLogRepository provides access to the append-only audit log.
type SystemLogRepository struct {
	db *gorm.DB
}

// NewSystemLogRepository creates a new system log repository
func NewSystemLogRepository(db *gorm.DB) *SystemLogRepository {
	return &SystemLogRepository{db: db}
}

// Write appends one audit record.
func (r *SystemLogRepository) Write(ctx context.Context, severity, component, message, userName string) error {
	entry := models.SystemLogEntry{
		Severity:  severity,
		Component: component,
		Message:   message,
		UserName:  userName,
	}
	if err := r.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return errors.Wrap(err, "failed to write system log entry")
	}
	return nil
}

// DeleteOlderThan removes audit records created before cutoff and returns
// the number deleted.
func (r *SystemLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.SystemLogEntry{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to prune system log entries")
	}
	return result.RowsAffected, nil
}
