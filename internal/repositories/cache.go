package repositories

import (
	"context"
	"time"

	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CacheRepository provides access to the durable external-API response cache.
type CacheRepository struct {
	db *gorm.DB
}

// NewCacheRepository creates a new cache repository
func NewCacheRepository(db *gorm.DB) *CacheRepository {
	return &CacheRepository{db: db}
}

// Get returns the cached payload for key, or nil when the key is absent or
// already expired.
func (r *CacheRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var entry models.CacheEntry
	err := r.db.WithContext(ctx).
		Where("key = ? AND expires_at > ?", key, time.Now().UTC()).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read cache entry")
	}
	return entry.Payload, nil
}

// Put upserts a cache entry with the given time to live.
func (r *CacheRepository) Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	entry := models.CacheEntry{
		Key:       key,
		Payload:   payload,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			UpdateAll: true,
		}).
		Create(&entry).Error
	if err != nil {
		return errors.Wrap(err, "failed to write cache entry")
	}
	return nil
}

// DeleteExpired removes entries whose expiry has passed and returns the
// number deleted. Entries with a future expiry are untouched.
func (r *CacheRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&models.CacheEntry{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to delete expired cache entries")
	}
	return result.RowsAffected, nil
}
