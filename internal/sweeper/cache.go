package sweeper

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// CacheStore is the cache table access the eviction sweeper needs.
type CacheStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// CacheEviction removes external-API cache entries whose expiry has passed.
type CacheEviction struct {
	store CacheStore
}

// NewCacheEviction creates the cache eviction sweeper
func NewCacheEviction(store CacheStore) *CacheEviction {
	return &CacheEviction{store: store}
}

// Name identifies the sweeper in logs and traces
func (s *CacheEviction) Name() string { return "cache-eviction" }

// Sweep deletes expired cache entries.
func (s *CacheEviction) Sweep(ctx context.Context) error {
	evicted, err := s.store.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "failed to evict expired cache entries")
	}
	if evicted > 0 {
		log.Info().Int64("evicted", evicted).Msg("Evicted expired cache entries")
	}
	return nil
}
