package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cajo-dk/mycousinvinyl-ha-sub001/config"
	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/cache"
	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/events"
	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// PriceQuote is the marketplace pricing for one release.
type PriceQuote struct {
	MinPrice      *float64 `json:"min_price"`
	MedianPrice   *float64 `json:"median_price"`
	MaxPrice      *float64 `json:"max_price"`
	LastSoldPrice *float64 `json:"last_sold_price"`
	Currency      string   `json:"currency"`
}

// PriceSource looks up marketplace pricing for an external release id.
type PriceSource interface {
	LookupRelease(ctx context.Context, releaseID string) (*PriceQuote, error)
}

// MarketStore is the market data access the pricing refresh needs.
type MarketStore interface {
	FindStale(ctx context.Context, olderThan time.Duration, limit int) ([]models.Pressing, error)
	SaveSnapshot(ctx context.Context, snap *models.MarketData, ev events.DomainEvent, destination string) error
	MarkUnavailable(ctx context.Context, pressingID uuid.UUID, ev events.DomainEvent, destination string) error
}

// ResponseCache is the durable external-API response cache.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}

// SnapshotIndexer indexes refreshed snapshots for search.
type SnapshotIndexer interface {
	IndexMarketData(ctx context.Context, snap *models.MarketData) error
}

// AuditLog writes audit records.
type AuditLog interface {
	Write(ctx context.Context, severity, component, message, userName string) error
}

// PricingService refreshes stale pricing snapshots. It is invoked on demand
// rather than running as a background loop.
type PricingService struct {
	market     MarketStore
	apiCache   ResponseCache
	redisCache *cache.RedisCache
	source     PriceSource
	indexer    SnapshotIndexer
	audit      AuditLog
	staleAfter time.Duration
	batchLimit int
	cacheTTL   time.Duration
}

// NewPricingService creates a new pricing refresh service. indexer and audit
// may be nil.
func NewPricingService(
	market MarketStore,
	apiCache ResponseCache,
	redisCache *cache.RedisCache,
	source PriceSource,
	indexer SnapshotIndexer,
	audit AuditLog,
	sweepCfg config.SweepConfig,
	cacheTTL time.Duration,
) *PricingService {
	return &PricingService{
		market:     market,
		apiCache:   apiCache,
		redisCache: redisCache,
		source:     source,
		indexer:    indexer,
		audit:      audit,
		staleAfter: time.Duration(sweepCfg.PricingStaleDays) * 24 * time.Hour,
		batchLimit: sweepCfg.PricingBatchLimit,
		cacheTTL:   cacheTTL,
	}
}

// RefreshStalePricing selects one batch of stale pressings and refreshes
// each. A single failed lookup writes the unavailable sentinel and moves on;
// it never aborts the batch.
func (s *PricingService) RefreshStalePricing(ctx context.Context) error {
	pressings, err := s.market.FindStale(ctx, s.staleAfter, s.batchLimit)
	if err != nil {
		return errors.Wrap(err, "failed to select stale pressings")
	}

	log.Info().Int("count", len(pressings)).Msg("Refreshing stale pricing")

	for i := range pressings {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.refreshOne(ctx, &pressings[i]); err != nil {
			log.Warn().
				Err(err).
				Str("pressing_id", pressings[i].ID.String()).
				Msg("Failed to refresh pricing for pressing")
		}
	}

	return nil
}

// refreshOne refreshes a single pressing's snapshot, raising the price
// update event in the same transaction.
func (s *PricingService) refreshOne(ctx context.Context, pressing *models.Pressing) error {
	if pressing.DiscogsReleaseID == nil {
		return errors.New("pressing has no external release id")
	}

	quote, err := s.lookup(ctx, *pressing.DiscogsReleaseID)
	if err != nil {
		unavailable := events.PressingPricingUnavailable{
			PressingID: pressing.ID,
			Reason:     err.Error(),
		}
		if merr := s.market.MarkUnavailable(ctx, pressing.ID, unavailable, events.DestinationFor(unavailable)); merr != nil {
			return errors.Wrap(merr, "failed to write pricing-unavailable sentinel")
		}
		if s.audit != nil {
			if aerr := s.audit.Write(ctx, "warning", "pricing",
				fmt.Sprintf("pricing lookup failed for pressing %s, sentinel written", pressing.ID), "system"); aerr != nil {
				log.Warn().Err(aerr).Msg("Failed to write audit entry")
			}
		}
		return errors.Wrap(err, "price lookup failed")
	}

	snap := &models.MarketData{
		PressingID:         pressing.ID,
		MinPrice:           quote.MinPrice,
		MedianPrice:        quote.MedianPrice,
		MaxPrice:           quote.MaxPrice,
		LastSoldPrice:      quote.LastSoldPrice,
		Currency:           quote.Currency,
		AvailabilityStatus: models.AvailabilityAvailable,
		UpdatedAt:          time.Now().UTC(),
	}

	ev := events.PressingPriceUpdated{
		PressingID:    pressing.ID,
		MinPrice:      quote.MinPrice,
		MedianPrice:   quote.MedianPrice,
		MaxPrice:      quote.MaxPrice,
		LastSoldPrice: quote.LastSoldPrice,
		Currency:      quote.Currency,
	}

	if err := s.market.SaveSnapshot(ctx, snap, ev, events.DestinationFor(ev)); err != nil {
		return errors.Wrap(err, "failed to save market data snapshot")
	}

	if s.indexer != nil {
		if err := s.indexer.IndexMarketData(ctx, snap); err != nil {
			log.Warn().Err(err).Str("pressing_id", pressing.ID.String()).Msg("Failed to index snapshot, continuing")
		}
	}

	return nil
}

// lookup resolves a quote through the read-through cache hierarchy: redis,
// then the durable api_cache table, then the external source.
func (s *PricingService) lookup(ctx context.Context, releaseID string) (*PriceQuote, error) {
	key := cache.ReleasePriceKey(releaseID)

	if s.redisCache != nil {
		var quote PriceQuote
		if err := s.redisCache.Get(ctx, key, &quote); err == nil {
			return &quote, nil
		}
	}

	if s.apiCache != nil {
		raw, err := s.apiCache.Get(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Cache read failed, falling through to source")
		} else if raw != nil {
			var quote PriceQuote
			if err := json.Unmarshal(raw, &quote); err == nil {
				return &quote, nil
			}
		}
	}

	quote, err := s.source.LookupRelease(ctx, releaseID)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(quote); err == nil {
		if s.apiCache != nil {
			if err := s.apiCache.Put(ctx, key, raw, s.cacheTTL); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("Failed to write durable cache entry")
			}
		}
	}
	if s.redisCache != nil {
		if err := s.redisCache.Set(ctx, key, quote, s.cacheTTL); err != nil {
			log.Debug().Err(err).Str("key", key).Msg("Redis cache write skipped")
		}
	}

	return quote, nil
}
