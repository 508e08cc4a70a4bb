package repositories

import (
	"context"
	"time"

	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/events"
	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MarketDataRepository provides access to per-pressing pricing snapshots.
type MarketDataRepository struct {
	db *gorm.DB
}

// NewMarketDataRepository creates a new market data repository
func NewMarketDataRepository(db *gorm.DB) *MarketDataRepository {
	return &MarketDataRepository{db: db}
}

// FindStale returns up to limit pressings whose pricing needs a refresh:
// pressings with an external release id that either have no market data row
// at all or one older than the threshold. Pressings held in at least one
// user's collection come first.
func (r *MarketDataRepository) FindStale(ctx context.Context, olderThan time.Duration, limit int) ([]models.Pressing, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	var rows []models.Pressing
	err := r.db.WithContext(ctx).
		Table("pressings p").
		Select("p.*").
		Joins("LEFT JOIN market_data m ON m.pressing_id = p.id").
		Where("p.discogs_release_id IS NOT NULL").
		Where("m.pressing_id IS NULL OR m.updated_at < ?", cutoff).
		Order("(EXISTS (SELECT 1 FROM collection_entries c WHERE c.pressing_id = p.id)) DESC").
		Order("m.updated_at ASC NULLS FIRST").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to select stale pressings")
	}
	return rows, nil
}

// SaveSnapshot upserts a market data snapshot and, when ev is non-nil,
// records the domain event on the same transaction so snapshot and event are
// all-or-nothing.
func (r *MarketDataRepository) SaveSnapshot(ctx context.Context, snap *models.MarketData, ev events.DomainEvent, destination string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pressing_id"}},
			UpdateAll: true,
		}).Create(snap).Error
		if err != nil {
			return errors.Wrap(err, "failed to upsert market data snapshot")
		}

		if ev != nil {
			return events.Record(tx, ev, snap.PressingID.String(), "pressing", destination)
		}
		return nil
	})
}

// MarkUnavailable writes the "pricing unavailable" sentinel: null values
// with a fresh timestamp, so the pressing is not re-selected until the
// sentinel itself goes stale. When ev is non-nil the event is recorded on
// the same transaction, so sentinel and event are all-or-nothing.
func (r *MarketDataRepository) MarkUnavailable(ctx context.Context, pressingID uuid.UUID, ev events.DomainEvent, destination string) error {
	sentinel := models.MarketData{
		PressingID:         pressingID,
		AvailabilityStatus: models.AvailabilityUnavailable,
		UpdatedAt:          time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pressing_id"}},
			UpdateAll: true,
		}).Create(&sentinel).Error
		if err != nil {
			return errors.Wrap(err, "failed to write pricing-unavailable sentinel")
		}

		if ev != nil {
			return events.Record(tx, ev, pressingID.String(), "pressing", destination)
		}
		return nil
	})
}

// Get returns the market data snapshot for a pressing, or nil when none
// exists.
func (r *MarketDataRepository) Get(ctx context.Context, pressingID uuid.UUID) (*models.MarketData, error) {
	var snap models.MarketData
	err := r.db.WithContext(ctx).
		Where("pressing_id = ?", pressingID).
		First(&snap).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get market data")
	}
	return &snap, nil
}
