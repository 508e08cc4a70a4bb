package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/events"
	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func createPressing(t *testing.T, db *gorm.DB, releaseID *string) models.Pressing {
	t.Helper()

	p := models.Pressing{
		ID:               uuid.New(),
		AlbumID:          uuid.New(),
		Format:           "LP",
		DiscogsReleaseID: releaseID,
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func createSnapshot(t *testing.T, db *gorm.DB, pressingID uuid.UUID, age time.Duration) {
	t.Helper()

	price := 10.0
	snap := models.MarketData{
		PressingID:         pressingID,
		MedianPrice:        &price,
		Currency:           "EUR",
		AvailabilityStatus: models.AvailabilityAvailable,
		UpdatedAt:          time.Now().UTC().Add(-age),
	}
	require.NoError(t, db.Create(&snap).Error)
}

func strptr(s string) *string { return &s }

func TestFindStaleSelectsMissingAndOutdatedSnapshotsOnly(t *testing.T) {
	db := openTestDB(t)
	repo := NewMarketDataRepository(db)

	noSnapshot := createPressing(t, db, strptr("1001"))
	outdated := createPressing(t, db, strptr("1002"))
	createSnapshot(t, db, outdated.ID, 60*24*time.Hour)
	fresh := createPressing(t, db, strptr("1003"))
	createSnapshot(t, db, fresh.ID, time.Hour)
	createPressing(t, db, nil) // no external release id, never priced

	rows, err := repo.FindStale(context.Background(), 30*24*time.Hour, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	ids := []uuid.UUID{rows[0].ID, rows[1].ID}
	require.Contains(t, ids, noSnapshot.ID)
	require.Contains(t, ids, outdated.ID)
}

func TestFindStalePutsCollectionHeldPressingsFirst(t *testing.T) {
	db := openTestDB(t)
	repo := NewMarketDataRepository(db)

	unheld := createPressing(t, db, strptr("2001"))
	held := createPressing(t, db, strptr("2002"))
	createSnapshot(t, db, held.ID, 60*24*time.Hour)
	require.NoError(t, db.Create(&models.CollectionEntry{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		PressingID: held.ID,
	}).Error)

	rows, err := repo.FindStale(context.Background(), 30*24*time.Hour, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, held.ID, rows[0].ID)
	require.Equal(t, unheld.ID, rows[1].ID)
}

func TestFreshSentinelSuppressesReselection(t *testing.T) {
	db := openTestDB(t)
	repo := NewMarketDataRepository(db)

	pressing := createPressing(t, db, strptr("3001"))
	require.NoError(t, repo.MarkUnavailable(context.Background(), pressing.ID, nil, ""))

	rows, err := repo.FindStale(context.Background(), 30*24*time.Hour, 10)
	require.NoError(t, err)
	require.Empty(t, rows)

	// Once the sentinel itself goes stale the pressing is retried
	require.NoError(t, db.Model(&models.MarketData{}).
		Where("pressing_id = ?", pressing.ID).
		UpdateColumn("updated_at", time.Now().UTC().Add(-40*24*time.Hour)).Error)

	rows, err = repo.FindStale(context.Background(), 30*24*time.Hour, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, pressing.ID, rows[0].ID)
}

func TestMarkUnavailableWritesSentinelAndEventTogether(t *testing.T) {
	db := openTestDB(t)
	repo := NewMarketDataRepository(db)

	pressing := createPressing(t, db, strptr("4001"))
	price := 25.0
	createSnapshot(t, db, pressing.ID, time.Hour)
	require.NoError(t, db.Model(&models.MarketData{}).
		Where("pressing_id = ?", pressing.ID).
		UpdateColumn("median_price", price).Error)

	ev := events.PressingPricingUnavailable{PressingID: pressing.ID, Reason: "rate limited"}
	require.NoError(t, repo.MarkUnavailable(context.Background(), pressing.ID, ev, events.DestinationFor(ev)))

	snap, err := repo.Get(context.Background(), pressing.ID)
	require.NoError(t, err)
	require.NotNil(t, snap)
	require.Equal(t, models.AvailabilityUnavailable, snap.AvailabilityStatus)
	require.Nil(t, snap.MedianPrice)

	var outbox models.OutboxEvent
	require.NoError(t, db.First(&outbox, "aggregate_id = ?", pressing.ID.String()).Error)
	require.Equal(t, "/topic/pressing.pricing_unavailable", outbox.Destination)
	require.Nil(t, outbox.ProcessedAt)
}

func TestSaveSnapshotUpsertsAndRecordsTheEvent(t *testing.T) {
	db := openTestDB(t)
	repo := NewMarketDataRepository(db)

	pressing := createPressing(t, db, strptr("5001"))
	createSnapshot(t, db, pressing.ID, 60*24*time.Hour)

	price := 42.0
	snap := &models.MarketData{
		PressingID:         pressing.ID,
		MedianPrice:        &price,
		Currency:           "USD",
		AvailabilityStatus: models.AvailabilityAvailable,
		UpdatedAt:          time.Now().UTC(),
	}
	ev := events.PressingPriceUpdated{PressingID: pressing.ID, MedianPrice: &price, Currency: "USD"}
	require.NoError(t, repo.SaveSnapshot(context.Background(), snap, ev, events.DestinationFor(ev)))

	stored, err := repo.Get(context.Background(), pressing.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, "USD", stored.Currency)
	require.NotNil(t, stored.MedianPrice)
	require.Equal(t, price, *stored.MedianPrice)

	var count int64
	require.NoError(t, db.Model(&models.MarketData{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	var outbox models.OutboxEvent
	require.NoError(t, db.First(&outbox, "aggregate_id = ?", pressing.ID.String()).Error)
	require.Equal(t, "/topic/pressing.price_updated", outbox.Destination)
}
