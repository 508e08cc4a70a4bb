package services

import (
	"context"
	"testing"
	"time"

	"github.com/cajo-dk/mycousinvinyl-ha-sub001/config"
	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/events"
	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeMarketStore struct {
	stale       []models.Pressing
	snapshots   []*models.MarketData
	eventsSaved []events.DomainEvent
	sentinels   []uuid.UUID
}

func (s *fakeMarketStore) FindStale(ctx context.Context, olderThan time.Duration, limit int) ([]models.Pressing, error) {
	return s.stale, nil
}

func (s *fakeMarketStore) SaveSnapshot(ctx context.Context, snap *models.MarketData, ev events.DomainEvent, destination string) error {
	s.snapshots = append(s.snapshots, snap)
	s.eventsSaved = append(s.eventsSaved, ev)
	return nil
}

func (s *fakeMarketStore) MarkUnavailable(ctx context.Context, pressingID uuid.UUID, ev events.DomainEvent, destination string) error {
	s.sentinels = append(s.sentinels, pressingID)
	if ev != nil {
		s.eventsSaved = append(s.eventsSaved, ev)
	}
	return nil
}

type fakeResponseCache struct {
	entries map[string][]byte
	puts    int
}

func (c *fakeResponseCache) Get(ctx context.Context, key string) ([]byte, error) {
	return c.entries[key], nil
}

func (c *fakeResponseCache) Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if c.entries == nil {
		c.entries = make(map[string][]byte)
	}
	c.entries[key] = payload
	c.puts++
	return nil
}

type fakePriceSource struct {
	quote   *PriceQuote
	err     error
	lookups int
}

func (s *fakePriceSource) LookupRelease(ctx context.Context, releaseID string) (*PriceQuote, error) {
	s.lookups++
	return s.quote, s.err
}

func pressingWithRelease(releaseID string) models.Pressing {
	return models.Pressing{
		ID:               uuid.New(),
		AlbumID:          uuid.New(),
		DiscogsReleaseID: &releaseID,
	}
}

func testSweepConfig() config.SweepConfig {
	return config.SweepConfig{
		PricingStaleDays:  30,
		PricingBatchLimit: 25,
	}
}

func TestRefreshStoresSnapshotAndRaisesEvent(t *testing.T) {
	pressing := pressingWithRelease("12345")
	minPrice := 19.99
	market := &fakeMarketStore{stale: []models.Pressing{pressing}}
	source := &fakePriceSource{quote: &PriceQuote{MinPrice: &minPrice, Currency: "EUR"}}

	svc := NewPricingService(market, &fakeResponseCache{}, nil, source, nil, nil, testSweepConfig(), time.Hour)
	require.NoError(t, svc.RefreshStalePricing(context.Background()))

	require.Len(t, market.snapshots, 1)
	snap := market.snapshots[0]
	require.Equal(t, pressing.ID, snap.PressingID)
	require.Equal(t, models.AvailabilityAvailable, snap.AvailabilityStatus)
	require.Equal(t, &minPrice, snap.MinPrice)

	require.Len(t, market.eventsSaved, 1)
	require.Equal(t, "pressing.price_updated", market.eventsSaved[0].Kind())
	require.Empty(t, market.sentinels)
}

func TestFailedLookupWritesUnavailableSentinel(t *testing.T) {
	pressing := pressingWithRelease("12345")
	market := &fakeMarketStore{stale: []models.Pressing{pressing}}
	source := &fakePriceSource{err: errors.New("rate limited")}

	svc := NewPricingService(market, &fakeResponseCache{}, nil, source, nil, nil, testSweepConfig(), time.Hour)
	require.NoError(t, svc.RefreshStalePricing(context.Background()))

	require.Empty(t, market.snapshots)
	require.Equal(t, []uuid.UUID{pressing.ID}, market.sentinels)

	require.Len(t, market.eventsSaved, 1)
	require.Equal(t, "pressing.pricing_unavailable", market.eventsSaved[0].Kind())
}

func TestOneFailedLookupDoesNotAbortTheBatch(t *testing.T) {
	good := pressingWithRelease("1")
	bad := pressingWithRelease("2")
	market := &fakeMarketStore{stale: []models.Pressing{bad, good}}

	minPrice := 5.0
	calls := 0
	source := &sequencedSource{results: []sequencedResult{
		{err: errors.New("not found")},
		{quote: &PriceQuote{MinPrice: &minPrice, Currency: "USD"}},
	}, calls: &calls}

	svc := NewPricingService(market, &fakeResponseCache{}, nil, source, nil, nil, testSweepConfig(), time.Hour)
	require.NoError(t, svc.RefreshStalePricing(context.Background()))

	require.Len(t, market.sentinels, 1)
	require.Len(t, market.snapshots, 1)
	require.Equal(t, good.ID, market.snapshots[0].PressingID)
}

type sequencedResult struct {
	quote *PriceQuote
	err   error
}

type sequencedSource struct {
	results []sequencedResult
	calls   *int
}

func (s *sequencedSource) LookupRelease(ctx context.Context, releaseID string) (*PriceQuote, error) {
	res := s.results[*s.calls]
	*s.calls++
	return res.quote, res.err
}

func TestCachedQuoteSkipsTheSource(t *testing.T) {
	pressing := pressingWithRelease("777")
	market := &fakeMarketStore{stale: []models.Pressing{pressing}}
	source := &fakePriceSource{err: errors.New("must not be called")}

	apiCache := &fakeResponseCache{entries: map[string][]byte{
		"discogs:release:777": []byte(`{"min_price":9.5,"currency":"GBP"}`),
	}}

	svc := NewPricingService(market, apiCache, nil, source, nil, nil, testSweepConfig(), time.Hour)
	require.NoError(t, svc.RefreshStalePricing(context.Background()))

	require.Zero(t, source.lookups)
	require.Len(t, market.snapshots, 1)
	require.Equal(t, "GBP", market.snapshots[0].Currency)
}

func TestFreshLookupIsWrittenThroughToTheCache(t *testing.T) {
	pressing := pressingWithRelease("888")
	market := &fakeMarketStore{stale: []models.Pressing{pressing}}
	minPrice := 42.0
	source := &fakePriceSource{quote: &PriceQuote{MinPrice: &minPrice, Currency: "EUR"}}
	apiCache := &fakeResponseCache{}

	svc := NewPricingService(market, apiCache, nil, source, nil, nil, testSweepConfig(), time.Hour)
	require.NoError(t, svc.RefreshStalePricing(context.Background()))

	require.Equal(t, 1, source.lookups)
	require.Equal(t, 1, apiCache.puts)
	require.Contains(t, apiCache.entries, "discogs:release:888")
}
