package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/cajo-dk/mycousinvinyl-ha-sub001/config"
	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/tracing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCacheStore struct {
	mock.Mock
}

func (m *MockCacheStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

type MockLogStore struct {
	mock.Mock
}

func (m *MockLogStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type countingSweeper struct {
	runs int
	err  error
}

func (s *countingSweeper) Name() string { return "counting" }

func (s *countingSweeper) Sweep(ctx context.Context) error {
	s.runs++
	return s.err
}

type panickingSweeper struct{}

func (panickingSweeper) Name() string { return "panicking" }

func (panickingSweeper) Sweep(ctx context.Context) error { panic("boom") }

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	tracer, err := tracing.NewTracer(config.TracingConfig{})
	require.NoError(t, err)
	runner, err := NewRunner(tracer)
	require.NoError(t, err)
	return runner
}

func TestRunPassContainsFailures(t *testing.T) {
	runner := newTestRunner(t)

	failing := &countingSweeper{err: errors.New("store down")}
	require.NotPanics(t, func() {
		runner.runPass(context.Background(), failing)
	})
	require.Equal(t, 1, failing.runs)

	require.NotPanics(t, func() {
		runner.runPass(context.Background(), panickingSweeper{})
	})
}

func TestDailyGuardRunsAtMostOncePerDay(t *testing.T) {
	inner := &countingSweeper{}
	guard := &dailyGuard{inner: inner}

	require.NoError(t, guard.Sweep(context.Background()))
	require.NoError(t, guard.Sweep(context.Background()))
	require.NoError(t, guard.Sweep(context.Background()))

	require.Equal(t, 1, inner.runs)
}

func TestDailyGuardRunsAgainOnANewDay(t *testing.T) {
	inner := &countingSweeper{}
	guard := &dailyGuard{inner: inner, lastRun: "1999-12-31"}

	require.NoError(t, guard.Sweep(context.Background()))
	require.Equal(t, 1, inner.runs)
}

func TestCacheEvictionDeletesOnlyExpired(t *testing.T) {
	store := new(MockCacheStore)
	store.On("DeleteExpired", mock.Anything, mock.MatchedBy(func(now time.Time) bool {
		return time.Since(now) < time.Minute
	})).Return(int64(1), nil)

	s := NewCacheEviction(store)
	require.NoError(t, s.Sweep(context.Background()))
	store.AssertExpectations(t)
}

func TestCacheEvictionWrapsStoreErrors(t *testing.T) {
	store := new(MockCacheStore)
	store.On("DeleteExpired", mock.Anything, mock.Anything).Return(int64(0), errors.New("connection refused"))

	s := NewCacheEviction(store)
	err := s.Sweep(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to evict expired cache entries")
}

func TestLogPruningUsesRetentionCutoff(t *testing.T) {
	retentionDays := 30
	store := new(MockLogStore)
	store.On("DeleteOlderThan", mock.Anything, mock.MatchedBy(func(cutoff time.Time) bool {
		want := time.Now().UTC().AddDate(0, 0, -retentionDays)
		diff := want.Sub(cutoff)
		if diff < 0 {
			diff = -diff
		}
		return diff < time.Minute
	})).Return(int64(5), nil)

	s := NewLogPruning(store, retentionDays)
	require.NoError(t, s.Sweep(context.Background()))
	store.AssertExpectations(t)
}
