package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetReturnsNilForExpiredEntries(t *testing.T) {
	db := openTestDB(t)
	repo := NewCacheRepository(db)

	require.NoError(t, repo.Put(context.Background(), "live", []byte(`{"a":1}`), time.Hour))
	require.NoError(t, repo.Put(context.Background(), "expired", []byte(`{"b":2}`), -time.Minute))

	payload, err := repo.Get(context.Background(), "live")
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, string(payload))

	payload, err = repo.Get(context.Background(), "expired")
	require.NoError(t, err)
	require.Nil(t, payload)

	payload, err = repo.Get(context.Background(), "absent")
	require.NoError(t, err)
	require.Nil(t, payload)
}

func TestPutRefreshesAnExistingEntry(t *testing.T) {
	db := openTestDB(t)
	repo := NewCacheRepository(db)

	require.NoError(t, repo.Put(context.Background(), "quote", []byte(`{"v":1}`), -time.Minute))
	require.NoError(t, repo.Put(context.Background(), "quote", []byte(`{"v":2}`), time.Hour))

	payload, err := repo.Get(context.Background(), "quote")
	require.NoError(t, err)
	require.JSONEq(t, `{"v":2}`, string(payload))
}

func TestDeleteExpiredSparesLiveEntries(t *testing.T) {
	db := openTestDB(t)
	repo := NewCacheRepository(db)

	require.NoError(t, repo.Put(context.Background(), "live", []byte(`{"a":1}`), time.Hour))
	require.NoError(t, repo.Put(context.Background(), "expired", []byte(`{"b":2}`), -time.Minute))

	deleted, err := repo.DeleteExpired(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	payload, err := repo.Get(context.Background(), "live")
	require.NoError(t, err)
	require.NotNil(t, payload)

	deleted, err = repo.DeleteExpired(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Zero(t, deleted)
}
