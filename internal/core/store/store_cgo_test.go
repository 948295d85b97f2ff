//go:build cgo

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/icdlens/icdlens/internal/config"
)

func openMemoryStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), config.StoreConfig{Driver: "libsql", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func freezeClock(t *testing.T, at time.Time) *time.Time {
	t.Helper()
	current := at
	original := now
	now = func() time.Time { return current }
	t.Cleanup(func() { now = original })
	return &current
}

func TestOpenMemoryStore(t *testing.T) {
	s := openMemoryStore(t)
	require.Equal(t, "libsql", s.Driver())
	require.NoError(t, s.PingContext(context.Background()))
	// idempotent
	require.NoError(t, s.Migrate(context.Background()))
}

func TestCachedPayloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openMemoryStore(t)
	clock := freezeClock(t, time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC))

	key := "https://catalog.test/clinical/icd10/search?q=asma"
	payload := []byte(`{"results":[{"code":"J45.9"}]}`)

	got, err := s.GetCachedPayload(ctx, key)
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, s.SetCachedPayload(ctx, key, payload, time.Minute))

	got, err = s.GetCachedPayload(ctx, key)
	require.NoError(t, err)
	require.JSONEq(t, string(payload), string(got))

	stats, err := s.CacheStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Entries)
	require.Equal(t, int64(1), stats.Hits)

	*clock = clock.Add(2 * time.Minute)
	got, err = s.GetCachedPayload(ctx, key)
	require.NoError(t, err)
	require.Nil(t, got)

	stats, err = s.CacheStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Expired)

	purged, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), purged)
}

func TestSetCachedPayloadSkipsZeroTTL(t *testing.T) {
	ctx := context.Background()
	s := openMemoryStore(t)

	require.NoError(t, s.SetCachedPayload(ctx, "k", []byte(`[]`), 0))
	stats, err := s.CacheStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, stats.Entries)
	require.Nil(t, stats.Oldest)
}

func TestClearCache(t *testing.T) {
	ctx := context.Background()
	s := openMemoryStore(t)

	require.NoError(t, s.SetCachedPayload(ctx, "a", []byte(`[]`), time.Hour))
	require.NoError(t, s.SetCachedPayload(ctx, "b", []byte(`[]`), time.Hour))

	removed, err := s.ClearCache(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)
}

func TestOpenFileStoreUsesWAL(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, config.StoreConfig{Path: "file:" + t.TempDir() + "/icdlens.db"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.Equal(t, 1, s.DB.Stats().MaxOpenConnections)

	var journalMode string
	require.NoError(t, s.DB.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode))
	require.Contains(t, journalMode, "wal")

	var busyTimeout int
	require.NoError(t, s.DB.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busyTimeout))
	require.Equal(t, busyTimeoutMillis, busyTimeout)

	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.SetCachedPayload(ctx, "k", []byte(`{"total":0}`), time.Minute))
}
