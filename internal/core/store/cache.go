package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/icdlens/icdlens/internal/core/fetch"
)

var _ fetch.PayloadStore = (*Store)(nil)

// CacheStats summarizes the search_cache table.
type CacheStats struct {
	Entries int
	Expired int
	Hits    int64
	Oldest  *time.Time
	Newest  *time.Time
}

// now is replaced in tests.
var now = func() time.Time { return time.Now().UTC() }

// GetCachedPayload returns the raw JSON cached under key, or nil when there
// is no live entry.
func (s *Store) GetCachedPayload(ctx context.Context, key string) ([]byte, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("cache key is required")
	}

	var payload string
	err := s.DB.QueryRowContext(ctx, `
		SELECT payload
		FROM search_cache
		WHERE cache_key = ? AND expires_at > ?
	`, key, now().Unix()).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch cached payload: %w", err)
	}

	if _, err := s.DB.ExecContext(ctx, `UPDATE search_cache SET hit_count = hit_count + 1 WHERE cache_key = ?`, key); err != nil {
		return nil, fmt.Errorf("record cache hit: %w", err)
	}
	return []byte(payload), nil
}

// SetCachedPayload upserts payload with the given TTL. A non-positive TTL
// stores nothing.
func (s *Store) SetCachedPayload(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if ttl <= 0 || len(payload) == 0 {
		return nil
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("cache key is required")
	}

	cachedAt := now()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO search_cache (cache_key, payload, cached_at, expires_at, hit_count)
		VALUES (?, ?, ?, ?, 0)
		ON CONFLICT(cache_key) DO UPDATE SET
			payload = excluded.payload,
			cached_at = excluded.cached_at,
			expires_at = excluded.expires_at,
			hit_count = 0
	`, key, string(payload), cachedAt.Unix(), cachedAt.Add(ttl).Unix())
	if err != nil {
		return fmt.Errorf("store cached payload: %w", err)
	}
	return nil
}

// PurgeExpired deletes entries whose TTL has passed and returns how many
// were removed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	return s.deleteWhere(ctx, "WHERE expires_at <= ?", now().Unix())
}

// ClearCache deletes every cached payload.
func (s *Store) ClearCache(ctx context.Context) (int64, error) {
	return s.deleteWhere(ctx, "")
}

func (s *Store) deleteWhere(ctx context.Context, where string, args ...any) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx, "DELETE FROM search_cache "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete cached payloads: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete cached payloads: %w", err)
	}
	return affected, nil
}

func (s *Store) CacheStats(ctx context.Context) (CacheStats, error) {
	if s == nil || s.DB == nil {
		return CacheStats{}, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		stats          CacheStats
		expired, hits  sql.NullInt64
		oldest, newest sql.NullInt64
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*),
			SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END),
			SUM(hit_count),
			MIN(cached_at),
			MAX(cached_at)
		FROM search_cache
	`, now().Unix()).Scan(&stats.Entries, &expired, &hits, &oldest, &newest)
	if err != nil {
		return CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}

	stats.Expired = int(expired.Int64)
	stats.Hits = hits.Int64
	if oldest.Valid {
		t := time.Unix(oldest.Int64, 0).UTC()
		stats.Oldest = &t
	}
	if newest.Valid {
		t := time.Unix(newest.Int64, 0).UTC()
		stats.Newest = &t
	}
	return stats, nil
}
