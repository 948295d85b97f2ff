package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
)

// DefaultCacheTTL applies when CachedFetcher.TTL is zero.
const DefaultCacheTTL = 10 * time.Minute

// PayloadStore persists raw JSON payloads keyed by request URL.
type PayloadStore interface {
	GetCachedPayload(ctx context.Context, key string) ([]byte, error)
	SetCachedPayload(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}

// CachedFetcher serves successful payloads from a store before delegating.
// Failures are never cached.
type CachedFetcher struct {
	Next   Fetcher
	Store  PayloadStore
	TTL    time.Duration
	Logger *logging.Logger
}

var _ Fetcher = (*CachedFetcher)(nil)

func (f *CachedFetcher) FetchJSON(ctx context.Context, url string, opts Options) (any, error) {
	if f == nil || f.Next == nil {
		return nil, errors.New("cached fetcher is not configured")
	}
	if f.Store == nil {
		return f.Next.FetchJSON(ctx, url, opts)
	}

	if raw, err := f.Store.GetCachedPayload(ctx, url); err == nil && raw != nil {
		var payload any
		if err := json.Unmarshal(raw, &payload); err == nil {
			f.debug("Catalog cache hit", zap.String("url", url))
			return payload, nil
		}
	} else if err != nil {
		f.debug("Catalog cache read failed", zap.String("url", url), zap.Error(err))
	}

	payload, err := f.Next.FetchJSON(ctx, url, opts)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(payload); err == nil {
		if err := f.Store.SetCachedPayload(ctx, url, raw, f.ttl()); err != nil {
			f.debug("Catalog cache write failed", zap.String("url", url), zap.Error(err))
		}
	}
	return payload, nil
}

func (f *CachedFetcher) ttl() time.Duration {
	if f.TTL > 0 {
		return f.TTL
	}
	return DefaultCacheTTL
}

func (f *CachedFetcher) debug(msg string, fields ...zap.Field) {
	if f.Logger != nil {
		f.Logger.Debug(msg, fields...)
	}
}
