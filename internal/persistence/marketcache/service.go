// Package marketcache persists market snapshots behind the fetcher's cache
// gateway: Redis holds the newest snapshot per symbol and Postgres keeps the
// timestamped rows.
package marketcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"

	cachekeys "atlas-api/internal/cache"
	"atlas-api/internal/model"
	"atlas-api/pkg/market"
)

// Service implements market.CacheStore on Postgres and Redis. Either backend
// may be absent.
type Service struct {
	rows      model.MarketDataCacheModel
	redis     *redis.Redis
	ttl       cachekeys.TTLSet
	freshness time.Duration
}

// Config enumerates dependencies required to persist snapshots.
type Config struct {
	Rows      model.MarketDataCacheModel
	Redis     *redis.Redis
	TTL       cachekeys.TTLSet
	Freshness time.Duration
}

var _ market.CacheStore = (*Service)(nil)

// NewService wires a snapshot store. Returns nil when no backend is configured.
func NewService(cfg Config) *Service {
	if cfg.Rows == nil && cfg.Redis == nil {
		return nil
	}
	return &Service{
		rows:      cfg.Rows,
		redis:     cfg.Redis,
		ttl:       cfg.TTL,
		freshness: cfg.Freshness,
	}
}

// FindFresh returns the newest snapshot captured at or after since. Redis is
// consulted first; a Postgres hit is written back to Redis.
func (s *Service) FindFresh(ctx context.Context, symbol string, since time.Time) (*market.CachedSnapshot, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if snap := s.readRedis(ctx, symbol); snap != nil && !snap.Timestamp.Before(since) {
		return snap, nil
	}
	if s.rows == nil {
		return nil, nil
	}
	row, err := s.rows.FindLatestSince(ctx, symbol, since)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("marketcache: query %s: %w", symbol, err)
	}
	snap, err := fromRow(row)
	if err != nil {
		return nil, err
	}
	s.writeRedis(ctx, snap)
	return snap, nil
}

// Insert appends a row and refreshes the Redis copy.
func (s *Service) Insert(ctx context.Context, snapshot *market.CachedSnapshot) error {
	if snapshot == nil || strings.TrimSpace(snapshot.Symbol) == "" {
		return nil
	}
	if s.rows != nil {
		row, err := toRow(snapshot)
		if err != nil {
			return err
		}
		if _, err := s.rows.Insert(ctx, row); err != nil {
			return fmt.Errorf("marketcache: insert %s: %w", snapshot.Symbol, err)
		}
	}
	s.writeRedis(ctx, snapshot)
	return nil
}

// Purge drops Postgres rows that expired before the retention window.
func (s *Service) Purge(ctx context.Context, now time.Time) (int64, error) {
	if s.rows == nil {
		return 0, nil
	}
	cutoff := now.Add(-cachekeys.MarketRowRetention(s.ttl))
	n, err := s.rows.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("marketcache: purge before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return n, nil
}

func (s *Service) readRedis(ctx context.Context, symbol string) *market.CachedSnapshot {
	if s.redis == nil {
		return nil
	}
	key := cachekeys.MarketSnapshotKey(symbol)
	raw, err := s.redis.GetCtx(ctx, key)
	if err != nil {
		logx.WithContext(ctx).Errorf("marketcache: get key=%s err=%v", key, err)
		return nil
	}
	if raw == "" {
		return nil
	}
	var snap market.CachedSnapshot
	if err := msgpack.Unmarshal([]byte(raw), &snap); err != nil {
		logx.WithContext(ctx).Errorf("marketcache: decode key=%s err=%v", key, err)
		return nil
	}
	return &snap
}

func (s *Service) writeRedis(ctx context.Context, snap *market.CachedSnapshot) {
	if s.redis == nil {
		return
	}
	ttl := cachekeys.MarketSnapshotTTL(s.freshness, s.ttl)
	if !snap.ExpiresAt.IsZero() {
		if remaining := time.Until(snap.ExpiresAt); remaining < ttl {
			ttl = remaining
		}
	}
	seconds := int(ttl / time.Second)
	if seconds <= 0 {
		return
	}
	key := cachekeys.MarketSnapshotKey(snap.Symbol)
	payload, err := msgpack.Marshal(snap)
	if err != nil {
		logx.WithContext(ctx).Errorf("marketcache: encode key=%s err=%v", key, err)
		return
	}
	if err := s.redis.SetexCtx(ctx, key, string(payload), seconds); err != nil {
		logx.WithContext(ctx).Errorf("marketcache: set key=%s err=%v", key, err)
	}
}

func toRow(snap *market.CachedSnapshot) (*model.MarketDataCache, error) {
	data := snap.Data
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marketcache: encode raw data %s: %w", snap.Symbol, err)
	}
	processed, err := json.Marshal(snap.Processed)
	if err != nil {
		return nil, fmt.Errorf("marketcache: encode processed %s: %w", snap.Symbol, err)
	}
	return &model.MarketDataCache{
		Symbol:    strings.ToUpper(snap.Symbol),
		Ts:        snap.Timestamp.UTC(),
		Source:    snap.Source,
		RawData:   string(raw),
		Processed: string(processed),
		ExpiresAt: snap.ExpiresAt.UTC(),
	}, nil
}

func fromRow(row *model.MarketDataCache) (*market.CachedSnapshot, error) {
	snap := &market.CachedSnapshot{
		Symbol:    row.Symbol,
		Timestamp: row.Ts,
		Source:    row.Source,
		ExpiresAt: row.ExpiresAt,
	}
	if row.RawData != "" {
		if err := json.Unmarshal([]byte(row.RawData), &snap.Data); err != nil {
			return nil, fmt.Errorf("marketcache: decode raw data %s: %w", row.Symbol, err)
		}
	}
	if row.Processed != "" {
		if err := json.Unmarshal([]byte(row.Processed), &snap.Processed); err != nil {
			return nil, fmt.Errorf("marketcache: decode processed %s: %w", row.Symbol, err)
		}
	}
	return snap, nil
}
