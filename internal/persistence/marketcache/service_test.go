package marketcache

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/stores/redis"

	cachekeys "atlas-api/internal/cache"
	"atlas-api/internal/config"
	"atlas-api/internal/model"
	"atlas-api/pkg/market"
)

type fakeRows struct {
	rows    []*model.MarketDataCache
	purged  time.Time
	findErr error
}

func (f *fakeRows) Insert(_ context.Context, data *model.MarketDataCache) (sql.Result, error) {
	cp := *data
	cp.Id = int64(len(f.rows) + 1)
	f.rows = append(f.rows, &cp)
	return nil, nil
}

func (f *fakeRows) FindOne(_ context.Context, id int64) (*model.MarketDataCache, error) {
	for _, r := range f.rows {
		if r.Id == id {
			return r, nil
		}
	}
	return nil, model.ErrNotFound
}

func (f *fakeRows) FindLatestSince(_ context.Context, symbol string, since time.Time) (*model.MarketDataCache, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	var best *model.MarketDataCache
	for _, r := range f.rows {
		if r.Symbol != symbol || r.Ts.Before(since) {
			continue
		}
		if best == nil || r.Ts.After(best.Ts) {
			best = r
		}
	}
	if best == nil {
		return nil, model.ErrNotFound
	}
	return best, nil
}

func (f *fakeRows) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	f.purged = before
	var kept []*model.MarketDataCache
	var n int64
	for _, r := range f.rows {
		if r.ExpiresAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	f.rows = kept
	return n, nil
}

func newRedis(t *testing.T) (*redis.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.MustNewRedis(redis.RedisConf{Host: mr.Addr(), Type: redis.NodeType}), mr
}

func sampleSnapshot(symbol string, at time.Time) *market.CachedSnapshot {
	return &market.CachedSnapshot{
		Symbol:    symbol,
		Timestamp: at,
		Source:    market.DefaultSource,
		Data:      map[string]any{"regularMarketPrice": 500.0},
		Processed: market.ProcessedSnapshot{
			CurrentPrice:  500,
			ChangePercent: 2.04,
			Volume:        45_000_000,
			Indicators:    market.Indicators{RSI: 61.5},
		},
		ExpiresAt: at.Add(15 * time.Minute),
	}
}

func defaultTTL() cachekeys.TTLSet {
	return cachekeys.NewTTLSet(config.CacheTTL{})
}

func TestNewServiceRequiresBackend(t *testing.T) {
	require.Nil(t, NewService(Config{}))
}

func TestRedisRoundTrip(t *testing.T) {
	rds, mr := newRedis(t)
	svc := NewService(Config{Redis: rds, TTL: defaultTTL(), Freshness: 15 * time.Minute})
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, svc.Insert(context.Background(), sampleSnapshot("NVDA", now)))
	require.True(t, mr.Exists(cachekeys.MarketSnapshotKey("NVDA")))
	ttl := mr.TTL(cachekeys.MarketSnapshotKey("NVDA"))
	require.True(t, ttl > 0 && ttl <= 15*time.Minute, ttl)

	got, err := svc.FindFresh(context.Background(), "nvda", now.Add(-time.Minute))
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, 500.0, got.Processed.CurrentPrice)
	require.Equal(t, int64(45_000_000), got.Processed.Volume)
	require.Equal(t, 61.5, got.Processed.Indicators.RSI)
	require.True(t, now.Equal(got.Timestamp))

	got, err = svc.FindFresh(context.Background(), "NVDA", now.Add(time.Minute))
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestPostgresHitBackfillsRedis(t *testing.T) {
	rds, mr := newRedis(t)
	rows := &fakeRows{}
	svc := NewService(Config{Rows: rows, Redis: rds, TTL: defaultTTL(), Freshness: 15 * time.Minute})
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, svc.Insert(context.Background(), sampleSnapshot("AAPL", now.Add(-5*time.Minute))))
	require.NoError(t, svc.Insert(context.Background(), sampleSnapshot("AAPL", now.Add(-time.Minute))))
	require.Len(t, rows.rows, 2)
	require.Equal(t, "AAPL", rows.rows[0].Symbol)
	require.JSONEq(t, `{"regularMarketPrice":500}`, rows.rows[0].RawData)

	mr.FlushAll()
	got, err := svc.FindFresh(context.Background(), "AAPL", now.Add(-10*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, got)
	require.True(t, now.Add(-time.Minute).Equal(got.Timestamp))
	require.Equal(t, 500.0, got.Data["regularMarketPrice"])
	require.True(t, mr.Exists(cachekeys.MarketSnapshotKey("AAPL")))
}

func TestPostgresOnlyMissAndError(t *testing.T) {
	rows := &fakeRows{}
	svc := NewService(Config{Rows: rows, TTL: defaultTTL()})

	got, err := svc.FindFresh(context.Background(), "MSFT", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Nil(t, got)

	rows.findErr = errors.New("connection refused")
	_, err = svc.FindFresh(context.Background(), "MSFT", time.Now().Add(-time.Minute))
	require.Error(t, err)
}

func TestPurgeKeepsRetentionWindow(t *testing.T) {
	rows := &fakeRows{}
	svc := NewService(Config{Rows: rows, TTL: defaultTTL()})
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	require.NoError(t, svc.Insert(context.Background(), sampleSnapshot("NVDA", now.Add(-48*time.Hour))))
	require.NoError(t, svc.Insert(context.Background(), sampleSnapshot("NVDA", now.Add(-time.Hour))))

	n, err := svc.Purge(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.Equal(t, now.Add(-24*time.Hour), rows.purged)
	require.Len(t, rows.rows, 1)
}

func TestGatewayOverService(t *testing.T) {
	rds, _ := newRedis(t)
	svc := NewService(Config{Redis: rds, TTL: defaultTTL(), Freshness: 15 * time.Minute})
	gw := market.NewCacheGateway(svc)

	gw.Put(context.Background(), &market.Snapshot{Symbol: "TSLA", CurrentPrice: 250, RawData: map[string]any{"a": 1.0}})
	cached, ok := gw.GetFresh(context.Background(), "TSLA")
	require.True(t, ok)
	require.Equal(t, 250.0, cached.Processed.CurrentPrice)
}
