package market_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	market "atlas-api/pkg/market"
)

func TestIsFreshBoundaryIsInclusive(t *testing.T) {
	now := time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC)
	window := 15 * time.Minute

	require.True(t, market.IsFresh(now, now, window))
	require.True(t, market.IsFresh(now.Add(-window), now, window))
	require.False(t, market.IsFresh(now.Add(-window-time.Millisecond), now, window))
}

func TestCacheGatewayFreshnessWindow(t *testing.T) {
	now := time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC)
	store, err := market.NewMemoryStore(time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, &market.CachedSnapshot{
		Symbol:    "EDGE",
		Timestamp: now.Add(-15 * time.Minute),
	}))
	require.NoError(t, store.Insert(ctx, &market.CachedSnapshot{
		Symbol:    "STALE",
		Timestamp: now.Add(-15*time.Minute - time.Millisecond),
	}))

	gw := market.NewCacheGateway(store, market.WithGatewayClock(func() time.Time { return now }))
	require.Equal(t, market.DefaultFreshness, gw.Window())

	got, ok := gw.GetFresh(ctx, "edge")
	require.True(t, ok)
	require.Equal(t, "EDGE", got.Symbol)

	_, ok = gw.GetFresh(ctx, "STALE")
	require.False(t, ok)

	_, ok = gw.GetFresh(ctx, "NONE")
	require.False(t, ok)
}

func TestCacheGatewayPutStampsRow(t *testing.T) {
	now := time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC)
	store, err := market.NewMemoryStore(time.Hour)
	require.NoError(t, err)
	gw := market.NewCacheGateway(store,
		market.WithGatewayClock(func() time.Time { return now }),
		market.WithFreshness(10*time.Minute),
		market.WithSource("unit"),
	)

	gw.Put(context.Background(), &market.Snapshot{
		Symbol:        "nvda",
		CurrentPrice:  500,
		ChangePercent: 2.04,
		Volume:        1_000,
		RawData:       map[string]any{"k": "v"},
	})

	got, ok := gw.GetFresh(context.Background(), "NVDA")
	require.True(t, ok)
	require.Equal(t, "NVDA", got.Symbol)
	require.Equal(t, "unit", got.Source)
	require.Equal(t, now, got.Timestamp)
	require.Equal(t, now.Add(10*time.Minute), got.ExpiresAt)
	require.Equal(t, 500.0, got.Processed.CurrentPrice)
	require.Equal(t, "v", got.Data["k"])
}

func TestMemoryStoreKeepsNewestRow(t *testing.T) {
	now := time.Now()
	store, err := market.NewMemoryStore(time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, &market.CachedSnapshot{Symbol: "AAPL", Timestamp: now, Source: "new"}))
	require.NoError(t, store.Insert(ctx, &market.CachedSnapshot{Symbol: "AAPL", Timestamp: now.Add(-time.Minute), Source: "old"}))

	got, err := store.FindFresh(ctx, "AAPL", now.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, "new", got.Source)
}

func TestCacheGatewaySwallowsStoreErrors(t *testing.T) {
	gw := market.NewCacheGateway(failingStore{})

	_, ok := gw.GetFresh(context.Background(), "AAPL")
	require.False(t, ok)

	require.NotPanics(t, func() {
		gw.Put(context.Background(), &market.Snapshot{Symbol: "AAPL"})
	})
}

func TestNilCacheGatewayAlwaysMisses(t *testing.T) {
	var gw *market.CacheGateway
	_, ok := gw.GetFresh(context.Background(), "AAPL")
	require.False(t, ok)
	gw.Put(context.Background(), &market.Snapshot{Symbol: "AAPL"})

	_, ok = market.NewCacheGateway(nil).GetFresh(context.Background(), "AAPL")
	require.False(t, ok)
}

type failingStore struct{}

func (failingStore) FindFresh(context.Context, string, time.Time) (*market.CachedSnapshot, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Insert(context.Context, *market.CachedSnapshot) error {
	return errors.New("connection refused")
}

type panickingStore struct{}

func (panickingStore) FindFresh(context.Context, string, time.Time) (*market.CachedSnapshot, error) {
	panic("nil map")
}

func (panickingStore) Insert(context.Context, *market.CachedSnapshot) error {
	panic("nil map")
}

func TestCacheGatewayRecoversStorePanics(t *testing.T) {
	gw := market.NewCacheGateway(panickingStore{})

	require.NotPanics(t, func() {
		_, ok := gw.GetFresh(context.Background(), "AAPL")
		require.False(t, ok)
		gw.Put(context.Background(), &market.Snapshot{Symbol: "AAPL"})
	})
}
