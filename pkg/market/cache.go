package market

import (
	"context"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/collection"
	"github.com/zeromicro/go-zero/core/logx"
)

const (
	// DefaultFreshness is how long a cached snapshot may be reused.
	DefaultFreshness = 15 * time.Minute
	// DefaultSource identifies rows written by the Yahoo-backed fetcher.
	DefaultSource = "yahoo_finance"

	defaultCacheTimeout = 2 * time.Second
)

// CachedSnapshot is the persisted, lossy subset of a Snapshot.
type CachedSnapshot struct {
	Symbol    string            `json:"symbol" msgpack:"symbol"`
	Timestamp time.Time         `json:"timestamp" msgpack:"timestamp"`
	Source    string            `json:"source" msgpack:"source"`
	Data      map[string]any    `json:"data" msgpack:"data"`
	Processed ProcessedSnapshot `json:"processed" msgpack:"processed"`
	ExpiresAt time.Time         `json:"expires_at" msgpack:"expires_at"`
}

// ProcessedSnapshot is the derived part of a snapshot kept in the cache.
type ProcessedSnapshot struct {
	CurrentPrice  float64    `json:"current_price" msgpack:"current_price"`
	ChangePercent float64    `json:"change_percent" msgpack:"change_percent"`
	Volume        int64      `json:"volume" msgpack:"volume"`
	Indicators    Indicators `json:"indicators" msgpack:"indicators"`
}

// CacheStore is the storage contract behind the cache gateway. FindFresh
// returns the most recent row for symbol captured at or after since, or nil
// on a miss. Stores must tolerate concurrent inserts for the same symbol.
type CacheStore interface {
	FindFresh(ctx context.Context, symbol string, since time.Time) (*CachedSnapshot, error)
	Insert(ctx context.Context, snapshot *CachedSnapshot) error
}

// IsFresh reports whether ts falls inside the window ending at now. The
// boundary is inclusive.
func IsFresh(ts, now time.Time, window time.Duration) bool {
	return !ts.Before(now.Add(-window))
}

// CacheGateway applies the freshness policy on top of a CacheStore. Store
// failures never escape: reads degrade to a miss and writes to a no-op.
type CacheGateway struct {
	store   CacheStore
	window  time.Duration
	source  string
	timeout time.Duration
	now     func() time.Time
}

// GatewayOption customises a CacheGateway.
type GatewayOption func(*CacheGateway)

// WithFreshness overrides the freshness window.
func WithFreshness(window time.Duration) GatewayOption {
	return func(g *CacheGateway) {
		if window > 0 {
			g.window = window
		}
	}
}

// WithGatewayClock injects the clock used for freshness decisions.
func WithGatewayClock(now func() time.Time) GatewayOption {
	return func(g *CacheGateway) {
		if now != nil {
			g.now = now
		}
	}
}

// WithSource sets the source identifier stamped on cached rows.
func WithSource(source string) GatewayOption {
	return func(g *CacheGateway) {
		if s := strings.TrimSpace(source); s != "" {
			g.source = s
		}
	}
}

// WithStoreTimeout bounds each store call.
func WithStoreTimeout(timeout time.Duration) GatewayOption {
	return func(g *CacheGateway) {
		if timeout > 0 {
			g.timeout = timeout
		}
	}
}

// NewCacheGateway wires a gateway over store. A nil store yields a gateway
// that always misses.
func NewCacheGateway(store CacheStore, opts ...GatewayOption) *CacheGateway {
	g := &CacheGateway{
		store:   store,
		window:  DefaultFreshness,
		source:  DefaultSource,
		timeout: defaultCacheTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Window returns the configured freshness window.
func (g *CacheGateway) Window() time.Duration { return g.window }

// GetFresh returns the most recent fresh entry for symbol.
func (g *CacheGateway) GetFresh(ctx context.Context, symbol string) (*CachedSnapshot, bool) {
	if g == nil || g.store == nil {
		return nil, false
	}
	symbol = normaliseSymbol(symbol)
	now := g.now()

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	cached, err := guarded(func() (*CachedSnapshot, error) {
		return g.store.FindFresh(callCtx, symbol, now.Add(-g.window))
	})
	if err != nil {
		logx.WithContext(ctx).Errorf("market: cache read failed symbol=%s err=%v", symbol, err)
		return nil, false
	}
	if cached == nil || !IsFresh(cached.Timestamp, now, g.window) {
		return nil, false
	}
	return cached, true
}

// Put stores snap as a new cache row expiring one window from now.
func (g *CacheGateway) Put(ctx context.Context, snap *Snapshot) {
	if g == nil || g.store == nil || snap == nil {
		return
	}
	now := g.now()
	row := &CachedSnapshot{
		Symbol:    normaliseSymbol(snap.Symbol),
		Timestamp: now,
		Source:    g.source,
		Data:      snap.RawData,
		Processed: ProcessedSnapshot{
			CurrentPrice:  snap.CurrentPrice,
			ChangePercent: snap.ChangePercent,
			Volume:        snap.Volume,
			Indicators:    snap.Indicators,
		},
		ExpiresAt: now.Add(g.window),
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	_, err := guarded(func() (struct{}, error) {
		return struct{}{}, g.store.Insert(callCtx, row)
	})
	if err != nil {
		logx.WithContext(ctx).Errorf("market: cache write failed symbol=%s err=%v", row.Symbol, err)
	}
}

// MemoryStore keeps the latest snapshot per symbol in process memory.
type MemoryStore struct {
	cache *collection.Cache
}

// NewMemoryStore builds an in-memory store whose entries expire after ttl.
func NewMemoryStore(ttl time.Duration) (*MemoryStore, error) {
	if ttl <= 0 {
		ttl = DefaultFreshness
	}
	c, err := collection.NewCache(ttl, collection.WithName("market-snapshots"))
	if err != nil {
		return nil, err
	}
	return &MemoryStore{cache: c}, nil
}

// FindFresh implements CacheStore.
func (m *MemoryStore) FindFresh(_ context.Context, symbol string, since time.Time) (*CachedSnapshot, error) {
	v, ok := m.cache.Get(normaliseSymbol(symbol))
	if !ok {
		return nil, nil
	}
	snap, ok := v.(*CachedSnapshot)
	if !ok || snap.Timestamp.Before(since) {
		return nil, nil
	}
	return snap, nil
}

// Insert implements CacheStore. Newer rows replace older ones.
func (m *MemoryStore) Insert(_ context.Context, snapshot *CachedSnapshot) error {
	if snapshot == nil {
		return nil
	}
	key := normaliseSymbol(snapshot.Symbol)
	if v, ok := m.cache.Get(key); ok {
		if existing, ok := v.(*CachedSnapshot); ok && existing.Timestamp.After(snapshot.Timestamp) {
			return nil
		}
	}
	m.cache.Set(key, snapshot)
	return nil
}

func normaliseSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
