package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/sync/errgroup"

	"atlas-api/pkg/market/indicators"
)

// ErrDataUnavailable reports that the provider returned no quote.
var ErrDataUnavailable = errors.New("market: data unavailable")

const (
	defaultHistoryDays      = 90
	defaultProviderTimeout  = 8 * time.Second
	defaultBatchConcurrency = 4
	ma50Period              = 50
	ma200Period             = 200
)

// Fetcher resolves snapshots through the cache, the provider and finally the
// synthetic fallback. Fetch never fails.
type Fetcher struct {
	provider    Provider
	cache       *CacheGateway
	synth       *Synthesizer
	historyDays int
	timeout     time.Duration
	concurrency int
	now         func() time.Time
}

// FetcherOption customises a Fetcher.
type FetcherOption func(*Fetcher)

// WithCache attaches the cache gateway consulted before the provider.
func WithCache(gateway *CacheGateway) FetcherOption {
	return func(f *Fetcher) { f.cache = gateway }
}

// WithSynthesizer replaces the fallback generator.
func WithSynthesizer(s *Synthesizer) FetcherOption {
	return func(f *Fetcher) {
		if s != nil {
			f.synth = s
		}
	}
}

// WithHistoryDays sets the daily history window fed to the indicators.
func WithHistoryDays(days int) FetcherOption {
	return func(f *Fetcher) {
		if days > 0 {
			f.historyDays = days
		}
	}
}

// WithProviderTimeout bounds each provider call.
func WithProviderTimeout(timeout time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

// WithBatchConcurrency limits parallel fetches in FetchBatch.
func WithBatchConcurrency(n int) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// WithClock injects the fetcher clock.
func WithClock(now func() time.Time) FetcherOption {
	return func(f *Fetcher) {
		if now != nil {
			f.now = now
		}
	}
}

// NewFetcher builds a fetcher around provider.
func NewFetcher(provider Provider, opts ...FetcherOption) (*Fetcher, error) {
	if provider == nil {
		return nil, errors.New("market: provider is required")
	}
	f := &Fetcher{
		provider:    provider,
		synth:       NewSynthesizer(time.Now().UnixNano()),
		historyDays: defaultHistoryDays,
		timeout:     defaultProviderTimeout,
		concurrency: defaultBatchConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Fetch returns a snapshot for symbol. Provider failures degrade to a
// synthetic snapshot rather than an error.
func (f *Fetcher) Fetch(ctx context.Context, symbol string) *Snapshot {
	symbol = normaliseSymbol(symbol)

	if cached, ok := f.cache.GetFresh(ctx, symbol); ok {
		logx.WithContext(ctx).Infof("market: cache hit symbol=%s", symbol)
		return snapshotFromCache(cached)
	}

	snap, err := f.fetchLive(ctx, symbol)
	if err != nil {
		logx.WithContext(ctx).Errorf("market: falling back to synthetic data symbol=%s err=%v", symbol, err)
		return f.synth.Snapshot(symbol, f.now())
	}
	return snap
}

// FetchBatch fetches every distinct symbol concurrently. Results are keyed by
// upper-cased symbol; one symbol's trouble never affects another.
func (f *Fetcher) FetchBatch(ctx context.Context, symbols []string) map[string]*Snapshot {
	seen := make(map[string]struct{}, len(symbols))
	unique := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = normaliseSymbol(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		unique = append(unique, s)
	}

	var (
		mu      sync.Mutex
		results = make(map[string]*Snapshot, len(unique))
		g       errgroup.Group
	)
	g.SetLimit(f.concurrency)
	for _, symbol := range unique {
		g.Go(func() error {
			snap := f.Fetch(ctx, symbol)
			mu.Lock()
			results[symbol] = snap
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (f *Fetcher) fetchLive(ctx context.Context, symbol string) (snap *Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			snap, err = nil, fmt.Errorf("market: fetch %s panicked: %v", symbol, r)
		}
	}()

	var (
		quote *Quote
		bars  []Bar
		g     errgroup.Group
	)
	end := f.now()
	start := end.AddDate(0, 0, -f.historyDays)

	g.Go(func() error {
		q, qErr := guarded(func() (*Quote, error) {
			callCtx, cancel := context.WithTimeout(ctx, f.timeout)
			defer cancel()
			return f.provider.Quote(callCtx, symbol)
		})
		if qErr != nil {
			logx.WithContext(ctx).Errorf("market: quote failed symbol=%s err=%v", symbol, qErr)
			return nil
		}
		quote = q
		return nil
	})
	g.Go(func() error {
		b, hErr := guarded(func() ([]Bar, error) {
			callCtx, cancel := context.WithTimeout(ctx, f.timeout)
			defer cancel()
			return f.provider.History(callCtx, symbol, start, end)
		})
		if hErr != nil {
			logx.WithContext(ctx).Errorf("market: history failed symbol=%s err=%v", symbol, hErr)
			return nil
		}
		bars = b
		return nil
	})
	_ = g.Wait()

	if quote == nil {
		return nil, fmt.Errorf("%w: %s", ErrDataUnavailable, symbol)
	}

	snap = buildSnapshot(symbol, quote, bars, f.now())
	f.cache.Put(ctx, snap)
	return snap, nil
}

func buildSnapshot(symbol string, quote *Quote, bars []Bar, now time.Time) *Snapshot {
	price := quote.Price
	prevClose := orDefault(quote.PreviousClose, price)
	change := 0.0
	if prevClose != 0 {
		change = (price - prevClose) / prevClose * 100
	}

	closes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
	}

	raw := quote.Raw
	if raw == nil {
		raw = map[string]any{}
	}

	return &Snapshot{
		Symbol:        symbol,
		CurrentPrice:  price,
		ChangePercent: indicators.Round2(change),
		Volume:        quote.Volume,
		MarketCap:     quote.MarketCap,
		Indicators: Indicators{
			RSI:  indicators.RSI(closes, indicators.DefaultRSIPeriod),
			MACD: indicators.MACD(closes),
			MovingAverages: MovingAverages{
				MA50:  indicators.MovingAverage(closes, ma50Period),
				MA200: indicators.MovingAverage(closes, ma200Period),
			},
		},
		PriceHistory: PriceHistory{
			DailyHigh:  orDefault(quote.DayHigh, price),
			DailyLow:   orDefault(quote.DayLow, price),
			Week52High: orDefault(quote.FiftyTwoWeekHigh, price),
			Week52Low:  orDefault(quote.FiftyTwoWeekLow, price),
		},
		RawData:     raw,
		RetrievedAt: now,
		CacheHit:    false,
		Provenance:  ProvenanceFresh,
	}
}

// snapshotFromCache rebuilds a snapshot from a cache row. The cache does not
// keep trading ranges, so they are approximated from the current price.
func snapshotFromCache(c *CachedSnapshot) *Snapshot {
	price := c.Processed.CurrentPrice
	return &Snapshot{
		Symbol:        c.Symbol,
		CurrentPrice:  price,
		ChangePercent: c.Processed.ChangePercent,
		Volume:        c.Processed.Volume,
		Indicators:    c.Processed.Indicators,
		PriceHistory: PriceHistory{
			DailyHigh:  price * 1.02,
			DailyLow:   price * 0.98,
			Week52High: price * 1.2,
			Week52Low:  price * 0.8,
		},
		RawData:     c.Data,
		RetrievedAt: c.Timestamp,
		CacheHit:    true,
		Provenance:  ProvenanceCached,
	}
}

// guarded turns a panic in fn into an error.
func guarded[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func orDefault(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}

