package yahoo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/equity"
	"github.com/zeromicro/go-zero/core/logx"

	"atlas-api/pkg/market"
)

const (
	defaultProviderTimeout = 8 * time.Second
	defaultHTTPTimeout     = 30 * time.Second
	defaultRetryBackoff    = 300 * time.Millisecond
)

// ErrSymbolNotFound is returned when Yahoo has no quote for a symbol.
var ErrSymbolNotFound = errors.New("yahoo: symbol not found")

// backend isolates the finance-go calls.
type backend interface {
	Equity(ctx context.Context, symbol string) (*finance.Equity, error)
	Chart(ctx context.Context, params *chart.Params) ([]finance.ChartBar, error)
}

// financeBackend calls Yahoo through its own finance-go backend, so the
// package level HTTP client is never touched.
type financeBackend struct {
	yfin finance.Backend
}

func newFinanceBackend(client *http.Client) financeBackend {
	return financeBackend{yfin: finance.NewBackends(client).YFin}
}

// Equity reads the quote endpoint as an equity, which adds market cap to the
// regular quote fields.
func (b financeBackend) Equity(ctx context.Context, symbol string) (*finance.Equity, error) {
	params := &equity.Params{Symbols: []string{symbol}}
	params.Context = &ctx
	iter := equity.Client{B: b.yfin}.ListP(params)
	if !iter.Next() {
		return nil, iter.Err()
	}
	return iter.Equity(), nil
}

func (b financeBackend) Chart(ctx context.Context, params *chart.Params) ([]finance.ChartBar, error) {
	params.Context = &ctx
	iter := chart.Client{B: b.yfin}.Get(params)
	var bars []finance.ChartBar
	for iter.Next() {
		bars = append(bars, *iter.Bar())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return bars, nil
}

// Provider serves quotes and daily history from Yahoo Finance.
type Provider struct {
	backend    backend
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
}

type providerConfig struct {
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	httpClient *http.Client
	backend    backend
}

// ProviderOption customises the Yahoo provider.
type ProviderOption func(*providerConfig)

// WithTimeout overrides the default per-call timeout.
func WithTimeout(timeout time.Duration) ProviderOption {
	return func(cfg *providerConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// WithMaxRetries sets how many times a failed call is retried.
func WithMaxRetries(n int) ProviderOption {
	return func(cfg *providerConfig) {
		if n >= 0 {
			cfg.maxRetries = n
		}
	}
}

// WithRetryBackoff sets the base delay between retries.
func WithRetryBackoff(d time.Duration) ProviderOption {
	return func(cfg *providerConfig) {
		if d >= 0 {
			cfg.backoff = d
		}
	}
}

// WithHTTPClient sets the HTTP client used for Yahoo requests.
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(cfg *providerConfig) {
		if client != nil {
			cfg.httpClient = client
		}
	}
}

func withBackend(b backend) ProviderOption {
	return func(cfg *providerConfig) { cfg.backend = b }
}

// NewProvider constructs a Yahoo Finance market provider.
func NewProvider(opts ...ProviderOption) *Provider {
	cfg := &providerConfig{
		timeout:    defaultProviderTimeout,
		backoff:    defaultRetryBackoff,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.backend == nil {
		cfg.backend = newFinanceBackend(cfg.httpClient)
	}
	return &Provider{
		backend:    cfg.backend,
		timeout:    cfg.timeout,
		maxRetries: cfg.maxRetries,
		backoff:    cfg.backoff,
	}
}

func init() {
	market.RegisterProvider("yahoo", func(name string, cfg *market.ProviderConfig) (market.Provider, error) {
		opts := []ProviderOption{}
		if cfg.Timeout > 0 {
			opts = append(opts, WithTimeout(cfg.Timeout))
		}
		if cfg.MaxRetries > 0 {
			opts = append(opts, WithMaxRetries(cfg.MaxRetries))
		}
		if cfg.HTTPTimeout > 0 {
			opts = append(opts, WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))
		}
		return NewProvider(opts...), nil
	})
}

// Quote implements market.Provider.
func (p *Provider) Quote(ctx context.Context, symbol string) (*market.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	q, err := withRetry(ctx, p, "quote "+symbol, func(ctx context.Context) (*finance.Equity, error) {
		return p.backend.Equity(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}
	if q == nil || q.RegularMarketPrice <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}

	return &market.Quote{
		Price:            q.RegularMarketPrice,
		PreviousClose:    q.RegularMarketPreviousClose,
		Volume:           int64(q.RegularMarketVolume),
		MarketCap:        q.MarketCap,
		DayHigh:          q.RegularMarketDayHigh,
		DayLow:           q.RegularMarketDayLow,
		FiftyTwoWeekHigh: q.FiftyTwoWeekHigh,
		FiftyTwoWeekLow:  q.FiftyTwoWeekLow,
		Raw: map[string]any{
			"symbol":                     q.Symbol,
			"shortName":                  q.ShortName,
			"exchange":                   q.FullExchangeName,
			"currency":                   q.CurrencyID,
			"marketState":                q.MarketState,
			"regularMarketPrice":         q.RegularMarketPrice,
			"regularMarketPreviousClose": q.RegularMarketPreviousClose,
			"regularMarketVolume":        q.RegularMarketVolume,
			"marketCap":                  q.MarketCap,
		},
	}, nil
}

// History implements market.Provider with daily bars in ascending date order.
func (p *Provider) History(ctx context.Context, symbol string, start, end time.Time) ([]market.Bar, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	params := &chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	}
	raw, err := withRetry(ctx, p, "history "+symbol, func(ctx context.Context) ([]finance.ChartBar, error) {
		return p.backend.Chart(ctx, params)
	})
	if err != nil {
		return nil, err
	}

	bars := make([]market.Bar, 0, len(raw))
	for _, b := range raw {
		closePx := b.Close.InexactFloat64()
		if closePx <= 0 {
			continue
		}
		bars = append(bars, market.Bar{
			Date:  time.Unix(int64(b.Timestamp), 0).UTC(),
			Close: closePx,
		})
	}
	return bars, nil
}

// withRetry runs fn under the provider deadline, retrying with exponential
// backoff.
func withRetry[T any](ctx context.Context, p *Provider, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			delay := p.backoff * time.Duration(1<<(attempt-1))
			logx.WithContext(ctx).Infof("yahoo: retrying %s attempt=%d delay=%s err=%v", op, attempt, delay, lastErr)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}
		out, err := callWithDeadline(ctx, p.timeout, fn)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return zero, fmt.Errorf("yahoo: %s: %w", op, lastErr)
}

type result[T any] struct {
	val T
	err error
}

// callWithDeadline hands fn a context bounded by timeout. The request is
// cancelled through that context; fn is also abandoned if it ignores it.
func callWithDeadline[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				done <- result[T]{val: zero, err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn(callCtx)
		done <- result[T]{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-callCtx.Done():
		var zero T
		return zero, callCtx.Err()
	}
}
