// Package warmer refreshes the market snapshot cache for a watchlist on a
// cron schedule so interactive runs mostly hit the cache.
package warmer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zeromicro/go-zero/core/logx"

	"atlas-api/pkg/market"
)

const defaultCycleTimeout = 2 * time.Minute

// ErrNoSymbols is returned when the watchlist is empty.
var ErrNoSymbols = errors.New("warmer: watchlist is empty")

// BatchFetcher fetches many symbols at once.
type BatchFetcher interface {
	FetchBatch(ctx context.Context, symbols []string) map[string]*market.Snapshot
}

// Locker serialises cycles across instances. Acquire reports false when
// another holder owns the lock.
type Locker interface {
	AcquireCtx(ctx context.Context) (bool, error)
	ReleaseCtx(ctx context.Context) (bool, error)
}

// Purger drops expired cache rows.
type Purger interface {
	Purge(ctx context.Context, now time.Time) (int64, error)
}

// Report summarises one warm cycle.
type Report struct {
	Symbols   int
	Fresh     int
	Cached    int
	Synthetic int
	Missing   []string
	Purged    int64
	Skipped   bool
	Duration  time.Duration
}

// Warmer runs warm cycles.
type Warmer struct {
	fetcher BatchFetcher
	symbols []string
	locker  Locker
	purger  Purger
	timeout time.Duration
	now     func() time.Time
}

// Option customises a Warmer.
type Option func(*Warmer)

// WithLocker guards each cycle with a distributed lock.
func WithLocker(l Locker) Option {
	return func(w *Warmer) { w.locker = l }
}

// WithPurger purges expired rows after each cycle.
func WithPurger(p Purger) Option {
	return func(w *Warmer) { w.purger = p }
}

// WithCycleTimeout bounds one cycle.
func WithCycleTimeout(d time.Duration) Option {
	return func(w *Warmer) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithClock injects the clock used for purge cutoffs.
func WithClock(now func() time.Time) Option {
	return func(w *Warmer) {
		if now != nil {
			w.now = now
		}
	}
}

// New builds a warmer for symbols.
func New(fetcher BatchFetcher, symbols []string, opts ...Option) (*Warmer, error) {
	if fetcher == nil {
		return nil, errors.New("warmer: fetcher is required")
	}
	if len(symbols) == 0 {
		return nil, ErrNoSymbols
	}
	w := &Warmer{
		fetcher: fetcher,
		symbols: append([]string(nil), symbols...),
		timeout: defaultCycleTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// RunOnce performs one cycle. Failures are logged; a cycle never panics the
// scheduler.
func (w *Warmer) RunOnce(ctx context.Context) Report {
	start := w.now()
	report := Report{Symbols: len(w.symbols)}
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	logger := logx.WithContext(ctx)

	if w.locker != nil {
		ok, err := w.locker.AcquireCtx(ctx)
		if err != nil {
			logger.Errorf("warmer: acquire lock: %v", err)
			report.Skipped = true
			return report
		}
		if !ok {
			logger.Infow("warmer: another instance holds the lock, skipping cycle")
			report.Skipped = true
			return report
		}
		defer func() {
			if _, err := w.locker.ReleaseCtx(context.WithoutCancel(ctx)); err != nil {
				logger.Errorf("warmer: release lock: %v", err)
			}
		}()
	}

	results := w.fetcher.FetchBatch(ctx, w.symbols)
	for _, sym := range w.symbols {
		snap := results[normalise(sym)]
		switch {
		case snap == nil:
			report.Missing = append(report.Missing, sym)
		case snap.Provenance == market.ProvenanceCached:
			report.Cached++
		case snap.IsSynthetic():
			report.Synthetic++
		default:
			report.Fresh++
		}
	}

	if w.purger != nil {
		n, err := w.purger.Purge(ctx, w.now())
		if err != nil {
			logger.Errorf("warmer: purge: %v", err)
		}
		report.Purged = n
	}

	report.Duration = w.now().Sub(start)
	logger.Infow("warmer: cycle complete",
		logx.Field("symbols", report.Symbols),
		logx.Field("fresh", report.Fresh),
		logx.Field("cached", report.Cached),
		logx.Field("synthetic", report.Synthetic),
		logx.Field("missing", len(report.Missing)),
		logx.Field("purged", report.Purged),
		logx.Field("duration", report.Duration.String()),
	)
	return report
}

// Schedule registers the warmer on c under spec.
func (w *Warmer) Schedule(ctx context.Context, c *cron.Cron, spec string) (cron.EntryID, error) {
	id, err := c.AddFunc(spec, func() {
		defer func() {
			if r := recover(); r != nil {
				logx.WithContext(ctx).Errorf("warmer: cycle panicked: %v", r)
			}
		}()
		w.RunOnce(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("warmer: schedule %q: %w", spec, err)
	}
	return id, nil
}

func normalise(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
