package market

import (
	"math/rand"
	"sync"
	"time"

	"atlas-api/pkg/market/indicators"
)

// Synthesizer produces plausible random snapshots when the provider is down.
type Synthesizer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSynthesizer seeds a synthesizer. Equal seeds give equal sequences.
func NewSynthesizer(seed int64) *Synthesizer {
	return &Synthesizer{rng: rand.New(rand.NewSource(seed))}
}

// Snapshot builds a synthetic snapshot for symbol. The raw payload carries
// {"mock": true} and the provenance is ProvenanceSynthetic.
func (s *Synthesizer) Snapshot(symbol string, now time.Time) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := indicators.Round2
	base := 100 + s.rng.Float64()*500
	change := (s.rng.Float64() - 0.5) * 10
	volume := s.rng.Int63n(10_000_000)
	rsi := s.rng.Float64()*60 + 20
	macdValue := (s.rng.Float64() - 0.5) * 10
	macdSignal := (s.rng.Float64() - 0.5) * 8
	macdHist := (s.rng.Float64() - 0.5) * 5

	return &Snapshot{
		Symbol:        normaliseSymbol(symbol),
		CurrentPrice:  r(base),
		ChangePercent: r(change),
		Volume:        volume,
		Indicators: Indicators{
			RSI: r(rsi),
			MACD: indicators.MACDResult{
				Value:     r(macdValue),
				Signal:    r(macdSignal),
				Histogram: r(macdHist),
			},
			MovingAverages: MovingAverages{
				MA50:  r(base * 0.95),
				MA200: r(base * 0.90),
			},
		},
		PriceHistory: PriceHistory{
			DailyHigh:  r(base * 1.02),
			DailyLow:   r(base * 0.98),
			Week52High: r(base * 1.3),
			Week52Low:  r(base * 0.7),
		},
		RawData:     map[string]any{"mock": true},
		RetrievedAt: now,
		CacheHit:    false,
		Provenance:  ProvenanceSynthetic,
	}
}
