package market

import (
	"context"
	"time"

	"atlas-api/pkg/market/indicators"
)

// Provider exposes the external quote and daily history endpoints.
type Provider interface {
	// Quote returns the latest quote for symbol.
	Quote(ctx context.Context, symbol string) (*Quote, error)
	// History returns daily bars between start and end, oldest first.
	History(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error)
}

// Quote carries the provider fields the fetcher consumes. Zero means absent.
type Quote struct {
	Price            float64
	PreviousClose    float64
	Volume           int64
	MarketCap        int64
	DayHigh          float64
	DayLow           float64
	FiftyTwoWeekHigh float64
	FiftyTwoWeekLow  float64
	Raw              map[string]any
}

// Bar is a single daily close.
type Bar struct {
	Date  time.Time
	Close float64
}

// Provenance tags where a snapshot's numbers came from.
type Provenance string

const (
	ProvenanceFresh     Provenance = "fresh"
	ProvenanceCached    Provenance = "cached"
	ProvenanceSynthetic Provenance = "synthetic"
)

// Snapshot is the canonical market view for one symbol and fetch event.
type Snapshot struct {
	Symbol        string         `json:"symbol"`
	CurrentPrice  float64        `json:"current_price"`
	ChangePercent float64        `json:"change_percent"`
	Volume        int64          `json:"volume"`
	MarketCap     int64          `json:"market_cap,omitempty"`
	Indicators    Indicators     `json:"indicators"`
	PriceHistory  PriceHistory   `json:"price_history"`
	RawData       map[string]any `json:"raw_data"`
	RetrievedAt   time.Time      `json:"cached_at"`
	CacheHit      bool           `json:"cache_hit"`
	Provenance    Provenance     `json:"provenance"`
}

// Indicators aggregates the computed technical indicators.
type Indicators struct {
	RSI            float64               `json:"rsi" msgpack:"rsi"`
	MACD           indicators.MACDResult `json:"macd" msgpack:"macd"`
	MovingAverages MovingAverages        `json:"moving_averages" msgpack:"moving_averages"`
}

// MovingAverages holds the 50 and 200 day simple averages.
type MovingAverages struct {
	MA50  float64 `json:"ma_50" msgpack:"ma_50"`
	MA200 float64 `json:"ma_200" msgpack:"ma_200"`
}

// PriceHistory summarises the trading ranges around the current price.
type PriceHistory struct {
	DailyHigh  float64 `json:"daily_high"`
	DailyLow   float64 `json:"daily_low"`
	Week52High float64 `json:"week_52_high"`
	Week52Low  float64 `json:"week_52_low"`
}

// IsSynthetic reports whether the snapshot was generated locally.
func (s *Snapshot) IsSynthetic() bool {
	return s != nil && s.Provenance == ProvenanceSynthetic
}
