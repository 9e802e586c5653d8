// Package signals turns a market snapshot into readable technical signals,
// a trend call, a sentiment bucket and risk factors.
package signals

import (
	"fmt"
	"strings"

	"atlas-api/pkg/market"
)

const (
	rsiOversold        = 30
	rsiOverbought      = 70
	rsiExtremeLow      = 25
	rsiExtremeHigh     = 75
	highVolume         = 1_000_000
	sentimentThreshold = 2.0
	intradayRangePct   = 5.0
)

// Trend and sentiment labels.
const (
	TrendUp       = "Strong uptrend - multiple bullish indicators"
	TrendDown     = "Downtrend - caution advised"
	TrendSideways = "Sideways/neutral trend - mixed signals"

	SentimentPositive = "Positive - strong upward momentum today"
	SentimentNegative = "Negative - significant decline today"
	SentimentNeutral  = "Neutral - stable price action"

	RiskStandard = "Standard market risk - normal volatility"
)

// Reasoning is the structured analysis attached to every run.
type Reasoning struct {
	TechnicalSignals []string `json:"technical_signals"`
	TrendAnalysis    string   `json:"trend_analysis"`
	Sentiment        string   `json:"sentiment"`
	RiskFactors      []string `json:"risk_factors"`
}

// Empty returns a reasoning block with empty, non-nil lists.
func Empty() Reasoning {
	return Reasoning{TechnicalSignals: []string{}, RiskFactors: []string{}}
}

// Interpret derives the full reasoning block from snap.
func Interpret(snap *market.Snapshot) Reasoning {
	if snap == nil {
		return Empty()
	}
	sigs := Signals(snap)
	return Reasoning{
		TechnicalSignals: sigs,
		TrendAnalysis:    trendFrom(sigs),
		Sentiment:        Sentiment(snap),
		RiskFactors:      RiskFactors(snap),
	}
}

// Signals lists technical signals in a fixed order: RSI, MACD, price against
// the 50-day average, the 50/200 cross, then volume.
func Signals(snap *market.Snapshot) []string {
	out := make([]string, 0, 5)
	ind := snap.Indicators

	if rsi := ind.RSI; rsi != 0 {
		switch {
		case rsi < rsiOversold:
			out = append(out, fmt.Sprintf("RSI oversold at %.1f (strong buy signal)", rsi))
		case rsi > rsiOverbought:
			out = append(out, fmt.Sprintf("RSI overbought at %.1f (potential sell signal)", rsi))
		default:
			out = append(out, fmt.Sprintf("RSI neutral at %.1f", rsi))
		}
	}

	if ind.MACD.Histogram > 0 {
		out = append(out, "MACD bullish crossover (positive momentum)")
	} else {
		out = append(out, "MACD bearish crossover (negative momentum)")
	}

	ma50, ma200 := ind.MovingAverages.MA50, ind.MovingAverages.MA200
	if snap.CurrentPrice > ma50 {
		out = append(out, fmt.Sprintf("Price above 50-day MA at $%.2f (bullish)", ma50))
	} else {
		out = append(out, fmt.Sprintf("Price below 50-day MA at $%.2f (bearish)", ma50))
	}
	switch {
	case ma50 > ma200:
		out = append(out, "Golden cross (50-day > 200-day MA)")
	case ma50 < ma200:
		out = append(out, "Death cross (50-day < 200-day MA)")
	}

	if snap.Volume > highVolume {
		out = append(out, fmt.Sprintf("High volume (%.1fM shares)", float64(snap.Volume)/1_000_000))
	}
	return out
}

// Trend classifies the snapshot by counting bullish and bearish signals.
// Ties are reported as sideways.
func Trend(snap *market.Snapshot) string {
	return trendFrom(Signals(snap))
}

func trendFrom(sigs []string) string {
	var bullish, bearish int
	for _, s := range sigs {
		if strings.Contains(s, "bullish") || strings.Contains(s, "Golden") || strings.Contains(s, "above") {
			bullish++
		}
		if strings.Contains(s, "bearish") || strings.Contains(s, "Death") || strings.Contains(s, "below") {
			bearish++
		}
	}
	switch {
	case bullish > bearish:
		return TrendUp
	case bearish > bullish:
		return TrendDown
	default:
		return TrendSideways
	}
}

// Sentiment buckets the daily change.
func Sentiment(snap *market.Snapshot) string {
	switch {
	case snap.ChangePercent > sentimentThreshold:
		return SentimentPositive
	case snap.ChangePercent < -sentimentThreshold:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// RiskFactors lists risk warnings. The result always has at least one entry.
func RiskFactors(snap *market.Snapshot) []string {
	var risks []string
	ph := snap.PriceHistory
	price := snap.CurrentPrice

	if price > 0 && (ph.DailyHigh-ph.DailyLow)/price*100 > intradayRangePct {
		risks = append(risks, "High intraday volatility (>5% range)")
	}

	if rsi := snap.Indicators.RSI; rsi != 0 {
		if rsi > rsiExtremeHigh {
			risks = append(risks, "Extreme overbought conditions - potential reversal")
		}
		if rsi < rsiExtremeLow {
			risks = append(risks, "Extreme oversold conditions - high risk")
		}
	}

	if price >= ph.Week52High*0.95 {
		risks = append(risks, "Trading near 52-week high - limited upside")
	}
	if price <= ph.Week52Low*1.05 {
		risks = append(risks, "Trading near 52-week low - catching falling knife risk")
	}

	if len(risks) == 0 {
		risks = append(risks, RiskStandard)
	}
	return risks
}
