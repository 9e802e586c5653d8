package indicators

import "math"

const (
	// DefaultRSIPeriod is the lookback used when callers do not pick one.
	DefaultRSIPeriod = 14
	// NeutralRSI is reported when the series is too short to measure momentum.
	NeutralRSI = 50.0

	macdFastPeriod = 12
	macdSlowPeriod = 26
)

// MACDResult holds the simplified MACD triple.
type MACDResult struct {
	Value     float64 `json:"value" msgpack:"value"`
	Signal    float64 `json:"signal" msgpack:"signal"`
	Histogram float64 `json:"histogram" msgpack:"histogram"`
}

// RSI computes the Relative Strength Index over the last period price changes
// using plain averages of gains and losses. Series shorter than period+1 yield
// NeutralRSI and a window without losses yields 100.
func RSI(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period+1 {
		return NeutralRSI
	}

	var gainSum, lossSum float64
	for i := len(prices) - period; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gainSum += change
		} else {
			lossSum -= change
		}
	}

	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return Round2(100 - (100 / (1 + rs)))
}

// MovingAverage returns the simple average of the last period prices. Short
// series fall back to the most recent price (rounded), or 0 when empty.
func MovingAverage(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period {
		if len(prices) == 0 {
			return 0
		}
		return Round2(prices[len(prices)-1])
	}

	sum := 0.0
	for _, p := range prices[len(prices)-period:] {
		sum += p
	}
	return Round2(sum / float64(period))
}

// MACD approximates MACD with 12 and 26 period simple averages. The signal line
// mirrors the MACD value, so the histogram is always zero.
func MACD(prices []float64) MACDResult {
	if len(prices) < macdSlowPeriod {
		return MACDResult{}
	}
	value := MovingAverage(prices, macdFastPeriod) - MovingAverage(prices, macdSlowPeriod)
	signal := value
	return MACDResult{
		Value:     Round2(value),
		Signal:    Round2(signal),
		Histogram: Round2(value - signal),
	}
}

// Round2 rounds half up to two decimals.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return math.Floor(v*100+0.5) / 100
}
