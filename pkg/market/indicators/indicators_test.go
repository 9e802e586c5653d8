package indicators

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRSI(t *testing.T) {
	closes := []float64{100, 101, 102, 103, 105, 107, 106, 108, 110, 111, 112, 115, 117, 119, 118, 120, 121, 123, 125, 124}
	var gains, losses float64
	for i := len(closes) - 14; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains += d
		} else {
			losses -= d
		}
	}
	rs := (gains / 14) / (losses / 14)
	require.InDelta(t, Round2(100-100/(1+rs)), RSI(closes, DefaultRSIPeriod), 1e-9)
}

func TestRSI_ShortSeriesIsNeutral(t *testing.T) {
	require.Equal(t, NeutralRSI, RSI(nil, 14))
	require.Equal(t, NeutralRSI, RSI([]float64{1, 2, 3}, 14))

	fourteen := make([]float64, 14)
	for i := range fourteen {
		fourteen[i] = float64(100 + i)
	}
	require.Equal(t, NeutralRSI, RSI(fourteen, 14))
}

func TestRSI_NoLossesIsMaximal(t *testing.T) {
	up := make([]float64, 20)
	for i := range up {
		up[i] = float64(10 + i)
	}
	require.Equal(t, 100.0, RSI(up, 14))

	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 42
	}
	require.Equal(t, 100.0, RSI(flat, 14))
}

func TestRSI_AlwaysBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 0; n < 200; n++ {
		size := rng.Intn(120)
		prices := make([]float64, size)
		for i := range prices {
			prices[i] = rng.Float64() * 1000
		}
		v := RSI(prices, DefaultRSIPeriod)
		require.GreaterOrEqual(t, v, 0.0)
		require.LessOrEqual(t, v, 100.0)
	}
}

func TestMovingAverage(t *testing.T) {
	require.Equal(t, 0.0, MovingAverage(nil, 50))
	require.Equal(t, 7.5, MovingAverage([]float64{1, 2, 7.5}, 50))
	require.InDelta(t, 4.0, MovingAverage([]float64{1, 2, 3, 4, 5}, 3), 1e-9)
	require.InDelta(t, 3.33, MovingAverage([]float64{1, 3, 3, 4}, 3), 1e-9)
}

func TestMovingAverage_ShortSeriesUsesRoundedLastPrice(t *testing.T) {
	require.Equal(t, 2.35, MovingAverage([]float64{1, 2.346}, 50))
	require.Equal(t, 101.12, MovingAverage([]float64{99.5, 101.1249}, 200))
	require.Equal(t, 42.0, MovingAverage([]float64{42}, 0))
}

func TestMACD_ShortSeriesIsZero(t *testing.T) {
	prices := make([]float64, 25)
	for i := range prices {
		prices[i] = float64(i + 1)
	}
	require.Equal(t, MACDResult{}, MACD(prices))
}

func TestMACD_SignalMirrorsValue(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for n := 0; n < 100; n++ {
		prices := make([]float64, rng.Intn(200))
		for i := range prices {
			prices[i] = 50 + rng.Float64()*100
		}
		got := MACD(prices)
		require.Equal(t, got.Value, got.Signal)
		require.Equal(t, 0.0, got.Histogram)
	}
}

func TestMACD_UsesSimpleAverages(t *testing.T) {
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = float64(i + 1)
	}
	// fast average covers 19..30, slow covers 5..30
	require.InDelta(t, 24.5-17.5, MACD(prices).Value, 1e-9)
}

func TestRound2(t *testing.T) {
	require.Equal(t, 0.13, Round2(0.125))
	require.Equal(t, -0.12, Round2(-0.125))
	require.Equal(t, 2.0, Round2(1.999))
}
