package response

import (
	"testing"

	"github.com/stretchr/testify/require"

	"atlas-api/pkg/market"
	"atlas-api/pkg/signals"
)

func snapAt(price float64) *market.Snapshot {
	return &market.Snapshot{Symbol: "NVDA", CurrentPrice: price}
}

func TestParseBuyDerivesPrices(t *testing.T) {
	d := Parse("Action: BUY\nQuantity: 15\nConfidence: 80", snapAt(100), signals.Empty())
	require.Equal(t, ActionBuy, d.Action)
	require.NotNil(t, d.Proposal)
	require.Equal(t, 95.0, d.Proposal.StopLoss)
	require.Equal(t, 110.0, d.Proposal.TargetPrice)
	require.Equal(t, 100.0, d.Proposal.EntryPrice)
	require.Equal(t, 15, d.Proposal.Quantity)
	require.Equal(t, 0.8, d.Proposal.Confidence)
	require.Equal(t, "3-7 days", d.Proposal.HoldingWindow)
	require.Equal(t, "NVDA", d.Proposal.Symbol)
	require.NoError(t, d.Proposal.Validate())
}

func TestParseSellDerivesPrices(t *testing.T) {
	d := Parse("action: sell", snapAt(100), signals.Empty())
	require.NotNil(t, d.Proposal)
	require.Equal(t, ActionSell, d.Proposal.Action)
	require.Equal(t, 105.0, d.Proposal.StopLoss)
	require.Equal(t, 90.0, d.Proposal.TargetPrice)
	require.NoError(t, d.Proposal.Validate())
}

func TestParseIgnoresPricesInReply(t *testing.T) {
	reply := "Action: BUY\nEntry: 10\nStop Loss: 1\nTarget: 999\nHolding: 2 weeks"
	d := Parse(reply, snapAt(500), signals.Empty())
	require.Equal(t, 500.0, d.Proposal.EntryPrice)
	require.Equal(t, 475.0, d.Proposal.StopLoss)
	require.Equal(t, 550.0, d.Proposal.TargetPrice)
	require.Equal(t, HoldingWindow, d.Proposal.HoldingWindow)
}

func TestParseConfidenceNormalisation(t *testing.T) {
	cases := map[string]float64{
		"Action: BUY Confidence: 72":  0.72,
		"Action: BUY Confidence: 0.6": 0.6,
		"Action: BUY":                 0.5,
		"Action: BUY Confidence: 1":   1,
		"Action: BUY confidence:85.5": 0.855,
		"Action: BUY Confidence: 250": 1,
	}
	for reply, want := range cases {
		d := Parse(reply, snapAt(100), signals.Empty())
		require.InDelta(t, want, d.Proposal.Confidence, 1e-9, reply)
	}
}

func TestParseQuantityDefaults(t *testing.T) {
	require.Equal(t, DefaultQuantity, Parse("Action: BUY", snapAt(1), signals.Empty()).Proposal.Quantity)
	require.Equal(t, DefaultQuantity, Parse("Action: BUY Quantity: 0", snapAt(1), signals.Empty()).Proposal.Quantity)
	require.Equal(t, DefaultQuantity, Parse("Action: BUY Quantity: lots", snapAt(1), signals.Empty()).Proposal.Quantity)
	require.Equal(t, 3, Parse("Action: BUY quantity: 3 shares", snapAt(1), signals.Empty()).Proposal.Quantity)
}

func TestParseHoldHasNoProposal(t *testing.T) {
	for _, reply := range []string{
		"Action: HOLD\nQuantity: 50\nConfidence: 90",
		"I would wait for a better entry.",
		"Action: WAIT",
		"",
	} {
		d := Parse(reply, snapAt(100), signals.Empty())
		require.Equal(t, ActionHold, d.Action, reply)
		require.Nil(t, d.Proposal, reply)
	}
}

func TestParseWithoutPriceHasNoProposal(t *testing.T) {
	d := Parse("Action: BUY", snapAt(0), signals.Empty())
	require.Equal(t, ActionBuy, d.Action)
	require.Nil(t, d.Proposal)
	require.Nil(t, Parse("Action: SELL", nil, signals.Empty()).Proposal)
}

func TestParseKeepsInterpreterReasoning(t *testing.T) {
	r := signals.Reasoning{
		TechnicalSignals: []string{"RSI neutral at 55.0"},
		TrendAnalysis:    signals.TrendSideways,
		Sentiment:        signals.SentimentNeutral,
		RiskFactors:      []string{signals.RiskStandard},
	}
	d := Parse("Trend: wildly bullish\nAction: HOLD", snapAt(100), r)
	require.Equal(t, r, d.Reasoning)
}

func TestProposalValidate(t *testing.T) {
	p := &Proposal{Action: ActionBuy, Quantity: 1, EntryPrice: 100, StopLoss: 101, TargetPrice: 110, Confidence: 0.5}
	require.Error(t, p.Validate())

	p = &Proposal{Action: ActionHold, Quantity: 1, Confidence: 0.5}
	require.Error(t, p.Validate())

	p = &Proposal{Action: ActionSell, Quantity: 0, EntryPrice: 100, StopLoss: 105, TargetPrice: 90}
	require.Error(t, p.Validate())
}
