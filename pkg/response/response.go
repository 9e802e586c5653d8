// Package response extracts a trade decision from the reasoning backend's
// free-text reply.
package response

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"atlas-api/pkg/market"
	"atlas-api/pkg/market/indicators"
	"atlas-api/pkg/signals"
)

// Action is the decision carried by a reply.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

const (
	DefaultConfidence = 0.5
	DefaultQuantity   = 10
	HoldingWindow     = "3-7 days"

	buyStopFactor    = 0.95
	buyTargetFactor  = 1.10
	sellStopFactor   = 1.05
	sellTargetFactor = 0.90
)

var (
	actionPattern     = regexp.MustCompile(`(?i)Action:\s*(BUY|SELL|HOLD)`)
	confidencePattern = regexp.MustCompile(`(?i)Confidence:\s*(\d+(?:\.\d+)?)`)
	quantityPattern   = regexp.MustCompile(`(?i)Quantity:\s*(\d+)`)
)

// Proposal is a bounded trade suggestion awaiting human approval.
type Proposal struct {
	Action        Action  `json:"action"`
	Symbol        string  `json:"symbol"`
	Quantity      int     `json:"quantity"`
	EntryPrice    float64 `json:"entry_price"`
	StopLoss      float64 `json:"stop_loss"`
	TargetPrice   float64 `json:"target_price"`
	Confidence    float64 `json:"confidence"`
	HoldingWindow string  `json:"holding_window"`
}

// Validate checks that the prices bracket the entry in the direction of the
// trade.
func (p *Proposal) Validate() error {
	if p == nil {
		return fmt.Errorf("response: nil proposal")
	}
	if p.Quantity <= 0 {
		return fmt.Errorf("response: quantity must be positive, got %d", p.Quantity)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("response: confidence %.2f outside [0,1]", p.Confidence)
	}
	switch p.Action {
	case ActionBuy:
		if !(p.StopLoss < p.EntryPrice && p.EntryPrice < p.TargetPrice) {
			return fmt.Errorf("response: BUY requires stop < entry < target (%.2f, %.2f, %.2f)", p.StopLoss, p.EntryPrice, p.TargetPrice)
		}
	case ActionSell:
		if !(p.StopLoss > p.EntryPrice && p.EntryPrice > p.TargetPrice) {
			return fmt.Errorf("response: SELL requires stop > entry > target (%.2f, %.2f, %.2f)", p.StopLoss, p.EntryPrice, p.TargetPrice)
		}
	default:
		return fmt.Errorf("response: action %q cannot carry a proposal", p.Action)
	}
	return nil
}

// Decision is the parsed outcome of one reply.
type Decision struct {
	Reasoning signals.Reasoning
	Action    Action
	Proposal  *Proposal
}

// Parse reads action, confidence and quantity from reply. Reasoning is taken
// from the interpreter output, never from the reply, and prices always come
// from the snapshot. HOLD yields no proposal, and neither does a snapshot
// without a positive price.
func Parse(reply string, snap *market.Snapshot, reasoning signals.Reasoning) Decision {
	action := parseAction(reply)
	d := Decision{Reasoning: reasoning, Action: action}
	if action == ActionHold || snap == nil || snap.CurrentPrice <= 0 {
		return d
	}

	entry := snap.CurrentPrice
	stop, target := entry*buyStopFactor, entry*buyTargetFactor
	if action == ActionSell {
		stop, target = entry*sellStopFactor, entry*sellTargetFactor
	}
	d.Proposal = &Proposal{
		Action:        action,
		Symbol:        snap.Symbol,
		Quantity:      parseQuantity(reply),
		EntryPrice:    entry,
		StopLoss:      indicators.Round2(stop),
		TargetPrice:   indicators.Round2(target),
		Confidence:    parseConfidence(reply),
		HoldingWindow: HoldingWindow,
	}
	return d
}

func parseAction(reply string) Action {
	m := actionPattern.FindStringSubmatch(reply)
	if m == nil {
		return ActionHold
	}
	return Action(strings.ToUpper(m[1]))
}

func parseConfidence(reply string) float64 {
	m := confidencePattern.FindStringSubmatch(reply)
	if m == nil {
		return DefaultConfidence
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return DefaultConfidence
	}
	if v > 1 {
		v /= 100
	}
	if v > 1 {
		v = 1
	}
	return v
}

// parseQuantity treats zero or unparseable values like a missing field.
func parseQuantity(reply string) int {
	m := quantityPattern.FindStringSubmatch(reply)
	if m == nil {
		return DefaultQuantity
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return DefaultQuantity
	}
	return n
}
