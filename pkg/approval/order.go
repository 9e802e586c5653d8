// Package approval turns agent proposals into orders that only a human can
// move forward. Nothing here talks to a broker.
package approval

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("approval: order not found")
	ErrForbidden         = errors.New("approval: not permitted")
	ErrInvalidTransition = errors.New("approval: invalid status transition")
	ErrNoProposal        = errors.New("approval: run has no actionable proposal")
)

// Status is the order lifecycle state.
type Status string

const (
	StatusProposed  Status = "proposed"
	StatusApproved  Status = "approved"
	StatusSubmitted Status = "submitted"
	StatusFilled    Status = "filled"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Environment selects paper or live accounts.
type Environment string

const (
	EnvironmentPaper Environment = "paper"
	EnvironmentLive  Environment = "live"
)

// OrderType is the broker order type.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// Side is the lower-case trade direction stored on orders.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Order is a pending trade awaiting a decision from its owner.
type Order struct {
	ID               string
	UserID           string
	RunID            string
	Symbol           string
	Side             Side
	Quantity         int
	OrderType        OrderType
	LimitPrice       decimal.Decimal
	StopPrice        decimal.Decimal
	TargetPrice      decimal.Decimal
	Confidence       float64
	ReasoningSummary string
	EvidenceLinks    []string
	Status           Status
	Environment      Environment
	RejectedReason   string
	ApprovedBy       string
	ApprovedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Notional is quantity times the limit price.
func (o *Order) Notional() decimal.Decimal {
	return o.LimitPrice.Mul(decimal.NewFromInt(int64(o.Quantity)))
}

// Audit actions. An analysis entry is keyed by the agent run; trade entries
// by the order.
const (
	AuditAnalysisRequested = "agent_analysis_requested"
	AuditTradeApproved     = "trade_approved"
	AuditTradeRejected     = "trade_rejected"
)

// Audit resource types.
const (
	AuditResourceAgentRun = "agent_run"
	AuditResourceOrder    = "order"
)

// AuditEntry is one append-only audit log row.
type AuditEntry struct {
	ID           string
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	Metadata     map[string]any
	CreatedAt    time.Time
}

// OrderStore persists orders.
type OrderStore interface {
	InsertOrder(ctx context.Context, order *Order) error
	FindOrder(ctx context.Context, id string) (*Order, error)
	// TransitionOrder writes order's status fields only if the stored status
	// still equals from, and returns ErrInvalidTransition otherwise.
	TransitionOrder(ctx context.Context, order *Order, from Status) error
	ListOrdersByUser(ctx context.Context, userID string, limit int) ([]*Order, error)
}

// AuditLog appends audit entries.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry *AuditEntry) error
}
