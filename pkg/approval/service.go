package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"

	"atlas-api/pkg/agent"
	"atlas-api/pkg/response"
)

const defaultListLimit = 50

// Service moves orders through proposed → approved | rejected.
type Service struct {
	orders OrderStore
	audit  AuditLog
	env    Environment
	now    func() time.Time
	newID  func() string
}

// Option customises a Service.
type Option func(*Service)

// WithEnvironment sets the environment stamped on new orders.
func WithEnvironment(env Environment) Option {
	return func(s *Service) {
		if env != "" {
			s.env = env
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides order and audit id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewService builds a Service. audit may be nil.
func NewService(orders OrderStore, audit AuditLog, opts ...Option) (*Service, error) {
	if orders == nil {
		return nil, errors.New("approval: order store is required")
	}
	s := &Service{
		orders: orders,
		audit:  audit,
		env:    EnvironmentPaper,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ProposeFromResult creates an order for a completed run. Runs without a
// BUY or SELL proposal return ErrNoProposal.
func (s *Service) ProposeFromResult(ctx context.Context, res *agent.Result) (*Order, error) {
	if res == nil || res.Status != agent.StatusCompleted || res.Proposal == nil {
		return nil, ErrNoProposal
	}
	order, err := s.propose(ctx, res.UserID, res.RunID, res.Proposal, res.Reasoning.TrendAnalysis, res.EvidenceLinks)
	if err != nil {
		return nil, err
	}
	s.auditAnalysis(ctx, order, res.RawTrace.UserIntent)
	return order, nil
}

// Propose creates a limit order in status proposed from p.
func (s *Service) Propose(ctx context.Context, userID, runID string, p *response.Proposal) (*Order, error) {
	order, err := s.propose(ctx, userID, runID, p, "", nil)
	if err != nil {
		return nil, err
	}
	s.auditAnalysis(ctx, order, "")
	return order, nil
}

func (s *Service) propose(ctx context.Context, userID, runID string, p *response.Proposal, summary string, evidence []string) (*Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("approval: user id is required")
	}
	if p == nil || p.Action == response.ActionHold {
		return nil, ErrNoProposal
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("approval: %w", err)
	}

	now := s.now().UTC()
	order := &Order{
		ID:               s.newID(),
		UserID:           userID,
		RunID:            runID,
		Symbol:           p.Symbol,
		Side:             Side(strings.ToLower(string(p.Action))),
		Quantity:         p.Quantity,
		OrderType:        OrderTypeLimit,
		LimitPrice:       price(p.EntryPrice),
		StopPrice:        price(p.StopLoss),
		TargetPrice:      price(p.TargetPrice),
		Confidence:       p.Confidence,
		ReasoningSummary: summary,
		EvidenceLinks:    evidence,
		Status:           StatusProposed,
		Environment:      s.env,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.orders.InsertOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("approval: insert order: %w", err)
	}
	return order, nil
}

// auditAnalysis records the run that produced order against the run itself.
func (s *Service) auditAnalysis(ctx context.Context, order *Order, intent string) {
	meta := map[string]any{
		"symbol":     order.Symbol,
		"action":     strings.ToUpper(string(order.Side)),
		"confidence": order.Confidence,
	}
	if intent != "" {
		meta["intent"] = intent
	}
	s.appendAudit(ctx, order.UserID, AuditAnalysisRequested, AuditResourceAgentRun, order.RunID, meta)
}

// Approve moves the caller's own proposed order to approved.
func (s *Service) Approve(ctx context.Context, orderID, userID string) (*Order, error) {
	order, err := s.owned(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if order.Status != StatusProposed {
		return nil, fmt.Errorf("%w: order is already %s", ErrInvalidTransition, order.Status)
	}
	now := s.now().UTC()
	order.Status = StatusApproved
	order.ApprovedBy = userID
	order.ApprovedAt = &now
	order.UpdatedAt = now
	if err := s.orders.TransitionOrder(ctx, order, StatusProposed); err != nil {
		return nil, fmt.Errorf("approval: approve order %s: %w", orderID, err)
	}
	s.appendAudit(ctx, userID, AuditTradeApproved, AuditResourceOrder, order.ID, map[string]any{
		"symbol":           order.Symbol,
		"side":             string(order.Side),
		"quantity":         order.Quantity,
		"agent_run_id":     order.RunID,
		"confidence_score": order.Confidence,
	})
	return order, nil
}

// Reject moves the caller's own proposed order to rejected.
func (s *Service) Reject(ctx context.Context, orderID, userID, reason string) (*Order, error) {
	order, err := s.owned(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if order.Status != StatusProposed {
		return nil, fmt.Errorf("%w: order is already %s", ErrInvalidTransition, order.Status)
	}
	order.Status = StatusRejected
	order.RejectedReason = strings.TrimSpace(reason)
	order.UpdatedAt = s.now().UTC()
	if err := s.orders.TransitionOrder(ctx, order, StatusProposed); err != nil {
		return nil, fmt.Errorf("approval: reject order %s: %w", orderID, err)
	}
	s.appendAudit(ctx, userID, AuditTradeRejected, AuditResourceOrder, order.ID, map[string]any{
		"symbol": order.Symbol,
		"side":   string(order.Side),
		"reason": order.RejectedReason,
	})
	return order, nil
}

// Orders lists the user's orders, newest first. limit <= 0 means 50.
func (s *Service) Orders(ctx context.Context, userID string, limit int) ([]*Order, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.orders.ListOrdersByUser(ctx, userID, limit)
}

func (s *Service) owned(ctx context.Context, orderID, userID string) (*Order, error) {
	order, err := s.orders.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("%w: order %s belongs to another user", ErrForbidden, orderID)
	}
	return order, nil
}

// appendAudit never fails the caller; a missing audit row is logged.
func (s *Service) appendAudit(ctx context.Context, userID, action, resourceType, resourceID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entry := &AuditEntry{
		ID:           s.newID(),
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     meta,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.audit.AppendAudit(ctx, entry); err != nil {
		logx.WithContext(ctx).Errorf("approval: audit %s for %s %s failed: %v", action, resourceType, resourceID, err)
	}
}

func price(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}
