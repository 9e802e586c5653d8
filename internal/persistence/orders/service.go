// Package orders backs the approval workflow with the orders and audit_logs
// tables.
package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"atlas-api/internal/model"
	"atlas-api/pkg/approval"
)

// Service implements approval.OrderStore and approval.AuditLog.
type Service struct {
	orders model.OrdersModel
	audit  model.AuditLogsModel
}

var (
	_ approval.OrderStore = (*Service)(nil)
	_ approval.AuditLog   = (*Service)(nil)
)

// Config enumerates dependencies required to persist orders.
type Config struct {
	Orders model.OrdersModel
	Audit  model.AuditLogsModel
}

// NewService wires an order store. Returns nil when the orders model is missing.
func NewService(cfg Config) *Service {
	if cfg.Orders == nil {
		return nil
	}
	return &Service{orders: cfg.Orders, audit: cfg.Audit}
}

func (s *Service) InsertOrder(ctx context.Context, order *approval.Order) error {
	row, err := toRow(order)
	if err != nil {
		return err
	}
	if _, err := s.orders.Insert(ctx, row); err != nil {
		return fmt.Errorf("orders: insert %s: %w", order.ID, err)
	}
	return nil
}

func (s *Service) FindOrder(ctx context.Context, id string) (*approval.Order, error) {
	row, err := s.orders.FindOne(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return nil, approval.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("orders: find %s: %w", id, err)
	}
	return fromRow(row)
}

// TransitionOrder updates the decision columns while the stored status still
// equals from.
func (s *Service) TransitionOrder(ctx context.Context, order *approval.Order, from approval.Status) error {
	row, err := toRow(order)
	if err != nil {
		return err
	}
	changed, err := s.orders.TransitionStatus(ctx, row, string(from))
	if err != nil {
		return fmt.Errorf("orders: transition %s: %w", order.ID, err)
	}
	if changed {
		return nil
	}
	if _, err := s.FindOrder(ctx, order.ID); err != nil {
		return err
	}
	return approval.ErrInvalidTransition
}

func (s *Service) ListOrdersByUser(ctx context.Context, userID string, limit int) ([]*approval.Order, error) {
	rows, err := s.orders.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("orders: list user=%s: %w", userID, err)
	}
	out := make([]*approval.Order, 0, len(rows))
	for _, row := range rows {
		o, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *Service) AppendAudit(ctx context.Context, entry *approval.AuditEntry) error {
	if s.audit == nil {
		return errors.New("orders: audit log not configured")
	}
	meta := entry.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("orders: encode audit metadata: %w", err)
	}
	_, err = s.audit.Insert(ctx, &model.AuditLogs{
		Id:           entry.ID,
		UserId:       entry.UserID,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceId:   entry.ResourceID,
		Metadata:     string(raw),
		CreatedAt:    entry.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("orders: append audit %s: %w", entry.Action, err)
	}
	return nil
}

func toRow(o *approval.Order) (*model.Orders, error) {
	links := o.EvidenceLinks
	if links == nil {
		links = []string{}
	}
	raw, err := json.Marshal(links)
	if err != nil {
		return nil, fmt.Errorf("orders: encode evidence %s: %w", o.ID, err)
	}
	row := &model.Orders{
		Id:               o.ID,
		UserId:           o.UserID,
		RunId:            o.RunID,
		Symbol:           o.Symbol,
		Side:             string(o.Side),
		Quantity:         int64(o.Quantity),
		OrderType:        string(o.OrderType),
		LimitPrice:       o.LimitPrice,
		StopPrice:        o.StopPrice,
		TargetPrice:      o.TargetPrice,
		Confidence:       o.Confidence,
		ReasoningSummary: o.ReasoningSummary,
		EvidenceLinks:    string(raw),
		Status:           string(o.Status),
		Environment:      string(o.Environment),
		RejectedReason:   nullString(o.RejectedReason),
		ApprovedBy:       nullString(o.ApprovedBy),
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
	if o.ApprovedAt != nil {
		row.ApprovedAt = sql.NullTime{Time: *o.ApprovedAt, Valid: true}
	}
	return row, nil
}

func fromRow(row *model.Orders) (*approval.Order, error) {
	o := &approval.Order{
		ID:               row.Id,
		UserID:           row.UserId,
		RunID:            row.RunId,
		Symbol:           row.Symbol,
		Side:             approval.Side(row.Side),
		Quantity:         int(row.Quantity),
		OrderType:        approval.OrderType(row.OrderType),
		LimitPrice:       row.LimitPrice,
		StopPrice:        row.StopPrice,
		TargetPrice:      row.TargetPrice,
		Confidence:       row.Confidence,
		ReasoningSummary: row.ReasoningSummary,
		EvidenceLinks:    []string{},
		Status:           approval.Status(row.Status),
		Environment:      approval.Environment(row.Environment),
		RejectedReason:   row.RejectedReason.String,
		ApprovedBy:       row.ApprovedBy.String,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
	if row.EvidenceLinks != "" {
		if err := json.Unmarshal([]byte(row.EvidenceLinks), &o.EvidenceLinks); err != nil {
			return nil, fmt.Errorf("orders: decode evidence %s: %w", row.Id, err)
		}
	}
	if row.ApprovedAt.Valid {
		t := row.ApprovedAt.Time
		o.ApprovedAt = &t
	}
	return o, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
