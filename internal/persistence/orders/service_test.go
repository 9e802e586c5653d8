package orders

import (
	"context"
	"database/sql"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"atlas-api/internal/model"
	"atlas-api/pkg/approval"
	"atlas-api/pkg/response"
)

type fakeOrders struct {
	rows map[string]*model.Orders
}

func (f *fakeOrders) Insert(_ context.Context, data *model.Orders) (sql.Result, error) {
	cp := *data
	f.rows[data.Id] = &cp
	return nil, nil
}

func (f *fakeOrders) FindOne(_ context.Context, id string) (*model.Orders, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (f *fakeOrders) TransitionStatus(_ context.Context, data *model.Orders, from string) (bool, error) {
	row, ok := f.rows[data.Id]
	if !ok || row.Status != from {
		return false, nil
	}
	row.Status = data.Status
	row.RejectedReason = data.RejectedReason
	row.ApprovedBy = data.ApprovedBy
	row.ApprovedAt = data.ApprovedAt
	row.UpdatedAt = data.UpdatedAt
	return true, nil
}

func (f *fakeOrders) ListByUser(_ context.Context, userId string, limit int) ([]*model.Orders, error) {
	var out []*model.Orders
	for _, r := range f.rows {
		if r.UserId == userId {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeAudit struct {
	rows []*model.AuditLogs
}

func (f *fakeAudit) Insert(_ context.Context, data *model.AuditLogs) (sql.Result, error) {
	f.rows = append(f.rows, data)
	return nil, nil
}

func (f *fakeAudit) ListByResource(_ context.Context, resourceType, resourceId string) ([]*model.AuditLogs, error) {
	var out []*model.AuditLogs
	for _, r := range f.rows {
		if r.ResourceType == resourceType && r.ResourceId == resourceId {
			out = append(out, r)
		}
	}
	return out, nil
}

func newWorkflow(t *testing.T) (*approval.Service, *fakeOrders, *fakeAudit) {
	t.Helper()
	orders := &fakeOrders{rows: make(map[string]*model.Orders)}
	audit := &fakeAudit{}
	store := NewService(Config{Orders: orders, Audit: audit})
	now := time.Date(2025, 6, 2, 15, 30, 0, 0, time.UTC)
	svc, err := approval.NewService(store, store, approval.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return svc, orders, audit
}

func proposal() *response.Proposal {
	return &response.Proposal{
		Action:      response.ActionSell,
		Symbol:      "TSLA",
		Quantity:    10,
		EntryPrice:  250.004,
		StopLoss:    262.5,
		TargetPrice: 225,
		Confidence:  0.7,
	}
}

func TestNewServiceRequiresModel(t *testing.T) {
	require.Nil(t, NewService(Config{}))
}

func TestProposeApproveThroughTables(t *testing.T) {
	svc, orders, audit := newWorkflow(t)
	ctx := context.Background()

	order, err := svc.Propose(ctx, "user-1", "run-1", proposal())
	require.NoError(t, err)
	row := orders.rows[order.ID]
	require.Equal(t, "sell", row.Side)
	require.Equal(t, "250", row.LimitPrice.String())
	require.Equal(t, "proposed", row.Status)
	require.Equal(t, `[]`, row.EvidenceLinks)
	require.False(t, row.ApprovedAt.Valid)

	approved, err := svc.Approve(ctx, order.ID, "user-1")
	require.NoError(t, err)
	require.Equal(t, approval.StatusApproved, approved.Status)
	require.True(t, orders.rows[order.ID].ApprovedAt.Valid)
	require.Equal(t, "user-1", orders.rows[order.ID].ApprovedBy.String)

	found, err := svc.Orders(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.NotNil(t, found[0].ApprovedAt)

	analysis, err := audit.ListByResource(ctx, approval.AuditResourceAgentRun, "run-1")
	require.NoError(t, err)
	require.Len(t, analysis, 1)
	require.Equal(t, approval.AuditAnalysisRequested, analysis[0].Action)
	require.JSONEq(t, `{"symbol":"TSLA","action":"SELL","confidence":0.7}`, analysis[0].Metadata)

	trail, err := audit.ListByResource(ctx, approval.AuditResourceOrder, order.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	require.Equal(t, approval.AuditTradeApproved, trail[0].Action)
	require.JSONEq(t, `{"symbol":"TSLA","side":"sell","quantity":10,"agent_run_id":"run-1","confidence_score":0.7}`, trail[0].Metadata)
}

func TestTransitionDistinguishesMissingFromStale(t *testing.T) {
	svc, _, _ := newWorkflow(t)
	ctx := context.Background()

	_, err := svc.Reject(ctx, "missing", "user-1", "no")
	require.ErrorIs(t, err, approval.ErrNotFound)

	order, err := svc.Propose(ctx, "user-1", "run-1", proposal())
	require.NoError(t, err)
	_, err = svc.Reject(ctx, order.ID, "user-1", "too risky")
	require.NoError(t, err)
	_, err = svc.Approve(ctx, order.ID, "user-1")
	require.ErrorIs(t, err, approval.ErrInvalidTransition)
}

func TestStoreTransitionRequiresPriorStatus(t *testing.T) {
	orders := &fakeOrders{rows: make(map[string]*model.Orders)}
	store := NewService(Config{Orders: orders})
	ctx := context.Background()
	now := time.Date(2025, 6, 2, 15, 30, 0, 0, time.UTC)

	order := &approval.Order{ID: "o-1", UserID: "user-1", Status: approval.StatusRejected, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.InsertOrder(ctx, order))

	order.Status = approval.StatusApproved
	err := store.TransitionOrder(ctx, order, approval.StatusProposed)
	require.ErrorIs(t, err, approval.ErrInvalidTransition)

	err = store.TransitionOrder(ctx, &approval.Order{ID: "o-2"}, approval.StatusProposed)
	require.ErrorIs(t, err, approval.ErrNotFound)

	require.Error(t, store.AppendAudit(ctx, &approval.AuditEntry{ID: "a-1"}))
}
