package approval

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"atlas-api/pkg/agent"
	"atlas-api/pkg/response"
	"atlas-api/pkg/signals"
)

var testNow = time.Date(2025, 6, 2, 15, 30, 0, 0, time.UTC)

func newTestService(t *testing.T, audit AuditLog) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	if audit == nil {
		audit = store
	}
	n := 0
	svc, err := NewService(store, audit,
		WithClock(func() time.Time { return testNow }),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}))
	require.NoError(t, err)
	return svc, store
}

func buyProposal() *response.Proposal {
	return &response.Proposal{
		Action:        response.ActionBuy,
		Symbol:        "NVDA",
		Quantity:      15,
		EntryPrice:    500,
		StopLoss:      475,
		TargetPrice:   550,
		Confidence:    0.8,
		HoldingWindow: response.HoldingWindow,
	}
}

func TestProposeCreatesPaperLimitOrder(t *testing.T) {
	svc, store := newTestService(t, nil)

	order, err := svc.Propose(context.Background(), "user-1", "run-1", buyProposal())
	require.NoError(t, err)
	require.Equal(t, "id-1", order.ID)
	require.Equal(t, StatusProposed, order.Status)
	require.Equal(t, EnvironmentPaper, order.Environment)
	require.Equal(t, OrderTypeLimit, order.OrderType)
	require.Equal(t, SideBuy, order.Side)
	require.True(t, decimal.NewFromInt(500).Equal(order.LimitPrice))
	require.True(t, decimal.NewFromInt(475).Equal(order.StopPrice))
	require.True(t, decimal.NewFromInt(550).Equal(order.TargetPrice))
	require.True(t, decimal.NewFromInt(7500).Equal(order.Notional()))
	require.Equal(t, testNow, order.CreatedAt)

	stored, err := store.FindOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, "run-1", stored.RunID)

	entries := store.AuditEntries()
	require.Len(t, entries, 1)
	require.Equal(t, AuditAnalysisRequested, entries[0].Action)
	require.Equal(t, AuditResourceAgentRun, entries[0].ResourceType)
	require.Equal(t, "run-1", entries[0].ResourceID)
	require.Equal(t, map[string]any{"symbol": "NVDA", "action": "BUY", "confidence": 0.8}, entries[0].Metadata)
}

func TestProposeRoundsPricesToCents(t *testing.T) {
	svc, _ := newTestService(t, nil)
	p := buyProposal()
	p.EntryPrice, p.StopLoss, p.TargetPrice = 123.456, 117.28, 135.8
	order, err := svc.Propose(context.Background(), "user-1", "run-1", p)
	require.NoError(t, err)
	require.Equal(t, "123.46", order.LimitPrice.StringFixed(2))
}

func TestProposeRejectsHoldAndInvalid(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.Propose(context.Background(), "user-1", "run-1", nil)
	require.ErrorIs(t, err, ErrNoProposal)

	hold := buyProposal()
	hold.Action = response.ActionHold
	_, err = svc.Propose(context.Background(), "user-1", "run-1", hold)
	require.ErrorIs(t, err, ErrNoProposal)

	bad := buyProposal()
	bad.StopLoss = 510
	_, err = svc.Propose(context.Background(), "user-1", "run-1", bad)
	require.Error(t, err)

	_, err = svc.Propose(context.Background(), " ", "run-1", buyProposal())
	require.Error(t, err)
}

func TestProposeFromResult(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.ProposeFromResult(context.Background(), &agent.Result{Status: agent.StatusProposing})
	require.ErrorIs(t, err, ErrNoProposal)

	res := &agent.Result{
		RunID:         "run-9",
		UserID:        "user-1",
		Status:        agent.StatusCompleted,
		Proposal:      buyProposal(),
		Reasoning:     signals.Reasoning{TrendAnalysis: signals.TrendUp},
		EvidenceLinks: []string{"https://finance.yahoo.com/quote/NVDA"},
	}
	order, err := svc.ProposeFromResult(context.Background(), res)
	require.NoError(t, err)
	require.Equal(t, "run-9", order.RunID)
	require.Equal(t, signals.TrendUp, order.ReasoningSummary)
	require.Equal(t, res.EvidenceLinks, order.EvidenceLinks)
}

func TestProposeFromResultAuditsIntentAgainstRun(t *testing.T) {
	svc, store := newTestService(t, nil)
	res := &agent.Result{
		RunID:    "run-9",
		UserID:   "user-1",
		Status:   agent.StatusCompleted,
		Proposal: buyProposal(),
		RawTrace: agent.RawTrace{UserIntent: "Should I buy NVDA?"},
	}
	_, err := svc.ProposeFromResult(context.Background(), res)
	require.NoError(t, err)

	entries := store.AuditEntries()
	require.Len(t, entries, 1)
	require.Equal(t, "agent_analysis_requested", entries[0].Action)
	require.Equal(t, "agent_run", entries[0].ResourceType)
	require.Equal(t, "run-9", entries[0].ResourceID)
	require.Equal(t, "user-1", entries[0].UserID)
	require.Equal(t, "Should I buy NVDA?", entries[0].Metadata["intent"])
	require.Equal(t, "BUY", entries[0].Metadata["action"])
}

func TestApproveByOwner(t *testing.T) {
	svc, store := newTestService(t, nil)
	order, err := svc.Propose(context.Background(), "user-1", "run-1", buyProposal())
	require.NoError(t, err)

	approved, err := svc.Approve(context.Background(), order.ID, "user-1")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Equal(t, "user-1", approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)

	_, err = svc.Approve(context.Background(), order.ID, "user-1")
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.Reject(context.Background(), order.ID, "user-1", "changed my mind")
	require.ErrorIs(t, err, ErrInvalidTransition)

	entries := store.AuditEntries()
	require.Len(t, entries, 2)
	require.Equal(t, "trade_approved", entries[1].Action)
	require.Equal(t, "order", entries[1].ResourceType)
	require.Equal(t, order.ID, entries[1].ResourceID)
	require.Equal(t, 0.8, entries[1].Metadata["confidence_score"])
	require.Equal(t, "run-1", entries[1].Metadata["agent_run_id"])
}

func TestApproveAndRejectRequireOwner(t *testing.T) {
	svc, _ := newTestService(t, nil)
	order, err := svc.Propose(context.Background(), "user-1", "run-1", buyProposal())
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), order.ID, "user-2")
	require.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Reject(context.Background(), order.ID, "user-2", "")
	require.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Approve(context.Background(), "missing", "user-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRejectRecordsReason(t *testing.T) {
	svc, store := newTestService(t, nil)
	order, err := svc.Propose(context.Background(), "user-1", "run-1", buyProposal())
	require.NoError(t, err)

	rejected, err := svc.Reject(context.Background(), order.ID, "user-1", "  too risky ")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.Equal(t, "too risky", rejected.RejectedReason)
	require.Nil(t, rejected.ApprovedAt)

	entries := store.AuditEntries()
	require.Equal(t, "trade_rejected", entries[len(entries)-1].Action)
	require.Equal(t, order.ID, entries[len(entries)-1].ResourceID)
	require.Equal(t, "too risky", entries[len(entries)-1].Metadata["reason"])
}

type brokenAudit struct{}

func (brokenAudit) AppendAudit(context.Context, *AuditEntry) error { return errors.New("audit down") }

func TestAuditFailureIsNotFatal(t *testing.T) {
	svc, _ := newTestService(t, brokenAudit{})
	order, err := svc.Propose(context.Background(), "user-1", "run-1", buyProposal())
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), order.ID, "user-1")
	require.NoError(t, err)
}

func TestOrdersNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	now := testNow
	svc, err := NewService(store, nil, WithClock(func() time.Time {
		now = now.Add(time.Minute)
		return now
	}))
	require.NoError(t, err)

	first, err := svc.Propose(context.Background(), "user-1", "run-1", buyProposal())
	require.NoError(t, err)
	second, err := svc.Propose(context.Background(), "user-1", "run-2", buyProposal())
	require.NoError(t, err)
	_, err = svc.Propose(context.Background(), "user-2", "run-3", buyProposal())
	require.NoError(t, err)

	orders, err := svc.Orders(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	require.Equal(t, second.ID, orders[0].ID)
	require.Equal(t, first.ID, orders[1].ID)

	orders, err = svc.Orders(context.Background(), "user-1", 1)
	require.NoError(t, err)
	require.Len(t, orders, 1)
}

func TestCanViewTrace(t *testing.T) {
	run := &agent.Run{RunID: "run-1", UserID: "user-1"}
	require.True(t, CanViewTrace(run, Viewer{UserID: "user-1", Role: RoleTrader}))
	require.False(t, CanViewTrace(run, Viewer{UserID: "user-2", Role: RoleTrader}))
	require.True(t, CanViewTrace(run, Viewer{UserID: "user-2", Role: RoleAdmin}))
	require.True(t, CanViewTrace(run, Viewer{UserID: "user-3", Role: RoleSuperAdmin}))
	require.False(t, CanViewTrace(run, Viewer{Role: RoleSystem}))
	require.False(t, CanViewTrace(nil, Viewer{Role: RoleAdmin}))
}
