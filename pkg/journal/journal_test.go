package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"atlas-api/pkg/agent"
	"atlas-api/pkg/response"
)

func sampleRun(id, user string, at time.Time, confidence float64) *agent.Run {
	run := &agent.Run{
		RunID:         id,
		UserID:        user,
		Timestamp:     at,
		UserIntent:    "Should I buy NVDA?",
		Status:        agent.StatusProposing,
		EvidenceLinks: []string{"https://finance.yahoo.com/quote/NVDA"},
		ToolsCalled: []agent.ToolCall{{
			Tool:       agent.ToolGetMarketData,
			Symbol:     "NVDA",
			DataSource: "yahoo_finance",
			Timestamp:  at,
			Result:     agent.ToolError{Error: "boom"},
		}},
		CreatedAt: at,
	}
	if confidence > 0 {
		run.Status = agent.StatusCompleted
		run.Proposal = &response.Proposal{Action: response.ActionBuy, Symbol: "NVDA", Quantity: 10, Confidence: confidence}
	}
	return run
}

func TestRecordAndFind(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	at := time.Date(2025, 6, 2, 15, 30, 0, 0, time.UTC)

	require.NoError(t, store.RecordRun(context.Background(), sampleRun("run-1", "user-1", at, 0.8)))
	_, err = os.Stat(filepath.Join(store.Dir(), "run_run-1.json"))
	require.NoError(t, err)

	got, err := store.FindByRunID(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, "user-1", got.UserID)
	require.Equal(t, agent.StatusCompleted, got.Status)
	require.True(t, at.Equal(got.Timestamp))
	require.Equal(t, 0.8, got.Proposal.Confidence)
	require.Len(t, got.ToolsCalled, 1)
	require.Equal(t, map[string]any{"error": "boom"}, got.ToolsCalled[0].Result)

	_, err = store.FindByRunID(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRunsAreWrittenOnce(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	run := sampleRun("run-1", "user-1", time.Now(), 0)
	require.NoError(t, store.RecordRun(context.Background(), run))
	require.ErrorIs(t, store.RecordRun(context.Background(), run), ErrExists)
}

func TestRejectsUnsafeRunIDs(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	for _, id := range []string{"", "../escape", `a\b`, ".."} {
		require.Error(t, store.RecordRun(context.Background(), sampleRun(id, "user-1", time.Now(), 0)), id)
	}
	require.Error(t, store.RecordRun(context.Background(), nil))
}

func TestListLatestAndStats(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	base := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	require.NoError(t, store.RecordRun(ctx, sampleRun("a", "user-1", base, 0.6)))
	require.NoError(t, store.RecordRun(ctx, sampleRun("b", "user-1", base.Add(time.Hour), 0)))
	require.NoError(t, store.RecordRun(ctx, sampleRun("c", "user-2", base.Add(2*time.Hour), 0.8)))
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "notes.txt"), []byte("ignored"), 0o644))

	runs, err := store.ListByUser(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "b", runs[0].RunID)
	require.Equal(t, "a", runs[1].RunID)

	latest, err := store.LatestByUser(ctx, "user-2")
	require.NoError(t, err)
	require.Equal(t, "c", latest.RunID)

	_, err = store.LatestByUser(ctx, "nobody")
	require.ErrorIs(t, err, ErrNotFound)

	st, err := store.Stats(ctx, time.Time{})
	require.NoError(t, err)
	require.Equal(t, int64(3), st.TotalRuns)
	require.Equal(t, int64(2), st.RunsWithProposals)
	require.Equal(t, int64(2), st.UniqueUsers)
	require.InDelta(t, 0.7, st.AvgConfidence, 1e-9)

	st, err = store.Stats(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(2), st.TotalRuns)
	require.Equal(t, int64(1), st.RunsWithProposals)
	require.Equal(t, 0.8, st.AvgConfidence)
}
