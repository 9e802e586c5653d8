package svc_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"atlas-api/internal/config"
	"atlas-api/internal/svc"
	agentpkg "atlas-api/pkg/agent"
	"atlas-api/pkg/approval"
	"atlas-api/pkg/llm"
	"atlas-api/pkg/market"
)

type flatProvider struct{}

func (flatProvider) Quote(context.Context, string) (*market.Quote, error) {
	return &market.Quote{Price: 200, PreviousClose: 198, Volume: 1_000_000, DayHigh: 201, DayLow: 197}, nil
}

func (flatProvider) History(_ context.Context, _ string, _, end time.Time) ([]market.Bar, error) {
	bars := make([]market.Bar, 60)
	for i := range bars {
		bars[i] = market.Bar{Date: end.AddDate(0, 0, i-len(bars)), Close: 180 + float64(i)/3}
	}
	return bars, nil
}

const buyReply = "Action: BUY\nQuantity: 5\nConfidence: 70"

func memoryConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Env:         "test",
		Environment: "paper",
		JournalDir:  filepath.Join(t.TempDir(), "journal"),
	}
}

func TestMemoryModeRunsEndToEnd(t *testing.T) {
	cfg := memoryConfig(t)
	backend := llm.BackendFunc(func(context.Context, string, string, string) (string, error) {
		return buyReply, nil
	})
	ctx, err := svc.NewServiceContext(context.Background(), cfg,
		svc.WithBackend(backend),
		svc.WithMarketProvider(flatProvider{}))
	require.NoError(t, err)
	defer ctx.Close()

	require.False(t, ctx.Durable())
	require.Nil(t, ctx.MarketCache)
	require.NotNil(t, ctx.AgentConfig)

	res := ctx.Orchestrator.Run(context.Background(), "user-1", "Should I buy AAPL?", "run-svc")
	require.Equal(t, agentpkg.StatusCompleted, res.Status, res.Error)
	require.NotNil(t, res.Proposal)

	_, err = os.Stat(filepath.Join(cfg.JournalDir, "run_run-svc.json"))
	require.NoError(t, err)
	stored, err := ctx.Traces.FindByRunID(context.Background(), "run-svc")
	require.NoError(t, err)
	require.Equal(t, "user-1", stored.UserID)

	order, err := ctx.Approvals.ProposeFromResult(context.Background(), res)
	require.NoError(t, err)
	require.Equal(t, approval.EnvironmentPaper, order.Environment)
	require.Equal(t, "AAPL", order.Symbol)

	again := ctx.Fetcher.Fetch(context.Background(), "AAPL")
	require.Equal(t, market.ProvenanceCached, again.Provenance)
}

func TestLLMConfigRequiredWithoutBackend(t *testing.T) {
	_, err := svc.NewServiceContext(context.Background(), memoryConfig(t), svc.WithMarketProvider(flatProvider{}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "llm config is required")
}
