package cli

import (
	"testing"

	"github.com/stretchr/testify/require"

	"atlas-api/internal/config"
	"atlas-api/pkg/agent"
	"atlas-api/pkg/confkit"
)

func TestConfigSummaryLines(t *testing.T) {
	require.Equal(t, []string{"Configuration: <nil>"}, ConfigSummaryLines(nil))

	cfg := &config.Config{
		Env:         "dev",
		Environment: "paper",
		JournalDir:  "/var/lib/atlas/journal",
		TTL:         config.CacheTTL{Short: 900, Medium: 3600, Long: 86400},
		Watchlist:   []string{"NVDA", "AAPL"},
	}
	cfg.LLM.File = "/etc/atlas/llm.yaml"
	cfg.Agent = confkit.Section[agent.Config]{Value: agent.DefaultConfig()}

	lines := ConfigSummaryLines(cfg)
	require.Contains(t, lines, "Environment: dev (orders: paper)")
	require.Contains(t, lines, "Postgres: not configured")
	require.Contains(t, lines, "Watchlist: NVDA, AAPL")
	require.Contains(t, lines, "LLM config: /etc/atlas/llm.yaml")
	require.Contains(t, lines, "Market config: not configured")
	require.Contains(t, lines, "Agent config: inline")
	require.Contains(t, lines, "Journal dir: /var/lib/atlas/journal")
}
