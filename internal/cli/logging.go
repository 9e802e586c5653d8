package cli

import (
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"atlas-api/internal/config"
	"atlas-api/pkg/confkit"
)

// ConfigSummaryLines returns human readable lines describing the loaded app config.
func ConfigSummaryLines(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"Configuration: <nil>"}
	}

	lines := []string{
		fmt.Sprintf("Environment: %s (orders: %s)", cfg.Env, cfg.Environment),
		fmt.Sprintf("Postgres: %s", presence(cfg.HasPostgres())),
		fmt.Sprintf("Redis: %s", presence(cfg.HasRedis())),
		fmt.Sprintf("TTL (short/medium/long): %ds / %ds / %ds", cfg.TTL.Short, cfg.TTL.Medium, cfg.TTL.Long),
		fmt.Sprintf("Watchlist: %s", watchlist(cfg.Watchlist)),
		sectionLine("LLM config", cfg.LLM),
		sectionLine("Market config", cfg.Market),
		sectionLine("Agent config", cfg.Agent),
	}
	if !cfg.HasPostgres() {
		lines = append(lines, fmt.Sprintf("Journal dir: %s", cfg.ResolveJournalDir()))
	}

	return lines
}

// LogConfigSummary emits the configuration summary using logx.
func LogConfigSummary(cfg *config.Config) {
	lines := ConfigSummaryLines(cfg)
	if len(lines) == 0 {
		return
	}
	logx.Info("configuration summary")
	for _, line := range lines {
		logx.Infof("config • %s", line)
	}
}

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func watchlist(symbols []string) string {
	if len(symbols) == 0 {
		return "empty"
	}
	return strings.Join(symbols, ", ")
}

func sectionLine[T any](name string, section confkit.Section[T]) string {
	switch {
	case strings.TrimSpace(section.File) != "":
		return fmt.Sprintf("%s: %s", name, section.File)
	case section.Loaded():
		return fmt.Sprintf("%s: inline", name)
	default:
		return fmt.Sprintf("%s: not configured", name)
	}
}
