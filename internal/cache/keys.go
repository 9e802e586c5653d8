package cache

import (
	"strings"
	"time"

	"atlas-api/internal/config"
)

// Namespace is the Redis key prefix for the Atlas application.
const Namespace = "atlas"

// TTLClass represents a config-driven TTL bucket.
type TTLClass string

const (
	TTLShort  TTLClass = "short"
	TTLMedium TTLClass = "medium"
	TTLLong   TTLClass = "long"
)

// TTLSet normalises cache TTLs from config into time.Duration values.
type TTLSet struct {
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

// NewTTLSet converts config TTLs (in seconds) into durations.
func NewTTLSet(cfg config.CacheTTL) TTLSet {
	return TTLSet{
		Short:  durationOrDefault(cfg.Short, 15*time.Minute),
		Medium: durationOrDefault(cfg.Medium, time.Hour),
		Long:   durationOrDefault(cfg.Long, 24*time.Hour),
	}
}

func durationOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds < 0 {
		return 0
	}
	if seconds == 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// Duration returns the configured duration for the given TTL class.
func (t TTLSet) Duration(class TTLClass) time.Duration {
	switch class {
	case TTLShort:
		return t.Short
	case TTLMedium:
		return t.Medium
	case TTLLong:
		return t.Long
	default:
		return 0
	}
}

// Scaled applies a multiplier to a TTL class, useful for half/double TTL variants.
func (t TTLSet) Scaled(class TTLClass, factor float64) time.Duration {
	base := t.Duration(class)
	if base <= 0 || factor <= 0 {
		return base
	}
	return time.Duration(float64(base) * factor)
}

func formatKey(parts ...string) string {
	values := make([]string, 0, len(parts)+1)
	values = append(values, Namespace)
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		values = append(values, clean)
	}
	return strings.Join(values, ":")
}

// --- Market Keys ------------------------------------------------------------

// MarketSnapshotKey holds the newest cached snapshot for a symbol.
func MarketSnapshotKey(symbol string) string {
	return formatKey("market", "snapshot", strings.ToUpper(symbol))
}

// WarmerLockKey guards one cache warm cycle across instances.
func WarmerLockKey() string {
	return formatKey("lock", "warmer")
}

// --- Agent Runs -------------------------------------------------------------

// LatestRunKey points at a user's most recent run id.
func LatestRunKey(userID string) string {
	return formatKey("runs", "latest", userID)
}

// RunStatsKey caches the aggregate trace statistics.
func RunStatsKey() string {
	return formatKey("runs", "stats")
}

// --- TTL Helpers ------------------------------------------------------------

// MarketSnapshotTTL keeps a Redis snapshot for the freshness window. Entries
// expire natively, so readers never see a stale row there.
func MarketSnapshotTTL(freshness time.Duration, ttl TTLSet) time.Duration {
	if freshness > 0 {
		return freshness
	}
	return ttl.Short
}

// MarketRowRetention is how long Postgres cache rows survive before Purge.
func MarketRowRetention(ttl TTLSet) time.Duration {
	return ttl.Long
}

// WarmerLockTTL bounds a warm cycle lock.
func WarmerLockTTL(ttl TTLSet) time.Duration {
	return ttl.Scaled(TTLShort, 0.5)
}

// LatestRunTTL returns the TTL for the per-user latest run pointer.
func LatestRunTTL(ttl TTLSet) time.Duration {
	return ttl.Long
}

// RunStatsTTL returns the TTL for cached trace statistics.
func RunStatsTTL(ttl TTLSet) time.Duration {
	return ttl.Scaled(TTLShort, 0.2)
}
