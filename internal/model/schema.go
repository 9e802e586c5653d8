package model

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// schemaStatements create the tables the models read and write.
// Applied in order; every statement is idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS agent_runs (
    run_id         TEXT PRIMARY KEY,
    user_id        TEXT NOT NULL,
    ts             TIMESTAMPTZ NOT NULL,
    user_intent    TEXT NOT NULL,
    agent_status   TEXT NOT NULL,
    tools_called   JSONB NOT NULL DEFAULT '[]',
    reasoning      JSONB NOT NULL DEFAULT '{}',
    proposal       JSONB,
    confidence     DOUBLE PRECISION,
    evidence_links JSONB NOT NULL DEFAULT '[]',
    agent_response TEXT NOT NULL DEFAULT '',
    error          TEXT,
    duration_ms    BIGINT NOT NULL DEFAULT 0,
    prompt_digest  TEXT NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS idx_agent_runs_user_ts ON agent_runs (user_id, ts DESC)`,
	`CREATE TABLE IF NOT EXISTS market_data_cache (
    id         BIGSERIAL PRIMARY KEY,
    symbol     TEXT NOT NULL,
    ts         TIMESTAMPTZ NOT NULL,
    source     TEXT NOT NULL,
    raw_data   JSONB NOT NULL DEFAULT '{}',
    processed  JSONB NOT NULL DEFAULT '{}',
    expires_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_market_data_cache_symbol_ts ON market_data_cache (symbol, ts DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_market_data_cache_expires ON market_data_cache (expires_at)`,
	`CREATE TABLE IF NOT EXISTS orders (
    id                TEXT PRIMARY KEY,
    user_id           TEXT NOT NULL,
    run_id            TEXT NOT NULL,
    symbol            TEXT NOT NULL,
    side              TEXT NOT NULL CHECK (side IN ('buy', 'sell')),
    quantity          BIGINT NOT NULL CHECK (quantity > 0),
    order_type        TEXT NOT NULL,
    limit_price       NUMERIC(18, 2) NOT NULL,
    stop_price        NUMERIC(18, 2) NOT NULL,
    target_price      NUMERIC(18, 2) NOT NULL,
    confidence        DOUBLE PRECISION NOT NULL,
    reasoning_summary TEXT NOT NULL DEFAULT '',
    evidence_links    JSONB NOT NULL DEFAULT '[]',
    status            TEXT NOT NULL,
    environment       TEXT NOT NULL,
    rejected_reason   TEXT,
    approved_by       TEXT,
    approved_at       TIMESTAMPTZ,
    created_at        TIMESTAMPTZ NOT NULL,
    updated_at        TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
    id            TEXT PRIMARY KEY,
    user_id       TEXT NOT NULL,
    action        TEXT NOT NULL,
    resource_type TEXT NOT NULL,
    resource_id   TEXT NOT NULL,
    metadata      JSONB NOT NULL DEFAULT '{}',
    created_at    TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs (resource_type, resource_id)`,
}

// EnsureSchema creates missing tables and indexes.
func EnsureSchema(ctx context.Context, conn sqlx.SqlConn) error {
	for i, stmt := range schemaStatements {
		if _, err := conn.ExecCtx(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
