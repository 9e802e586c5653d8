package model

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/stores/builder"
	"github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlc"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
	"github.com/zeromicro/go-zero/core/stringx"
)

var (
	agentRunsFieldNames          = builder.RawFieldNames(&AgentRuns{}, true)
	agentRunsRows                = strings.Join(agentRunsFieldNames, ",")
	agentRunsRowsExpectAutoSet   = strings.Join(stringx.Remove(agentRunsFieldNames, "\"created_at\""), ",")

	cacheAgentRunsRunIdPrefix = "cache:agentRuns:runId:"
)

type (
	agentRunsModel interface {
		Insert(ctx context.Context, data *AgentRuns) (sql.Result, error)
		FindOne(ctx context.Context, runId string) (*AgentRuns, error)
	}

	defaultAgentRunsModel struct {
		sqlc.CachedConn
		table string
	}

	AgentRuns struct {
		RunId         string          `db:"run_id"`
		UserId        string          `db:"user_id"`
		Ts            time.Time       `db:"ts"`
		UserIntent    string          `db:"user_intent"`
		AgentStatus   string          `db:"agent_status"`
		ToolsCalled   string          `db:"tools_called"`
		Reasoning     string          `db:"reasoning"`
		Proposal      sql.NullString  `db:"proposal"`
		Confidence    sql.NullFloat64 `db:"confidence"`
		EvidenceLinks string          `db:"evidence_links"`
		AgentResponse string          `db:"agent_response"`
		Error         sql.NullString  `db:"error"`
		DurationMs    int64           `db:"duration_ms"`
		PromptDigest  string          `db:"prompt_digest"`
		CreatedAt     time.Time       `db:"created_at"`
	}
)

func newAgentRunsModel(conn sqlx.SqlConn, c cache.CacheConf, opts ...cache.Option) *defaultAgentRunsModel {
	return &defaultAgentRunsModel{
		CachedConn: sqlc.NewConn(conn, c, opts...),
		table:      `"public"."agent_runs"`,
	}
}

func (m *defaultAgentRunsModel) FindOne(ctx context.Context, runId string) (*AgentRuns, error) {
	agentRunsRunIdKey := fmt.Sprintf("%s%v", cacheAgentRunsRunIdPrefix, runId)
	var resp AgentRuns
	err := m.QueryRowCtx(ctx, &resp, agentRunsRunIdKey, func(ctx context.Context, conn sqlx.SqlConn, v any) error {
		query := fmt.Sprintf("select %s from %s where run_id = $1 limit 1", agentRunsRows, m.table)
		return conn.QueryRowCtx(ctx, v, query, runId)
	})
	switch err {
	case nil:
		return &resp, nil
	case sqlc.ErrNotFound:
		return nil, ErrNotFound
	default:
		return nil, err
	}
}

// Insert never overwrites: a run is written exactly once.
func (m *defaultAgentRunsModel) Insert(ctx context.Context, data *AgentRuns) (sql.Result, error) {
	agentRunsRunIdKey := fmt.Sprintf("%s%v", cacheAgentRunsRunIdPrefix, data.RunId)
	ret, err := m.ExecCtx(ctx, func(ctx context.Context, conn sqlx.SqlConn) (result sql.Result, err error) {
		query := fmt.Sprintf("insert into %s (%s) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)", m.table, agentRunsRowsExpectAutoSet)
		return conn.ExecCtx(ctx, query, data.RunId, data.UserId, data.Ts, data.UserIntent, data.AgentStatus, data.ToolsCalled, data.Reasoning, data.Proposal, data.Confidence, data.EvidenceLinks, data.AgentResponse, data.Error, data.DurationMs, data.PromptDigest)
	}, agentRunsRunIdKey)
	return ret, err
}

func (m *defaultAgentRunsModel) tableName() string {
	return m.table
}
