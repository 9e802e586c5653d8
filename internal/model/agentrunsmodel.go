package model

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ AgentRunsModel = (*customAgentRunsModel)(nil)

type (
	// AgentRunsModel is an interface to be customized, add more methods here,
	// and implement the added methods in customAgentRunsModel.
	AgentRunsModel interface {
		agentRunsModel
		ListByUser(ctx context.Context, userId string, limit int) ([]*AgentRuns, error)
		Stats(ctx context.Context, since time.Time) (*AgentRunStats, error)
	}

	customAgentRunsModel struct {
		*defaultAgentRunsModel
	}

	// AgentRunStats aggregates the agent_runs table.
	AgentRunStats struct {
		TotalRuns         int64           `db:"total_runs"`
		RunsWithProposals int64           `db:"runs_with_proposals"`
		AvgConfidence     sql.NullFloat64 `db:"avg_confidence"`
		UniqueUsers       int64           `db:"unique_users"`
	}
)

// NewAgentRunsModel returns a model for the database table.
func NewAgentRunsModel(conn sqlx.SqlConn, c cache.CacheConf, opts ...cache.Option) AgentRunsModel {
	return &customAgentRunsModel{
		defaultAgentRunsModel: newAgentRunsModel(conn, c, opts...),
	}
}

// ListByUser returns the user's runs, newest first.
func (m *customAgentRunsModel) ListByUser(ctx context.Context, userId string, limit int) ([]*AgentRuns, error) {
	query := fmt.Sprintf("select %s from %s where user_id = $1 order by ts desc limit $2", agentRunsRows, m.table)
	var resp []*AgentRuns
	if err := m.QueryRowsNoCacheCtx(ctx, &resp, query, userId, limit); err != nil {
		return nil, err
	}
	return resp, nil
}

// Stats counts runs, proposals and distinct users at or after since; a zero
// since covers the whole table. Confidence is only stored for runs that
// carry a proposal.
func (m *customAgentRunsModel) Stats(ctx context.Context, since time.Time) (*AgentRunStats, error) {
	query := fmt.Sprintf(`select count(*) as total_runs,
       count(proposal) as runs_with_proposals,
       avg(confidence) as avg_confidence,
       count(distinct user_id) as unique_users
  from %s`, m.table)
	var args []any
	if !since.IsZero() {
		query += " where ts >= $1"
		args = append(args, since)
	}
	var resp AgentRunStats
	if err := m.QueryRowNoCacheCtx(ctx, &resp, query, args...); err != nil {
		return nil, err
	}
	return &resp, nil
}
