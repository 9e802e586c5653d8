package model

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/stores/builder"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var (
	auditLogsFieldNames = builder.RawFieldNames(&AuditLogs{}, true)
	auditLogsRows       = strings.Join(auditLogsFieldNames, ",")
)

type (
	auditLogsModel interface {
		Insert(ctx context.Context, data *AuditLogs) (sql.Result, error)
	}

	defaultAuditLogsModel struct {
		conn  sqlx.SqlConn
		table string
	}

	AuditLogs struct {
		Id           string    `db:"id"`
		UserId       string    `db:"user_id"`
		Action       string    `db:"action"`
		ResourceType string    `db:"resource_type"`
		ResourceId   string    `db:"resource_id"`
		Metadata     string    `db:"metadata"`
		CreatedAt    time.Time `db:"created_at"`
	}
)

func newAuditLogsModel(conn sqlx.SqlConn) *defaultAuditLogsModel {
	return &defaultAuditLogsModel{
		conn:  conn,
		table: `"public"."audit_logs"`,
	}
}

func (m *defaultAuditLogsModel) Insert(ctx context.Context, data *AuditLogs) (sql.Result, error) {
	query := fmt.Sprintf("insert into %s (%s) values ($1, $2, $3, $4, $5, $6, $7)", m.table, auditLogsRows)
	return m.conn.ExecCtx(ctx, query, data.Id, data.UserId, data.Action, data.ResourceType, data.ResourceId, data.Metadata, data.CreatedAt)
}

func (m *defaultAuditLogsModel) tableName() string {
	return m.table
}
