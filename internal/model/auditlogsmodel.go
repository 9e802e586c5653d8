package model

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ AuditLogsModel = (*customAuditLogsModel)(nil)

type (
	// AuditLogsModel is an interface to be customized, add more methods here,
	// and implement the added methods in customAuditLogsModel.
	AuditLogsModel interface {
		auditLogsModel
		ListByResource(ctx context.Context, resourceType, resourceId string) ([]*AuditLogs, error)
	}

	customAuditLogsModel struct {
		*defaultAuditLogsModel
	}
)

// NewAuditLogsModel returns a model for the database table.
func NewAuditLogsModel(conn sqlx.SqlConn) AuditLogsModel {
	return &customAuditLogsModel{
		defaultAuditLogsModel: newAuditLogsModel(conn),
	}
}

// ListByResource returns the audit trail of one resource, oldest first.
func (m *customAuditLogsModel) ListByResource(ctx context.Context, resourceType, resourceId string) ([]*AuditLogs, error) {
	query := fmt.Sprintf("select %s from %s where resource_type = $1 and resource_id = $2 order by created_at", auditLogsRows, m.table)
	var resp []*AuditLogs
	if err := m.conn.QueryRowsCtx(ctx, &resp, query, resourceType, resourceId); err != nil {
		return nil, err
	}
	return resp, nil
}
