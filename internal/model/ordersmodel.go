package model

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ OrdersModel = (*customOrdersModel)(nil)

type (
	// OrdersModel is an interface to be customized, add more methods here,
	// and implement the added methods in customOrdersModel.
	OrdersModel interface {
		ordersModel
		TransitionStatus(ctx context.Context, data *Orders, from string) (bool, error)
		ListByUser(ctx context.Context, userId string, limit int) ([]*Orders, error)
	}

	customOrdersModel struct {
		*defaultOrdersModel
	}
)

// NewOrdersModel returns a model for the database table.
func NewOrdersModel(conn sqlx.SqlConn, c cache.CacheConf, opts ...cache.Option) OrdersModel {
	return &customOrdersModel{
		defaultOrdersModel: newOrdersModel(conn, c, opts...),
	}
}

// TransitionStatus writes the decision columns only while the row is still in
// status from. It reports whether a row changed.
func (m *customOrdersModel) TransitionStatus(ctx context.Context, data *Orders, from string) (bool, error) {
	ordersIdKey := fmt.Sprintf("%s%v", cacheOrdersIdPrefix, data.Id)
	ret, err := m.ExecCtx(ctx, func(ctx context.Context, conn sqlx.SqlConn) (sql.Result, error) {
		query := fmt.Sprintf(`update %s
   set status = $2, rejected_reason = $3, approved_by = $4, approved_at = $5, updated_at = $6
 where id = $1 and status = $7`, m.table)
		return conn.ExecCtx(ctx, query, data.Id, data.Status, data.RejectedReason, data.ApprovedBy, data.ApprovedAt, data.UpdatedAt, from)
	}, ordersIdKey)
	if err != nil {
		return false, err
	}
	n, err := ret.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListByUser returns the user's orders, newest first.
func (m *customOrdersModel) ListByUser(ctx context.Context, userId string, limit int) ([]*Orders, error) {
	query := fmt.Sprintf("select %s from %s where user_id = $1 order by created_at desc limit $2", ordersRows, m.table)
	var resp []*Orders
	if err := m.QueryRowsNoCacheCtx(ctx, &resp, query, userId, limit); err != nil {
		return nil, err
	}
	return resp, nil
}
