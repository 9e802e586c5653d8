package model

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/stores/builder"
	"github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlc"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var (
	ordersFieldNames = builder.RawFieldNames(&Orders{}, true)
	ordersRows       = strings.Join(ordersFieldNames, ",")

	cacheOrdersIdPrefix = "cache:orders:id:"
)

type (
	ordersModel interface {
		Insert(ctx context.Context, data *Orders) (sql.Result, error)
		FindOne(ctx context.Context, id string) (*Orders, error)
	}

	defaultOrdersModel struct {
		sqlc.CachedConn
		table string
	}

	Orders struct {
		Id               string          `db:"id"`
		UserId           string          `db:"user_id"`
		RunId            string          `db:"run_id"`
		Symbol           string          `db:"symbol"`
		Side             string          `db:"side"`
		Quantity         int64           `db:"quantity"`
		OrderType        string          `db:"order_type"`
		LimitPrice       decimal.Decimal `db:"limit_price"`
		StopPrice        decimal.Decimal `db:"stop_price"`
		TargetPrice      decimal.Decimal `db:"target_price"`
		Confidence       float64         `db:"confidence"`
		ReasoningSummary string          `db:"reasoning_summary"`
		EvidenceLinks    string          `db:"evidence_links"`
		Status           string          `db:"status"`
		Environment      string          `db:"environment"`
		RejectedReason   sql.NullString  `db:"rejected_reason"`
		ApprovedBy       sql.NullString  `db:"approved_by"`
		ApprovedAt       sql.NullTime    `db:"approved_at"`
		CreatedAt        time.Time       `db:"created_at"`
		UpdatedAt        time.Time       `db:"updated_at"`
	}
)

func newOrdersModel(conn sqlx.SqlConn, c cache.CacheConf, opts ...cache.Option) *defaultOrdersModel {
	return &defaultOrdersModel{
		CachedConn: sqlc.NewConn(conn, c, opts...),
		table:      `"public"."orders"`,
	}
}

func (m *defaultOrdersModel) FindOne(ctx context.Context, id string) (*Orders, error) {
	ordersIdKey := fmt.Sprintf("%s%v", cacheOrdersIdPrefix, id)
	var resp Orders
	err := m.QueryRowCtx(ctx, &resp, ordersIdKey, func(ctx context.Context, conn sqlx.SqlConn, v any) error {
		query := fmt.Sprintf("select %s from %s where id = $1 limit 1", ordersRows, m.table)
		return conn.QueryRowCtx(ctx, v, query, id)
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

func (m *defaultOrdersModel) Insert(ctx context.Context, data *Orders) (sql.Result, error) {
	ordersIdKey := fmt.Sprintf("%s%v", cacheOrdersIdPrefix, data.Id)
	ret, err := m.ExecCtx(ctx, func(ctx context.Context, conn sqlx.SqlConn) (result sql.Result, err error) {
		query := fmt.Sprintf("insert into %s (%s) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)", m.table, ordersRows)
		return conn.ExecCtx(ctx, query, data.Id, data.UserId, data.RunId, data.Symbol, data.Side, data.Quantity, data.OrderType, data.LimitPrice, data.StopPrice, data.TargetPrice, data.Confidence, data.ReasoningSummary, data.EvidenceLinks, data.Status, data.Environment, data.RejectedReason, data.ApprovedBy, data.ApprovedAt, data.CreatedAt, data.UpdatedAt)
	}, ordersIdKey)
	return ret, err
}

func (m *defaultOrdersModel) tableName() string {
	return m.table
}
