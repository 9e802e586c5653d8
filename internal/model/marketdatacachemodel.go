package model

import (
	"context"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ MarketDataCacheModel = (*customMarketDataCacheModel)(nil)

type (
	// MarketDataCacheModel is an interface to be customized, add more methods here,
	// and implement the added methods in customMarketDataCacheModel.
	MarketDataCacheModel interface {
		marketDataCacheModel
		FindLatestSince(ctx context.Context, symbol string, since time.Time) (*MarketDataCache, error)
		DeleteExpired(ctx context.Context, before time.Time) (int64, error)
	}

	customMarketDataCacheModel struct {
		*defaultMarketDataCacheModel
	}
)

// NewMarketDataCacheModel returns a model for the database table.
func NewMarketDataCacheModel(conn sqlx.SqlConn) MarketDataCacheModel {
	return &customMarketDataCacheModel{
		defaultMarketDataCacheModel: newMarketDataCacheModel(conn),
	}
}

// FindLatestSince returns the newest row for symbol captured at or after since.
// Concurrent writers may leave several rows; the newest wins.
func (m *customMarketDataCacheModel) FindLatestSince(ctx context.Context, symbol string, since time.Time) (*MarketDataCache, error) {
	query := fmt.Sprintf("select %s from %s where symbol = $1 and ts >= $2 order by ts desc, id desc limit 1", marketDataCacheRows, m.table)
	var resp MarketDataCache
	err := m.conn.QueryRowCtx(ctx, &resp, query, symbol, since)
	switch err {
	case nil:
		return &resp, nil
	case sqlx.ErrNotFound:
		return nil, ErrNotFound
	default:
		return nil, err
	}
}

// DeleteExpired removes rows whose expires_at is before the cutoff.
func (m *customMarketDataCacheModel) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := fmt.Sprintf("delete from %s where expires_at < $1", m.table)
	res, err := m.conn.ExecCtx(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
