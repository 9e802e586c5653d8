package model

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/stores/builder"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
	"github.com/zeromicro/go-zero/core/stringx"
)

var (
	marketDataCacheFieldNames        = builder.RawFieldNames(&MarketDataCache{}, true)
	marketDataCacheRows              = strings.Join(marketDataCacheFieldNames, ",")
	marketDataCacheRowsExpectAutoSet = strings.Join(stringx.Remove(marketDataCacheFieldNames, "\"id\""), ",")
)

type (
	marketDataCacheModel interface {
		Insert(ctx context.Context, data *MarketDataCache) (sql.Result, error)
		FindOne(ctx context.Context, id int64) (*MarketDataCache, error)
	}

	defaultMarketDataCacheModel struct {
		conn  sqlx.SqlConn
		table string
	}

	MarketDataCache struct {
		Id        int64     `db:"id"`
		Symbol    string    `db:"symbol"`
		Ts        time.Time `db:"ts"`
		Source    string    `db:"source"`
		RawData   string    `db:"raw_data"`
		Processed string    `db:"processed"`
		ExpiresAt time.Time `db:"expires_at"`
	}
)

func newMarketDataCacheModel(conn sqlx.SqlConn) *defaultMarketDataCacheModel {
	return &defaultMarketDataCacheModel{
		conn:  conn,
		table: `"public"."market_data_cache"`,
	}
}

func (m *defaultMarketDataCacheModel) FindOne(ctx context.Context, id int64) (*MarketDataCache, error) {
	query := fmt.Sprintf("select %s from %s where id = $1 limit 1", marketDataCacheRows, m.table)
	var resp MarketDataCache
	err := m.conn.QueryRowCtx(ctx, &resp, query, id)
	switch err {
	case nil:
		return &resp, nil
	case sqlx.ErrNotFound:
		return nil, ErrNotFound
	default:
		return nil, err
	}
}

func (m *defaultMarketDataCacheModel) Insert(ctx context.Context, data *MarketDataCache) (sql.Result, error) {
	query := fmt.Sprintf("insert into %s (%s) values ($1, $2, $3, $4, $5, $6)", m.table, marketDataCacheRowsExpectAutoSet)
	return m.conn.ExecCtx(ctx, query, data.Symbol, data.Ts, data.Source, data.RawData, data.Processed, data.ExpiresAt)
}

func (m *defaultMarketDataCacheModel) tableName() string {
	return m.table
}
