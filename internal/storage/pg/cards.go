package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Querier pgxpool.Pool / pgx.Conn 的查询子集
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// LoadCards 执行配置的查询，读取第一列作为授权卡号
func LoadCards(ctx context.Context, q Querier, query string) ([]string, error) {
	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query cards: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan cards: %w", err)
	}
	return ids, nil
}
