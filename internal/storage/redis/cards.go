package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// setReader 读取 Redis 集合的最小接口
type setReader interface {
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
}

// LoadCards 一次性读取授权卡号集合（SMEMBERS key）
func LoadCards(ctx context.Context, r setReader, key string) ([]string, error) {
	ids, err := r.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("load cards from redis set %s: %w", key, err)
	}
	return ids, nil
}
