package cards

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/taoyao-code/access-gateway/internal/access"
	cfgpkg "github.com/taoyao-code/access-gateway/internal/config"
	"github.com/taoyao-code/access-gateway/internal/storage/pg"
	redisstorage "github.com/taoyao-code/access-gateway/internal/storage/redis"
)

// Load 按 access.source 加载授权卡集合，只在启动时调用一次；
// 外部存储连接用完即关闭，运行期间集合不再变化。
func Load(ctx context.Context, cfg *cfgpkg.Config, logger *zap.Logger) (*access.CardSet, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		ids []string
		err error
	)
	switch cfg.Access.Source {
	case cfgpkg.SourceConfig, "":
		ids = cfg.Access.Cards
	case cfgpkg.SourceRedis:
		ids, err = fromRedis(ctx, cfg)
	case cfgpkg.SourcePostgres:
		ids, err = fromPostgres(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown card source %q", cfg.Access.Source)
	}
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%s source: %w", cfg.Access.Source, cfgpkg.ErrNoCards)
	}

	set := access.NewCardSet(ids)
	logger.Info("authorized cards loaded", zap.String("source", cfg.Access.Source), zap.Int("count", set.Len()))
	return set, nil
}

func fromRedis(ctx context.Context, cfg *cfgpkg.Config) ([]string, error) {
	client, err := redisstorage.NewClient(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return redisstorage.LoadCards(ctx, client, cfg.Access.RedisKey)
}

func fromPostgres(ctx context.Context, cfg *cfgpkg.Config, logger *zap.Logger) ([]string, error) {
	pool, err := pg.NewPool(ctx, cfg.Database, logger.Named("pg"))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	return pg.LoadCards(ctx, pool, cfg.Access.CardQuery)
}
