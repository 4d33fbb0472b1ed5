package checkpoint

import (
	"context"
	"fmt"

	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/internal/database"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Backends 外部连接，按所选类型使用
type Backends struct {
	Redis    redis.UniversalClient
	Database *database.PoolManager
}

// New 根据配置创建存储
func New(ctx context.Context, cfg config.CheckpointConfig, backends Backends, logger *zap.Logger) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(cfg.BaseDir, logger)
	case "redis":
		if backends.Redis == nil {
			return nil, fmt.Errorf("checkpoint type redis requires a redis client")
		}
		return NewRedisStore(backends.Redis, cfg.KeyPrefix, cfg.TTL, logger), nil
	case "database":
		if backends.Database == nil {
			return nil, fmt.Errorf("checkpoint type database requires a database pool")
		}
		return NewSQLStore(ctx, backends.Database, logger)
	default:
		return nil, fmt.Errorf("unsupported checkpoint type %q", cfg.Type)
	}
}
