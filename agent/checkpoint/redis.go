package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore 每线程一个字符串键：<prefix><thread_id>
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore 创建 Redis 存储。ttl 为 0 表示不过期；client 的生命周期由调用方管理。
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With(zap.String("store", "redis_checkpoint")),
	}
}

func (s *RedisStore) key(threadID string) string { return s.prefix + threadID }

func (s *RedisStore) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	if err := ValidateThreadID(threadID); err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, s.key(threadID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound(threadID)
	}
	if err != nil {
		return nil, storeError("redis get", err)
	}
	return decode(data)
}

func (s *RedisStore) Save(ctx context.Context, cp *Checkpoint) error {
	if err := prepare(cp); err != nil {
		return err
	}
	data, err := encode(cp)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(cp.ThreadID), data, s.ttl).Err(); err != nil {
		return storeError("redis set", err)
	}

	s.logger.Debug("checkpoint saved to redis",
		zap.String("thread_id", cp.ThreadID),
		zap.String("checkpoint_id", cp.ID))
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, threadID string) error {
	if err := ValidateThreadID(threadID); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.key(threadID)).Err(); err != nil {
		return storeError("redis del", err)
	}
	return nil
}

func (s *RedisStore) Close() error { return nil }
