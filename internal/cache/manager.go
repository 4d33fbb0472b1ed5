package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/ragflow/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrCacheMiss 缓存未命中
	ErrCacheMiss = errors.New("cache miss")
	// ErrClosed 管理器已关闭
	ErrClosed = errors.New("cache manager is closed")
)

// IsCacheMiss 判断是否为缓存未命中错误
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// Config 缓存管理器配置
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int

	// Namespace 作为所有键的前缀，例如 "ragflow:websearch:"。
	// Client() 返回的原始客户端不受影响。
	Namespace string

	// DefaultTTL Set 传入 0 时使用；0 表示不过期
	DefaultTTL time.Duration

	// ConnectTimeout 创建时探活的超时
	ConnectTimeout time.Duration

	// HealthCheckInterval 后台探活间隔，0 关闭
	HealthCheckInterval time.Duration
}

// ConfigFromRedis 由全局 Redis 配置生成管理器配置。
func ConfigFromRedis(rc config.RedisConfig) Config {
	return Config{
		Addr:                rc.Addr,
		Password:            rc.Password,
		DB:                  rc.DB,
		PoolSize:            rc.PoolSize,
		MinIdleConns:        rc.MinIdleConns,
		ConnectTimeout:      5 * time.Second,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Manager 共享 Redis 连接池：网络搜索结果缓存与 redis 检查点存储都从这里取连接。
type Manager struct {
	client *redis.Client
	cfg    Config
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
}

// NewManager 建立连接并探活，失败时不返回半初始化的管理器。
func NewManager(cfg Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", cfg.Addr, err)
	}

	m := &Manager{
		client: client,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "cache"), zap.String("addr", cfg.Addr)),
		stop:   make(chan struct{}),
	}
	if cfg.HealthCheckInterval > 0 {
		go m.watch(cfg.HealthCheckInterval)
	}
	m.logger.Info("redis connected", zap.String("namespace", cfg.Namespace))
	return m, nil
}

// Client 底层客户端（不带命名空间）
func (m *Manager) Client() *redis.Client { return m.client }

func (m *Manager) key(k string) string { return m.cfg.Namespace + k }

func (m *Manager) keys(ks []string) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = m.key(k)
	}
	return out
}

// open 在读锁内执行 fn；关闭后返回 ErrClosed。
func (m *Manager) open(fn func() error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return fn()
}

// Get 读取字符串值，不存在时返回 ErrCacheMiss。
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	var val string
	err := m.open(func() error {
		v, err := m.client.Get(ctx, m.key(key)).Result()
		switch {
		case errors.Is(err, redis.Nil):
			return ErrCacheMiss
		case err != nil:
			m.logger.Warn("get failed", zap.String("key", key), zap.Error(err))
			return fmt.Errorf("cache get %q: %w", key, err)
		}
		val = v
		return nil
	})
	return val, err
}

// Set 写入字符串值，ttl 为 0 时使用 DefaultTTL。
func (m *Manager) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = m.cfg.DefaultTTL
	}
	return m.open(func() error {
		if err := m.client.Set(ctx, m.key(key), value, ttl).Err(); err != nil {
			m.logger.Warn("set failed", zap.String("key", key), zap.Error(err))
			return fmt.Errorf("cache set %q: %w", key, err)
		}
		return nil
	})
}

// GetJSON 读取并反序列化 JSON 值
func (m *Manager) GetJSON(ctx context.Context, key string, dest any) error {
	raw, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("cache value %q is not valid json: %w", key, err)
	}
	return nil
}

// SetJSON 序列化为 JSON 后写入
func (m *Manager) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value %q: %w", key, err)
	}
	return m.Set(ctx, key, string(raw), ttl)
}

// Delete 删除若干键，空参数直接返回。
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return m.open(func() error {
		if err := m.client.Del(ctx, m.keys(keys)...).Err(); err != nil {
			return fmt.Errorf("cache delete: %w", err)
		}
		return nil
	})
}

// Exists 返回存在的键个数
func (m *Manager) Exists(ctx context.Context, keys ...string) (int64, error) {
	var n int64
	err := m.open(func() error {
		c, err := m.client.Exists(ctx, m.keys(keys)...).Result()
		if err != nil {
			return fmt.Errorf("cache exists: %w", err)
		}
		n = c
		return nil
	})
	return n, err
}

// Ping 用于 /health 的 redis 检查
func (m *Manager) Ping(ctx context.Context) error {
	return m.open(func() error { return m.client.Ping(ctx).Err() })
}

// Close 停止后台探活并关闭连接池，可重复调用。
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.stop)
	m.logger.Info("redis connection closed")
	return m.client.Close()
}

func (m *Manager) watch(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), every/2)
			if err := m.Ping(ctx); err != nil && !errors.Is(err, ErrClosed) {
				m.logger.Error("redis health check failed", zap.Error(err))
			}
			cancel()
		}
	}
}
