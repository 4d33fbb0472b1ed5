package websearch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/ragflow/internal/cache"
	"go.uber.org/zap"
)

// ResultCache 搜索结果缓存
type ResultCache interface {
	Get(ctx context.Context, key string) ([]Result, bool)
	Set(ctx context.Context, key string, results []Result, ttl time.Duration)
}

// CacheKey 由归一化查询与结果数生成缓存键
func CacheKey(provider, query string, maxResults int) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return fmt.Sprintf("websearch:%s:%d:%s", provider, maxResults, hex.EncodeToString(sum[:8]))
}

// =============================================================================
// 内存缓存
// =============================================================================

type memoryItem struct {
	results []Result
	expires time.Time
}

// DefaultMemoryCacheEntries 内存缓存默认容量
const DefaultMemoryCacheEntries = 1024

// MemoryCache 进程内 TTL 缓存，容量有上限。
// 写入新键且已满时先清理过期项，仍满则淘汰最早过期的一项。
type MemoryCache struct {
	mu         sync.Mutex
	items      map[string]memoryItem
	maxEntries int
	now        func() time.Time
}

// NewMemoryCache 创建默认容量的内存缓存
func NewMemoryCache() *MemoryCache {
	return NewBoundedMemoryCache(DefaultMemoryCacheEntries)
}

// NewBoundedMemoryCache 创建最多保存 maxEntries 项的内存缓存，非正数使用默认容量
func NewBoundedMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryCacheEntries
	}
	return &MemoryCache{items: make(map[string]memoryItem), maxEntries: maxEntries, now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if c.now().After(item.expires) {
		delete(c.items, key)
		return nil, false
	}
	return append([]Result(nil), item.results...), true
}

func (c *MemoryCache) Set(_ context.Context, key string, results []Result, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.items[key] = memoryItem{results: append([]Result(nil), results...), expires: now.Add(ttl)}
}

// Len 当前保存的项数（含尚未清理的过期项）
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *MemoryCache) evictLocked(now time.Time) {
	var (
		oldestKey string
		oldest    time.Time
	)
	for k, item := range c.items {
		if now.After(item.expires) {
			delete(c.items, k)
			continue
		}
		if oldestKey == "" || item.expires.Before(oldest) {
			oldestKey, oldest = k, item.expires
		}
	}
	if len(c.items) >= c.maxEntries && oldestKey != "" {
		delete(c.items, oldestKey)
	}
}

// =============================================================================
// Redis 缓存
// =============================================================================

// RedisCache 基于 cache.Manager 的共享缓存。读写失败只记录日志。
type RedisCache struct {
	manager *cache.Manager
	logger  *zap.Logger
}

// NewRedisCache 创建 Redis 结果缓存
func NewRedisCache(manager *cache.Manager, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{manager: manager, logger: logger.With(zap.String("component", "websearch_cache"))}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]Result, bool) {
	var results []Result
	if err := c.manager.GetJSON(ctx, key, &results); err != nil {
		if !cache.IsCacheMiss(err) {
			c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return results, true
}

func (c *RedisCache) Set(ctx context.Context, key string, results []Result, ttl time.Duration) {
	if err := c.manager.SetJSON(ctx, key, results, ttl); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// =============================================================================
// 缓存包装
// =============================================================================

// CachedProvider 在 Provider 外层加结果缓存。只缓存成功且非空的结果。
type CachedProvider struct {
	next     Provider
	cache    ResultCache
	ttl      time.Duration
	onLookup func(hit bool)
}

// CacheOption 缓存包装选项
type CacheOption func(*CachedProvider)

// WithLookupObserver 每次查缓存后回调命中与否（指标用）
func WithLookupObserver(fn func(hit bool)) CacheOption {
	return func(p *CachedProvider) { p.onLookup = fn }
}

// NewCachedProvider 创建缓存包装，ttl <= 0 时直接返回 next
func NewCachedProvider(next Provider, c ResultCache, ttl time.Duration, opts ...CacheOption) Provider {
	if ttl <= 0 || c == nil {
		return next
	}
	p := &CachedProvider{next: next, cache: c, ttl: ttl}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *CachedProvider) Name() string { return p.next.Name() }

func (p *CachedProvider) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	key := CacheKey(p.next.Name(), query, maxResults)
	results, ok := p.cache.Get(ctx, key)
	if p.onLookup != nil {
		p.onLookup(ok)
	}
	if ok {
		return results, nil
	}
	results, err := p.next.Search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}
	if len(results) > 0 {
		p.cache.Set(ctx, key, results, p.ttl)
	}
	return results, nil
}
