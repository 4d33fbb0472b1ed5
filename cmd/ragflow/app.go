package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/BaSui01/ragflow/agent"
	"github.com/BaSui01/ragflow/agent/checkpoint"
	"github.com/BaSui01/ragflow/agent/session"
	"github.com/BaSui01/ragflow/api/handlers"
	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/internal/cache"
	"github.com/BaSui01/ragflow/internal/database"
	"github.com/BaSui01/ragflow/internal/metrics"
	"github.com/BaSui01/ragflow/llm"
	"github.com/BaSui01/ragflow/llm/embedding"
	"github.com/BaSui01/ragflow/llm/providers/anthropic"
	"github.com/BaSui01/ragflow/llm/providers/openaicompat"
	"github.com/BaSui01/ragflow/llm/retry"
	"github.com/BaSui01/ragflow/llm/structured"
	"github.com/BaSui01/ragflow/rag"
	"github.com/BaSui01/ragflow/rag/websearch"
	"github.com/BaSui01/ragflow/types"
	"github.com/BaSui01/ragflow/workflow"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// =============================================================================
// 🧩 组件装配
// =============================================================================

// webCacheNamespace 网络搜索缓存键的前缀，与检查点键区分
const webCacheNamespace = "ragflow:"

// App 持有一次进程生命周期内装配好的全部组件
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Collector

	Pipeline *agent.Pipeline
	Session  *session.Session
	Health   *handlers.HealthHandler

	seeder rag.Loader

	cacheManager *cache.Manager
	dbPool       *database.PoolManager
	vectorPool   *pgxpool.Pool
	store        checkpoint.Store
	stopStats    context.CancelFunc
	closeOnce    sync.Once
}

// appOverrides 测试用的依赖替换
type appOverrides struct {
	provider llm.Provider
	index    rag.Index
	web      websearch.Provider
}

// NewApp 根据配置装配 provider、索引、网络搜索、检查点存储与会话
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	return newApp(ctx, cfg, logger, appOverrides{})
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, ov appOverrides) (app *App, err error) {
	app = &App{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewCollector(cfg.Metrics.Namespace, logger),
		Health:  handlers.NewHealthHandler(Version, logger),
	}
	defer func() {
		if err != nil {
			app.Close()
			app = nil
		}
	}()

	// 1. LLM
	provider := ov.provider
	if provider == nil {
		if provider, err = newProvider(cfg.LLM, logger); err != nil {
			return app, err
		}
	}
	policy := retry.DefaultRetryPolicy()
	policy.MaxRetries = cfg.LLM.MaxRetries
	completer := structured.NewClient(provider,
		structured.WithModel(cfg.LLM.Model),
		structured.WithMaxTokens(cfg.LLM.MaxTokens),
		structured.WithRetryer(retry.NewBackoffRetryer(policy, logger)),
		structured.WithObserver(app.metrics.CompletionObserver()),
		structured.WithLogger(logger),
	)

	// 2. Redis：网络搜索缓存与检查点存储共用一个连接池
	if cfg.WebSearch.CacheBackend == "redis" || cfg.Checkpoint.Type == "redis" {
		cc := cache.ConfigFromRedis(cfg.Redis)
		cc.Namespace = webCacheNamespace
		cc.DefaultTTL = cfg.WebSearch.CacheTTL
		app.cacheManager, err = cache.NewManager(cc, logger)
		if err != nil {
			return app, fmt.Errorf("redis: %w", err)
		}
		redisCheck := handlers.NewPingCheck("redis", app.cacheManager.Ping)
		if cfg.Checkpoint.Type == "redis" {
			app.Health.RegisterCheck(redisCheck)
		} else {
			// 只承载网络搜索缓存，缓存失效时搜索照常进行
			app.Health.RegisterOptionalCheck(redisCheck)
		}
	}

	// 3. 相似度索引
	index := ov.index
	if index == nil {
		if index, err = app.newIndex(ctx); err != nil {
			return app, err
		}
	}

	// 4. 网络搜索
	searcher := websearch.NewSearcher(app.newWebProvider(ov.web), cfg.WebSearch.MaxResults, logger)

	// 5. 编排器
	app.Pipeline, err = agent.NewPipeline(agent.Dependencies{
		Completer: completer,
		Index:     index,
		WebSearch: searcher,
		Logger:    logger,
	}, agent.OptionsFromConfig(cfg), workflow.WithLogger(logger))
	if err != nil {
		return app, fmt.Errorf("build pipeline: %w", err)
	}

	// 6. 检查点存储
	backends := checkpoint.Backends{}
	if app.cacheManager != nil {
		backends.Redis = app.cacheManager.Client()
	}
	if cfg.Checkpoint.Type == "database" {
		if app.dbPool, err = database.Open(cfg.Database, logger); err != nil {
			return app, fmt.Errorf("database: %w", err)
		}
		backends.Database = app.dbPool
		app.Health.RegisterCheck(handlers.NewPingCheck("database", app.dbPool.Ping))
		app.startPoolStats(cfg.Database.Driver)
	}
	if app.store, err = checkpoint.New(ctx, cfg.Checkpoint, backends, logger); err != nil {
		return app, fmt.Errorf("checkpoint store: %w", err)
	}
	app.Health.RegisterCheck(handlers.NewPingCheck("checkpoint", app.pingStore))

	// 7. 会话
	app.Session = session.New(app.Pipeline, app.store, session.Config{
		MaxHistoryMessages: cfg.Agent.MaxHistoryMessages,
		MaxTraceSteps:      cfg.Agent.MaxTraceSteps,
	}, logger,
		session.WithObservers(app.metrics.NodeObserver()),
		session.WithRunRecorder(app.metrics.RecordRun),
	)

	logger.Info("application assembled",
		zap.String("llm_provider", provider.Name()),
		zap.String("vector_store", cfg.VectorStore.Type),
		zap.String("checkpoint", cfg.Checkpoint.Type),
		zap.Int("max_steps", app.Pipeline.Graph().MaxSteps()),
	)
	return app, nil
}

func newProvider(cfg config.LLMConfig, logger *zap.Logger) (llm.Provider, error) {
	switch cfg.Provider {
	case "", "openai":
		return openaicompat.New(openaicompat.Config{
			ProviderName: "openai",
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			Timeout:      cfg.Timeout,
		}, logger), nil
	case "anthropic":
		return anthropic.New(anthropic.Config{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			MaxTokens:    cfg.MaxTokens,
			Timeout:      cfg.Timeout,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// newIndex 构造相似度索引。未配置 embedding key 的内存索引退化为词项重叠打分。
func (a *App) newIndex(ctx context.Context) (rag.Index, error) {
	cfg := a.cfg
	var embedder embedding.Embedder
	if cfg.Embedding.APIKey != "" || cfg.VectorStore.Type == "pgvector" {
		embedder = embedding.NewOpenAIProvider(embedding.OpenAIConfig{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.VectorStore.Dimensions,
			Timeout:    cfg.Embedding.Timeout,
		})
	}

	switch cfg.VectorStore.Type {
	case "pgvector":
		pool, err := rag.OpenPool(ctx, cfg.VectorStore.DSN)
		if err != nil {
			return nil, types.NewError(types.ErrIndexUnavailable, "open pgvector pool").WithCause(err)
		}
		a.vectorPool = pool
		idx, err := rag.NewPGVectorIndex(pool, embedder, cfg.VectorStore.Table, a.logger)
		if err != nil {
			return nil, err
		}
		if err := idx.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		a.Health.RegisterCheck(handlers.NewPingCheck("vector_store", pool.Ping))
		a.seeder = idx
		return idx, nil
	default:
		idx := rag.NewMemoryIndex(embedder, a.logger)
		a.seeder = idx
		return idx, nil
	}
}

// newWebProvider 返回 nil 时 Searcher 产出"不可用"说明文档
func (a *App) newWebProvider(override websearch.Provider) websearch.Provider {
	cfg := a.cfg.WebSearch
	provider := override
	if provider == nil {
		if cfg.APIKey == "" {
			a.logger.Info("web search disabled: no api key configured")
			return nil
		}
		provider = websearch.NewTavilyProvider(websearch.TavilyConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			Timeout:      cfg.Timeout,
			RateLimitRPS: cfg.RateLimitRPS,
		}, a.logger)
	}
	if cfg.CacheTTL <= 0 {
		return provider
	}

	var resultCache websearch.ResultCache = websearch.NewMemoryCache()
	if cfg.CacheBackend == "redis" && a.cacheManager != nil {
		resultCache = websearch.NewRedisCache(a.cacheManager, a.logger)
	}
	return websearch.NewCachedProvider(provider, resultCache, cfg.CacheTTL,
		websearch.WithLookupObserver(a.metrics.CacheLookupObserver("web_search")))
}

// pingStore 读取一个不存在的线程；未找到视为健康
func (a *App) pingStore(ctx context.Context) error {
	_, err := a.store.Load(ctx, "__health__")
	if err == nil || checkpoint.IsNotFound(err) {
		return nil
	}
	return err
}

// startPoolStats 周期性上报数据库连接池指标
func (a *App) startPoolStats(driver string) {
	ctx, cancel := context.WithCancel(context.Background())
	a.stopStats = cancel
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			stats := a.dbPool.Stats()
			a.metrics.RecordDBConnections(driver, stats.OpenConnections, stats.Idle)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Seed 从 JSON 文件（[]types.Document）向索引写入文档
func (a *App) Seed(ctx context.Context, path string) (int, error) {
	if a.seeder == nil {
		return 0, errors.New("configured index does not support seeding")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	var docs []types.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return 0, fmt.Errorf("parse seed file: %w", err)
	}
	if err := a.seeder.AddDocuments(ctx, docs); err != nil {
		return 0, err
	}
	a.logger.Info("index seeded", zap.String("path", path), zap.Int("documents", len(docs)))
	return len(docs), nil
}

// Close 按装配的逆序释放资源
func (a *App) Close() {
	a.closeOnce.Do(a.close)
}

func (a *App) close() {
	if a.stopStats != nil {
		a.stopStats()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close checkpoint store", zap.Error(err))
		}
	}
	// SQL 存储已关闭连接池时这里是空操作
	if a.dbPool != nil {
		_ = a.dbPool.Close()
	}
	if a.vectorPool != nil {
		a.vectorPool.Close()
	}
	if a.cacheManager != nil {
		if err := a.cacheManager.Close(); err != nil {
			a.logger.Warn("close cache manager", zap.Error(err))
		}
	}
}
