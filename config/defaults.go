// =============================================================================
// 📦 RAGFlow 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:      DefaultServerConfig(),
		LLM:         DefaultLLMConfig(),
		Embedding:   DefaultEmbeddingConfig(),
		Retrieval:   DefaultRetrievalConfig(),
		Agent:       DefaultAgentConfig(),
		WebSearch:   DefaultWebSearchConfig(),
		VectorStore: DefaultVectorStoreConfig(),
		Checkpoint:  DefaultCheckpointConfig(),
		Redis:       DefaultRedisConfig(),
		Database:    DefaultDatabaseConfig(),
		Log:         DefaultLogConfig(),
		Telemetry:   DefaultTelemetryConfig(),
		Metrics:     DefaultMetricsConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:   "openai",
		Model:      "gpt-4o-mini",
		BaseURL:    "https://api.openai.com",
		MaxTokens:  2048,
		Timeout:    2 * time.Minute,
		MaxRetries: 3,
	}
}

// DefaultEmbeddingConfig 返回默认向量化配置
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Model:   "text-embedding-3-small",
		BaseURL: "https://api.openai.com",
		Timeout: 30 * time.Second,
	}
}

// DefaultRetrievalConfig 返回默认检索配置
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:            5,
		MultiQueryCount: 4,
	}
}

// DefaultAgentConfig 返回默认编排配置
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		MaxDecompositionSteps: 4,
		MaxQueryRewrites:      3,
		ParallelSubQuestions:  false,
		HistoryWindow:         10,
		MaxHistoryMessages:    50,
		MaxTraceSteps:         200,
		RouterTemperature:     0.0,
		GeneratorTemperature:  0.3,
		MultiQueryTemperature: 0.7,
	}
}

// DefaultWebSearchConfig 返回默认网络搜索配置
func DefaultWebSearchConfig() WebSearchConfig {
	return WebSearchConfig{
		Provider:     "tavily",
		BaseURL:      "https://api.tavily.com",
		MaxResults:   3,
		RateLimitRPS: 2,
		CacheTTL:     15 * time.Minute,
		CacheBackend: "memory",
		Timeout:      20 * time.Second,
	}
}

// DefaultVectorStoreConfig 返回默认相似度索引配置
func DefaultVectorStoreConfig() VectorStoreConfig {
	return VectorStoreConfig{
		Type:       "memory",
		Table:      "rag_documents",
		Dimensions: 1536, // text-embedding-3-small
	}
}

// DefaultCheckpointConfig 返回默认检查点配置
func DefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{
		Type:      "memory",
		BaseDir:   "./data/checkpoints",
		KeyPrefix: "ragflow:checkpoint:",
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "ragflow",
		Password:        "",
		Name:            "ragflow",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "ragflow",
		SampleRate:   0.1,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "ragflow",
		Path:      "/metrics",
	}
}
