// Package websearch 提供网络搜索回退能力：Tavily 客户端、速率限制、结果缓存，
// 以及在提供商不可用时生成说明性文档的降级包装。
package websearch

import (
	"context"
	"errors"
)

// Result 一条网络搜索结果
type Result struct {
	Content string `json:"content"`
	URL     string `json:"url"`
	Title   string `json:"title"`
}

// Provider 网络搜索后端
type Provider interface {
	// Search returns at most maxResults results for query.
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
	// Name returns the provider name.
	Name() string
}

// ErrNotConfigured 提供商缺少 API Key 等必要配置
var ErrNotConfigured = errors.New("web search provider is not configured")
