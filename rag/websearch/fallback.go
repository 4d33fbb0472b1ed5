package websearch

import (
	"context"
	"errors"
	"fmt"

	"github.com/BaSui01/ragflow/types"
	"go.uber.org/zap"
)

const (
	// ErrorSource 说明性文档的来源标记
	ErrorSource = "web_search_error"
	// ResultType 网络搜索文档的类型标记
	ResultType = "web_search"
	// DefaultSource 结果缺少 URL 时的来源
	DefaultSource = "web"

	notAvailableText = "Web search is not available. Please set the web search API key (web_search.api_key) to enable it."
)

// Searcher 把搜索结果转换为文档。提供商缺失、未配置或失败时
// 返回一条说明性文档而不是错误；只有上下文取消会作为错误返回。
type Searcher struct {
	provider   Provider
	maxResults int
	logger     *zap.Logger
}

// NewSearcher 创建 Searcher，provider 可以为 nil
func NewSearcher(provider Provider, maxResults int, logger *zap.Logger) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxResults <= 0 {
		maxResults = 3
	}
	return &Searcher{
		provider:   provider,
		maxResults: maxResults,
		logger:     logger.With(zap.String("component", "web_searcher")),
	}
}

// MaxResults 返回每次搜索的结果上限
func (s *Searcher) MaxResults() int { return s.maxResults }

// SearchDocuments 执行搜索并返回文档
func (s *Searcher) SearchDocuments(ctx context.Context, query string) ([]types.Document, error) {
	if s.provider == nil {
		return []types.Document{errorDocument(notAvailableText)}, nil
	}

	results, err := s.provider.Search(ctx, query, s.maxResults)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, ErrNotConfigured):
		s.logger.Warn("web search not configured", zap.String("provider", s.provider.Name()))
		return []types.Document{errorDocument(notAvailableText)}, nil
	default:
		s.logger.Warn("web search failed", zap.String("provider", s.provider.Name()), zap.Error(err))
		return []types.Document{errorDocument(fmt.Sprintf("Web search failed: %v", err))}, nil
	}

	docs := make([]types.Document, 0, len(results))
	for _, r := range results {
		source := r.URL
		if source == "" {
			source = DefaultSource
		}
		docs = append(docs, types.Document{
			Content: r.Content,
			Metadata: types.Metadata{
				Source: source,
				Title:  r.Title,
				Type:   ResultType,
			},
		})
	}
	return docs, nil
}

func errorDocument(text string) types.Document {
	return types.Document{Content: text, Metadata: types.Metadata{Source: ErrorSource}}
}
