package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/ragflow/llm/structured"
	"github.com/BaSui01/ragflow/types"
	"go.uber.org/zap"
)

// ContentKeyLength 去重键取内容前缀的字符数。
const ContentKeyLength = 200

const multiQuerySystem = `You write alternative search queries for a document retrieval system.
Given one user question, produce %d different versions of it. Each version should look at the
question from another angle or use other keywords, so that together they recall more relevant passages.

Return only the queries, one per line. No numbering, no bullets, no commentary.`

// MultiQueryConfig 多查询检索配置
type MultiQueryConfig struct {
	Count       int     // 生成的改写查询数量
	TopK        int     // 每个查询的检索数量
	Temperature float64 // 生成改写查询时的采样温度
}

// DefaultMultiQueryConfig 返回默认配置
func DefaultMultiQueryConfig() MultiQueryConfig {
	return MultiQueryConfig{Count: 4, TopK: 5, Temperature: 0.7}
}

// MultiQueryRetriever 从多个角度改写问题，合并去重后的检索结果。
type MultiQueryRetriever struct {
	completer structured.Completer
	index     Index
	config    MultiQueryConfig
	logger    *zap.Logger
}

// NewMultiQueryRetriever 创建多查询检索器
func NewMultiQueryRetriever(completer structured.Completer, index Index, config MultiQueryConfig, logger *zap.Logger) *MultiQueryRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultMultiQueryConfig()
	if config.Count <= 0 {
		config.Count = def.Count
	}
	if config.TopK <= 0 {
		config.TopK = def.TopK
	}
	return &MultiQueryRetriever{
		completer: completer,
		index:     index,
		config:    config,
		logger:    logger.With(zap.String("component", "multi_query_retriever")),
	}
}

// GenerateQueries asks the completer for paraphrases of question. Output lines are
// trimmed, blank lines dropped, and at most Count lines are kept.
func (r *MultiQueryRetriever) GenerateQueries(ctx context.Context, question string) ([]string, error) {
	text, err := r.completer.Complete(ctx, structured.Prompt{
		Name:        "multi_query",
		System:      fmt.Sprintf(multiQuerySystem, r.config.Count),
		User:        question,
		Temperature: r.config.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("generate queries: %w", err)
	}
	return ParseQueryLines(text, r.config.Count), nil
}

// Retrieve searches the original question plus every generated query and returns
// the union, deduplicated by content prefix in first-seen order.
func (r *MultiQueryRetriever) Retrieve(ctx context.Context, question string) ([]types.Document, []string, error) {
	generated, err := r.GenerateQueries(ctx, question)
	if err != nil {
		return nil, nil, err
	}
	queries := append([]string{question}, generated...)

	var all []types.Document
	for _, q := range queries {
		docs, err := r.index.Search(ctx, q, r.config.TopK)
		if err != nil {
			return nil, nil, fmt.Errorf("search %q: %w", q, err)
		}
		all = append(all, docs...)
	}

	unique := DedupByContentPrefix(all)
	r.logger.Debug("multi-query retrieval done",
		zap.Int("queries", len(queries)),
		zap.Int("raw", len(all)),
		zap.Int("unique", len(unique)))
	return unique, queries, nil
}

// ParseQueryLines splits completer output into queries. limit <= 0 means no limit.
func ParseQueryLines(text string, limit int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// ContentKey returns the first ContentKeyLength characters of content.
func ContentKey(content string) string {
	runes := []rune(content)
	if len(runes) > ContentKeyLength {
		runes = runes[:ContentKeyLength]
	}
	return string(runes)
}

// DedupByContentPrefix keeps the first document for every distinct ContentKey.
func DedupByContentPrefix(docs []types.Document) []types.Document {
	seen := make(map[string]struct{}, len(docs))
	out := make([]types.Document, 0, len(docs))
	for _, d := range docs {
		key := ContentKey(d.Content)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, d)
	}
	return out
}
