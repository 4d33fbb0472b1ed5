package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/BaSui01/ragflow/llm/embedding"
	"github.com/BaSui01/ragflow/types"
	"go.uber.org/zap"
)

type memoryEntry struct {
	doc       types.Document
	embedding []float32
	terms     map[string]struct{}
}

// MemoryIndex 内存索引（用于测试和小规模应用）
type MemoryIndex struct {
	mu       sync.RWMutex
	entries  []memoryEntry
	embedder embedding.Embedder
	logger   *zap.Logger
}

// NewMemoryIndex 创建内存索引。embedder 为 nil 时使用词项重叠打分。
func NewMemoryIndex(embedder embedding.Embedder, logger *zap.Logger) *MemoryIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryIndex{
		embedder: embedder,
		logger:   logger.With(zap.String("component", "memory_index")),
	}
}

// AddDocuments 添加文档
func (s *MemoryIndex) AddDocuments(ctx context.Context, docs []types.Document) error {
	var vecs [][]float32
	if s.embedder != nil && len(docs) > 0 {
		contents := make([]string, len(docs))
		for i, d := range docs {
			contents[i] = d.Content
		}
		var err error
		vecs, err = s.embedder.EmbedDocuments(ctx, contents)
		if err != nil {
			return fmt.Errorf("embed documents: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range docs {
		e := memoryEntry{doc: d, terms: termSet(d.Content)}
		if vecs != nil {
			e.embedding = vecs[i]
		}
		s.entries = append(s.entries, e)
	}

	s.logger.Info("documents added to index",
		zap.Int("count", len(docs)),
		zap.Int("total", len(s.entries)))
	return nil
}

// Count 返回文档数量
func (s *MemoryIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

type scored struct {
	doc   types.Document
	score float64
}

// Search 返回得分最高的 k 条；得分相同时保持插入顺序。
func (s *MemoryIndex) Search(ctx context.Context, query string, k int) ([]types.Document, error) {
	if k <= 0 {
		return []types.Document{}, nil
	}

	var queryVec []float32
	if s.embedder != nil {
		var err error
		queryVec, err = s.embedder.EmbedQuery(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
	}
	queryTerms := termSet(query)

	s.mu.RLock()
	results := make([]scored, 0, len(s.entries))
	for _, e := range s.entries {
		var score float64
		if queryVec != nil && e.embedding != nil {
			score = cosineSimilarity(queryVec, e.embedding)
		} else {
			score = termOverlap(queryTerms, e.terms)
			if score == 0 {
				continue
			}
		}
		results = append(results, scored{doc: e.doc, score: score})
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })
	if k > len(results) {
		k = len(results)
	}

	out := make([]types.Document, k)
	for i := 0; i < k; i++ {
		out[i] = results[i].doc
	}
	return out, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// termOverlap 查询词项命中比例，按文档长度轻微归一。
func termOverlap(query, doc map[string]struct{}) float64 {
	if len(query) == 0 || len(doc) == 0 {
		return 0
	}
	hits := 0
	for t := range query {
		if _, ok := doc[t]; ok {
			hits++
		}
	}
	if hits == 0 {
		return 0
	}
	return float64(hits) / float64(len(query)) / math.Log2(float64(len(doc))+2)
}

func termSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 || stopWords[f] {
			continue
		}
		set[f] = struct{}{}
	}
	return set
}

var stopWords = map[string]bool{
	"the": true, "is": true, "are": true, "of": true, "and": true, "or": true, "to": true,
	"in": true, "on": true, "for": true, "what": true, "how": true, "does": true, "do": true,
	"an": true, "it": true, "this": true, "that": true, "with": true, "be": true, "as": true,
}
