package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/ragflow/types"
)

// FakeIndex 相似度索引模拟：按查询返回预设文档，未预设的查询返回 Default。
type FakeIndex struct {
	mu      sync.Mutex
	byQuery map[string][]types.Document
	Default []types.Document
	Err     error
	queries []string
}

// NewFakeIndex 创建返回 defaults 的索引
func NewFakeIndex(defaults ...types.Document) *FakeIndex {
	return &FakeIndex{byQuery: make(map[string][]types.Document), Default: defaults}
}

// Set 为指定查询预设结果
func (f *FakeIndex) Set(query string, docs ...types.Document) *FakeIndex {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byQuery[query] = docs
	return f
}

func (f *FakeIndex) Search(ctx context.Context, query string, k int) ([]types.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.Err != nil {
		return nil, f.Err
	}
	docs, ok := f.byQuery[query]
	if !ok {
		docs = f.Default
	}
	if k >= 0 && len(docs) > k {
		docs = docs[:k]
	}
	return append([]types.Document(nil), docs...), nil
}

// Queries 返回收到的查询（按顺序）
func (f *FakeIndex) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}
