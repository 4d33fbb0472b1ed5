package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/ragflow/rag/websearch"
)

// FakeWebSearch 网络搜索模拟
type FakeWebSearch struct {
	mu      sync.Mutex
	Results []websearch.Result
	Err     error
	queries []string
}

var _ websearch.Provider = (*FakeWebSearch)(nil)

// NewFakeWebSearch 创建返回 results 的搜索
func NewFakeWebSearch(results ...websearch.Result) *FakeWebSearch {
	return &FakeWebSearch{Results: results}
}

func (f *FakeWebSearch) Name() string { return "fake" }

func (f *FakeWebSearch) Search(ctx context.Context, query string, maxResults int) ([]websearch.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.Err != nil {
		return nil, f.Err
	}
	out := f.Results
	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return append([]websearch.Result(nil), out...), nil
}

// Queries 返回收到的查询
func (f *FakeWebSearch) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}
