package rag

import (
	"context"

	"github.com/BaSui01/ragflow/types"
)

// Index 相似度索引。结果按相似度降序，可能少于 k 条。
type Index interface {
	Search(ctx context.Context, query string, k int) ([]types.Document, error)
}

// Loader 可写入段落的索引（供演示与测试预置数据，摄取管线不在本包范围内）。
type Loader interface {
	AddDocuments(ctx context.Context, docs []types.Document) error
}
