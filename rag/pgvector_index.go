package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/BaSui01/ragflow/llm/embedding"
	"github.com/BaSui01/ragflow/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

// Querier is the subset of *pgxpool.Pool used by PGVectorIndex (pgxmock satisfies it in tests).
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var _ Querier = (*pgxpool.Pool)(nil)

var tableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PGVectorIndex 基于 pgvector 的相似度索引，使用余弦距离排序。
type PGVectorIndex struct {
	db       Querier
	embedder embedding.Embedder
	table    string
	logger   *zap.Logger
}

// NewPGVectorIndex 创建 pgvector 索引。table 只允许标识符字符。
func NewPGVectorIndex(db Querier, embedder embedding.Embedder, table string, logger *zap.Logger) (*PGVectorIndex, error) {
	if db == nil || embedder == nil {
		return nil, fmt.Errorf("pgvector index requires a database and an embedder")
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PGVectorIndex{
		db:       db,
		embedder: embedder,
		table:    table,
		logger:   logger.With(zap.String("component", "pgvector_index"), zap.String("table", table)),
	}, nil
}

// OpenPool 打开 pgx 连接池。
func OpenPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// EnsureSchema 创建 vector 扩展与文档表（幂等）。
func (s *PGVectorIndex) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	content TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}',
	embedding vector(%d) NOT NULL
)`, s.table, s.embedder.Dimensions()),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// AddDocuments 向量化并写入段落。
func (s *PGVectorIndex) AddDocuments(ctx context.Context, docs []types.Document) error {
	if len(docs) == 0 {
		return nil
	}
	contents := make([]string, len(docs))
	for i, d := range docs {
		contents[i] = d.Content
	}
	vecs, err := s.embedder.EmbedDocuments(ctx, contents)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}

	insert := fmt.Sprintf("INSERT INTO %s (content, metadata, embedding) VALUES ($1, $2, $3)", s.table)
	for i, d := range docs {
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		if _, err := s.db.Exec(ctx, insert, d.Content, string(meta), pgvector.NewVector(vecs[i])); err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
	}
	s.logger.Info("documents added to index", zap.Int("count", len(docs)))
	return nil
}

// Search 返回余弦距离最近的 k 条段落。
func (s *PGVectorIndex) Search(ctx context.Context, query string, k int) ([]types.Document, error) {
	if k <= 0 {
		return []types.Document{}, nil
	}
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	sql := fmt.Sprintf("SELECT content, metadata::text FROM %s ORDER BY embedding <=> $1 LIMIT $2", s.table)
	rows, err := s.db.Query(ctx, sql, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, types.NewError(types.ErrIndexUnavailable, "similarity query failed").WithCause(err)
	}
	defer rows.Close()

	docs := make([]types.Document, 0, k)
	for rows.Next() {
		var content, meta string
		if err := rows.Scan(&content, &meta); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		doc := types.Document{Content: content}
		if meta != "" {
			if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewError(types.ErrIndexUnavailable, "similarity query failed").WithCause(err)
	}
	return docs, nil
}
