package rag

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/BaSui01/ragflow/testutil/fixtures"
	"github.com/BaSui01/ragflow/testutil/mocks"
	"github.com/BaSui01/ragflow/types"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// keywordEmbedder 按固定词表生成词频向量
type keywordEmbedder struct {
	vocab []string
	err   error
}

func (e *keywordEmbedder) Dimensions() int { return len(e.vocab) }

func (e *keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	vec := make([]float32, len(e.vocab))
	lower := strings.ToLower(text)
	for i, w := range e.vocab {
		vec[i] = float32(strings.Count(lower, w))
	}
	return vec, nil
}

func (e *keywordEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// =============================================================================
// MemoryIndex
// =============================================================================

func TestMemoryIndex_TermOverlap(t *testing.T) {
	idx := NewMemoryIndex(nil, nil)
	ctx := context.Background()
	require.NoError(t, idx.AddDocuments(ctx, []types.Document{
		{Content: "Postgres stores vectors with the pgvector extension"},
		{Content: "Redis is an in-memory data store"},
		{Content: "Vectors and embeddings power semantic search in postgres"},
	}))
	assert.Equal(t, 3, idx.Count())

	docs, err := idx.Search(ctx, "postgres vectors", 5)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, d := range docs {
		assert.NotContains(t, d.Content, "Redis")
	}

	docs, err = idx.Search(ctx, "postgres vectors", 1)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestMemoryIndex_NonPositiveK(t *testing.T) {
	idx := NewMemoryIndex(nil, nil)
	require.NoError(t, idx.AddDocuments(context.Background(), fixtures.Passages("a.pdf", 3)))

	docs, err := idx.Search(context.Background(), "retrieval", 0)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestMemoryIndex_Embeddings(t *testing.T) {
	emb := &keywordEmbedder{vocab: []string{"cat", "dog", "fish"}}
	idx := NewMemoryIndex(emb, nil)
	ctx := context.Background()
	require.NoError(t, idx.AddDocuments(ctx, []types.Document{
		{Content: "dog dog dog"},
		{Content: "cat cat"},
		{Content: "fish"},
	}))

	docs, err := idx.Search(ctx, "tell me about the cat", 2)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "cat cat", docs[0].Content)
}

func TestMemoryIndex_EmbedFailure(t *testing.T) {
	idx := NewMemoryIndex(&keywordEmbedder{vocab: []string{"x"}, err: errors.New("quota")}, nil)
	assert.Error(t, idx.AddDocuments(context.Background(), []types.Document{{Content: "x"}}))

	_, err := idx.Search(context.Background(), "x", 1)
	assert.Error(t, err)
}

// =============================================================================
// PGVectorIndex
// =============================================================================

func TestNewPGVectorIndex_RejectsBadTable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPGVectorIndex(mock, &keywordEmbedder{vocab: []string{"a"}}, "docs; DROP TABLE x", nil)
	assert.Error(t, err)
}

func TestPGVectorIndex_EnsureSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	idx, err := NewPGVectorIndex(mock, &keywordEmbedder{vocab: []string{"a", "b", "c"}}, "rag_documents", nil)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("CREATE EXTENSION IF NOT EXISTS vector")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS rag_documents")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, idx.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVectorIndex_AddDocuments(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	idx, err := NewPGVectorIndex(mock, &keywordEmbedder{vocab: []string{"go"}}, "rag_documents", nil)
	require.NoError(t, err)

	insert := regexp.QuoteMeta("INSERT INTO rag_documents (content, metadata, embedding)")
	mock.ExpectExec(insert).
		WithArgs("go is fun", `{"source":"a.pdf","page":0}`, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(insert).
		WithArgs("go rows", `{"source":"b.csv","row":2}`, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, idx.AddDocuments(context.Background(), []types.Document{
		fixtures.PDFPassage("a.pdf", 0, "go is fun"),
		fixtures.CSVRow("b.csv", 2, "go rows"),
	}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVectorIndex_Search(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	idx, err := NewPGVectorIndex(mock, &keywordEmbedder{vocab: []string{"go"}}, "rag_documents", nil)
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{"content", "metadata"}).
		AddRow("first", `{"source":"a.pdf","page":3}`).
		AddRow("second", `{"source":"https://go.dev","title":"Go","type":"web_search"}`)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT content, metadata::text FROM rag_documents ORDER BY embedding <=> $1 LIMIT $2")).
		WithArgs(pgxmock.AnyArg(), 2).
		WillReturnRows(rows)

	docs, err := idx.Search(context.Background(), "go", 2)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "first", docs[0].Content)
	require.NotNil(t, docs[0].Metadata.Page)
	assert.Equal(t, 3, *docs[0].Metadata.Page)
	assert.Equal(t, "Go", docs[1].Metadata.Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVectorIndex_SearchFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	idx, err := NewPGVectorIndex(mock, &keywordEmbedder{vocab: []string{"go"}}, "rag_documents", nil)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection refused"))

	_, err = idx.Search(context.Background(), "go", 2)
	require.Error(t, err)
	assert.Equal(t, types.ErrIndexUnavailable, types.GetErrorCode(err))
}

// =============================================================================
// 多查询检索
// =============================================================================

func TestParseQueryLines(t *testing.T) {
	text := "  first query \n\n second query\n   \nthird\nfourth\nfifth"
	assert.Equal(t, []string{"first query", "second query", "third"}, ParseQueryLines(text, 3))
	assert.Len(t, ParseQueryLines(text, 0), 5)
	assert.Empty(t, ParseQueryLines("\n \n", 4))
}

func TestMultiQueryRetriever_Retrieve(t *testing.T) {
	shared := types.Document{Content: "shared passage", Metadata: types.Metadata{Source: "s.pdf"}}
	index := mocks.NewFakeIndex().
		Set("what is rag", types.Document{Content: "original hit"}, shared).
		Set("define rag", shared, types.Document{Content: "define hit"}).
		Set("rag explained", types.Document{Content: "original hit"})
	completer := mocks.NewScriptedCompleter().On("multi_query", "define rag\n\nrag explained\n")

	r := NewMultiQueryRetriever(completer, index, MultiQueryConfig{Count: 4, TopK: 5, Temperature: 0.7}, nil)
	docs, queries, err := r.Retrieve(context.Background(), "what is rag")
	require.NoError(t, err)

	assert.Equal(t, []string{"what is rag", "define rag", "rag explained"}, queries)
	assert.Equal(t, queries, index.Queries())

	contents := make([]string, len(docs))
	for i, d := range docs {
		contents[i] = d.Content
	}
	assert.Equal(t, []string{"original hit", "shared passage", "define hit"}, contents)

	prompts := completer.PromptsFor("multi_query")
	require.Len(t, prompts, 1)
	assert.Equal(t, 0.7, prompts[0].Temperature)
	assert.Contains(t, prompts[0].System, "4 different versions")
}

func TestMultiQueryRetriever_CapsGeneratedQueries(t *testing.T) {
	index := mocks.NewFakeIndex()
	completer := mocks.NewScriptedCompleter().On("multi_query", "a\nb\nc\nd\ne\nf")

	r := NewMultiQueryRetriever(completer, index, MultiQueryConfig{Count: 2}, nil)
	_, queries, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []string{"q", "a", "b"}, queries)
}

func TestMultiQueryRetriever_Failures(t *testing.T) {
	t.Run("completer", func(t *testing.T) {
		completer := mocks.NewScriptedCompleter().OnError("multi_query", errors.New("upstream"))
		r := NewMultiQueryRetriever(completer, mocks.NewFakeIndex(), MultiQueryConfig{}, nil)
		_, _, err := r.Retrieve(context.Background(), "q")
		assert.Error(t, err)
	})
	t.Run("index", func(t *testing.T) {
		index := mocks.NewFakeIndex()
		index.Err = errors.New("index down")
		completer := mocks.NewScriptedCompleter().On("multi_query", "a")
		r := NewMultiQueryRetriever(completer, index, MultiQueryConfig{}, nil)
		_, _, err := r.Retrieve(context.Background(), "q")
		assert.ErrorContains(t, err, "index down")
	})
}

func TestContentKey(t *testing.T) {
	long := strings.Repeat("é", 250)
	assert.Len(t, []rune(ContentKey(long)), ContentKeyLength)
	assert.Equal(t, "short", ContentKey("short"))
}

func TestDedupByContentPrefix_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		prefixes := rapid.SliceOfN(rapid.SampledFrom([]string{"alpha", "beta", "gamma", "delta"}), 0, 20).Draw(t, "prefixes")
		tails := rapid.SliceOfN(rapid.StringN(0, 5, -1), len(prefixes), len(prefixes)).Draw(t, "tails")

		docs := make([]types.Document, len(prefixes))
		for i, p := range prefixes {
			// 前缀填满 200 字符后追加的内容不影响去重键
			docs[i] = types.Document{Content: fmt.Sprintf("%-200s", p) + tails[i]}
		}

		out := DedupByContentPrefix(docs)

		seen := map[string]bool{}
		var firstSeen []string
		for _, p := range prefixes {
			if !seen[p] {
				seen[p] = true
				firstSeen = append(firstSeen, p)
			}
		}
		if len(out) != len(firstSeen) {
			t.Fatalf("expected %d unique docs, got %d", len(firstSeen), len(out))
		}
		for i, d := range out {
			if strings.TrimSpace(ContentKey(d.Content)) != firstSeen[i] {
				t.Fatalf("position %d: expected %q, got %q", i, firstSeen[i], ContentKey(d.Content))
			}
		}
	})
}

// =============================================================================
// 格式化与引用
// =============================================================================

func TestFormatDocuments(t *testing.T) {
	docs := []types.Document{
		fixtures.PDFPassage("guide.pdf", 0, "Intro text"),
		fixtures.CSVRow("data.csv", 4, "row text"),
		{Content: "both", Metadata: types.Metadata{Source: "x", Page: types.IntPtr(1), Row: types.IntPtr(7)}},
		{Content: "bare"},
	}
	want := "[Document 1] (Source: guide.pdf, page 1)\nIntro text" +
		"\n\n---\n\n[Document 2] (Source: data.csv, row 5)\nrow text" +
		"\n\n---\n\n[Document 3] (Source: x, page 2)\nboth" +
		"\n\n---\n\n[Document 4] (Source: unknown)\nbare"
	assert.Equal(t, want, FormatDocuments(docs))
	assert.Equal(t, NoDocumentsPlaceholder, FormatDocuments(nil))
}

func TestExtractCitations_Dedup(t *testing.T) {
	docs := []types.Document{
		fixtures.PDFPassage("A", 0, "one"),
		fixtures.PDFPassage("A", 0, "two"),
		fixtures.CSVRow("B", 2, "three"),
	}
	got := ExtractCitations(docs)
	require.Len(t, got, 2)
	assert.Equal(t, types.Citation{Source: "A", Page: types.IntPtr(1)}, got[0])
	assert.Equal(t, types.Citation{Source: "B", Row: types.IntPtr(3)}, got[1])
}

func TestExtractCitations_WebMetadata(t *testing.T) {
	got := ExtractCitations([]types.Document{
		{Content: "x", Metadata: types.Metadata{Source: "https://go.dev", Title: "Go", Type: "web_search"}},
		{Content: "y"},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "Go", got[0].Title)
	assert.Equal(t, "web_search", got[0].Type)
	assert.Equal(t, "unknown", got[1].Source)
}

func TestExtractCitations_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 15).Draw(t, "n")
		docs := make([]types.Document, n)
		for i := range docs {
			m := types.Metadata{Source: rapid.SampledFrom([]string{"A", "B", "C"}).Draw(t, "source")}
			if rapid.Bool().Draw(t, "hasPage") {
				m.Page = types.IntPtr(rapid.IntRange(0, 2).Draw(t, "page"))
			}
			docs[i] = types.Document{Content: "c", Metadata: m}
		}

		got := ExtractCitations(docs)
		keys := map[types.CitationKey]bool{}
		for _, c := range got {
			if keys[c.Key()] {
				t.Fatalf("duplicate citation %+v", c)
			}
			keys[c.Key()] = true
			if c.Page != nil && *c.Page < 1 {
				t.Fatalf("citation page not one-indexed: %d", *c.Page)
			}
		}
		for _, d := range docs {
			if !keys[CitationFromMetadata(d.Metadata).Key()] {
				t.Fatalf("missing citation for %+v", d.Metadata)
			}
		}
	})
}
