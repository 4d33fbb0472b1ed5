package agent

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/BaSui01/ragflow/rag/websearch"
	"github.com/BaSui01/ragflow/testutil"
	"github.com/BaSui01/ragflow/testutil/fixtures"
	"github.com/BaSui01/ragflow/testutil/mocks"
	"github.com/BaSui01/ragflow/types"
	"github.com/BaSui01/ragflow/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPipeline(t *testing.T, c *mocks.ScriptedCompleter, idx *mocks.FakeIndex, opts Options, web ...websearch.Provider) *Pipeline {
	t.Helper()
	deps := Dependencies{Completer: c, Index: idx}
	if len(web) > 0 {
		deps.WebSearch = websearch.NewSearcher(web[0], 3, nil)
	}
	p, err := NewPipeline(deps, opts)
	require.NoError(t, err)
	return p
}

// =============================================================================
// 端到端场景
// =============================================================================

func TestPipeline_DirectRouteSkipsRetrievalAndGrading(t *testing.T) {
	c := mocks.NewScriptedCompleter().
		On(TaskRouter, fixtures.RouteReply(types.RouteDirect, "greeting")).
		On(TaskGenerator, "Hello! How can I help you today?")
	idx := mocks.NewFakeIndex(fixtures.Passages("guide.pdf", 3)...)
	p := newTestPipeline(t, c, idx, DefaultOptions())

	history := workflow.NewExecutionHistory("run-1")
	out, err := p.Run(testutil.TestContext(t), NewState("Hello", nil), workflow.WithRunObserver(history))
	require.NoError(t, err)

	assert.Equal(t, types.RouteDirect, out.Route)
	assert.Equal(t, "Hello! How can I help you today?", out.Generation)
	assert.Empty(t, out.Documents)
	assert.Empty(t, out.Citations)
	assert.Empty(t, idx.Queries(), "direct route must not touch the index")
	testutil.AssertStepNames(t, []string{"Query Routing", "Answer Generation", "Grade Skipped"}, out.Steps)
	assert.Equal(t, []string{NodeRouteQuery, NodeGenerate, NodeSkipGrading}, history.Path())

	prompts := c.PromptsFor(TaskGenerator)
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0].User, directContext)
	assert.Zero(t, c.CallCount(TaskHallucinationGrader))
	assert.Zero(t, c.CallCount(TaskAnswerGrader))
}

func TestPipeline_IrrelevantDocumentsTriggerRewrite(t *testing.T) {
	const rewritten = "what is retrieval augmented generation"
	relevant := fixtures.PDFPassage("rag.pdf", 2, "RAG combines retrieval with generation.")

	c := mocks.NewScriptedCompleter().
		On(TaskRouter, fixtures.RouteReply(types.RouteVectorstore, "domain question")).
		On(TaskDocumentGrader,
			fixtures.GradeReply(false), fixtures.GradeReply(false), fixtures.GradeReply(false),
			fixtures.GradeReply(false), fixtures.GradeReply(false),
			fixtures.GradeReply(true)).
		On(TaskRewriter, "  "+rewritten+"\n").
		On(TaskGenerator, "RAG combines retrieval with generation [Source: rag.pdf, Page 3].").
		On(TaskHallucinationGrader, fixtures.GradeReply(true)).
		On(TaskAnswerGrader, fixtures.GradeReply(true))
	idx := mocks.NewFakeIndex(fixtures.Passages("noise.pdf", 5)...).Set(rewritten, relevant)
	p := newTestPipeline(t, c, idx, DefaultOptions())

	history := workflow.NewExecutionHistory("run-2")
	out, err := p.Run(testutil.TestContext(t), NewState("what's rag", nil), workflow.WithRunObserver(history))
	require.NoError(t, err)

	assert.Equal(t, []string{
		NodeRouteQuery, NodeRetrieve, NodeGradeDocuments, NodeRewriteQuery,
		NodeRetrieve, NodeGradeDocuments, NodeGenerate, NodeGradeGeneration,
	}, history.Path())
	assert.Equal(t, []string{"what's rag", rewritten}, idx.Queries())

	grading := out.Steps[2]
	assert.Equal(t, "Document Grading", grading.Name)
	assert.Equal(t, "Relevant: 0, Irrelevant: 5. Web search needed: true", grading.Detail)
	assert.Equal(t, "Query Rewrite (attempt 1)", out.Steps[3].Name)
	assert.Equal(t, fmt.Sprintf("'what's rag' → '%s'", rewritten), out.Steps[3].Detail)

	assert.Equal(t, 1, out.QueryRewriteCount)
	assert.Equal(t, rewritten, out.Question)
	assert.Equal(t, "what's rag", out.OriginalQuestion)
	assert.False(t, out.WebSearchNeeded)
	assert.Equal(t, []types.Document{relevant}, out.Documents)
	require.Len(t, out.Citations, 1)
	assert.Equal(t, "rag.pdf", out.Citations[0].Source)
	assert.Equal(t, 3, *out.Citations[0].Page)

	// 答案相关性检查使用原始问题
	answerPrompts := c.PromptsFor(TaskAnswerGrader)
	require.Len(t, answerPrompts, 1)
	assert.Contains(t, answerPrompts[0].User, "User question: what's rag")
}

func TestPipeline_DecomposeAnswersEachSubQuestion(t *testing.T) {
	subs := []string{"What is BM25?", "What are dense embeddings?", "How do hybrid retrievers combine them?"}

	for _, parallel := range []bool{false, true} {
		t.Run(fmt.Sprintf("parallel=%t", parallel), func(t *testing.T) {
			c := mocks.NewScriptedCompleter().
				On(TaskRouter, fixtures.RouteReply(types.RouteDecompose, "multi-part comparison")).
				On(TaskDecomposer, fixtures.SubQuestionsReply(subs...)).
				Default(TaskSubAnswer, "sub answer").
				On(TaskSynthesis, "Hybrid retrieval merges sparse and dense scores.")
			idx := mocks.NewFakeIndex()
			for i, q := range subs {
				idx.Set(q, fixtures.PDFPassage("ir.pdf", i, q+" explained"))
			}
			opts := DefaultOptions()
			opts.ParallelSubQuestions = parallel
			p := newTestPipeline(t, c, idx, opts)

			out, err := p.Run(testutil.TestContext(t), NewState("Compare BM25, dense and hybrid retrieval", nil))
			require.NoError(t, err)

			assert.Equal(t, subs, out.SubQuestions)
			require.Len(t, out.SubAnswers, 3)
			for i, sa := range out.SubAnswers {
				assert.Equal(t, subs[i], sa.Question)
				assert.Equal(t, "sub answer", sa.Answer)
				require.Len(t, sa.Sources, 1)
				assert.Equal(t, i, *sa.Sources[0].Page)
			}
			assert.Len(t, out.Documents, 3)
			assert.Equal(t, "Hybrid retrieval merges sparse and dense scores.", out.Generation)

			testutil.AssertStepNames(t, []string{
				"Query Routing", "Query Decomposition",
				"Sub-question 1", "Sub-question 2", "Sub-question 3",
				"Synthesis", "Grade Skipped",
			}, out.Steps)
			assert.Zero(t, c.CallCount(TaskDocumentGrader))
			assert.Zero(t, c.CallCount(TaskHallucinationGrader))

			synth := c.PromptsFor(TaskSynthesis)
			require.Len(t, synth, 1)
			first := strings.Index(synth[0].User, subs[0])
			last := strings.Index(synth[0].User, subs[2])
			assert.True(t, first >= 0 && first < last, "synthesis input keeps sub-question order")
		})
	}
}

func TestPipeline_DecomposeTruncatesSubQuestions(t *testing.T) {
	c := mocks.NewScriptedCompleter().
		On(TaskRouter, fixtures.RouteReply(types.RouteDecompose, "complex")).
		On(TaskDecomposer, fixtures.SubQuestionsReply("a?", "b?", "c?", "d?")).
		Default(TaskSubAnswer, "x").
		On(TaskSynthesis, "done")
	opts := DefaultOptions()
	opts.MaxDecompositionSteps = 2
	p := newTestPipeline(t, c, mocks.NewFakeIndex(), opts)

	out, err := p.Run(testutil.TestContext(t), NewState("big question", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"a?", "b?"}, out.SubQuestions)
	assert.Equal(t, 2, c.CallCount(TaskSubAnswer))
}

func TestPipeline_AcceptsImperfectAnswerAtRewriteCeiling(t *testing.T) {
	c := mocks.NewScriptedCompleter().
		On(TaskRouter, fixtures.RouteReply(types.RouteVectorstore, "docs")).
		Default(TaskDocumentGrader, fixtures.GradeReply(true)).
		Default(TaskRewriter, "rewritten").
		Default(TaskGenerator, "an answer").
		Default(TaskHallucinationGrader, fixtures.GradeReply(false)).
		Default(TaskAnswerGrader, fixtures.GradeReply(true))
	idx := mocks.NewFakeIndex(fixtures.Passages("kb.pdf", 1)...)
	opts := DefaultOptions()
	opts.MaxQueryRewrites = 2
	p := newTestPipeline(t, c, idx, opts)

	out, err := p.Run(testutil.TestContext(t), NewState("q", nil))
	require.NoError(t, err)

	assert.Equal(t, 2, out.QueryRewriteCount)
	assert.True(t, out.WebSearchNeeded)
	assert.Equal(t, "an answer", out.Generation)
	assert.Equal(t, 3, c.CallCount(TaskHallucinationGrader))
	assert.Equal(t, 2, c.CallCount(TaskRewriter))
	last := out.Steps[len(out.Steps)-1]
	assert.Equal(t, "Generation Grading", last.Name)
	assert.Equal(t, "Grounded in facts: No | Answers question: Yes", last.Detail)
}

// =============================================================================
// 网络搜索与降级
// =============================================================================

func TestPipeline_WebSearchAfterRewritesExhausted(t *testing.T) {
	c := mocks.NewScriptedCompleter().
		On(TaskRouter, fixtures.RouteReply(types.RouteVectorstore, "docs")).
		Default(TaskDocumentGrader, fixtures.GradeReply(false)).
		Default(TaskRewriter, "better query").
		On(TaskGenerator, "From the web.").
		On(TaskHallucinationGrader, fixtures.GradeReply(true)).
		On(TaskAnswerGrader, fixtures.GradeReply(true))
	idx := mocks.NewFakeIndex(fixtures.Passages("kb.pdf", 2)...)
	web := mocks.NewFakeWebSearch(websearch.Result{Content: "fresh news", URL: "https://example.com/a", Title: "A"})
	opts := DefaultOptions()
	opts.MaxQueryRewrites = 1
	p := newTestPipeline(t, c, idx, opts, web)

	out, err := p.Run(testutil.TestContext(t), NewState("latest release?", nil))
	require.NoError(t, err)

	assert.Equal(t, []string{"better query"}, web.Queries())
	require.Len(t, out.Documents, 1)
	assert.Equal(t, "fresh news", out.Documents[0].Content)
	assert.Equal(t, websearch.ResultType, out.Documents[0].Metadata.Type)
	testutil.AssertHasStep(t, out.Steps, "Web Search")
	require.Len(t, out.Citations, 1)
	assert.Equal(t, "https://example.com/a", out.Citations[0].Source)
}

func TestPipeline_WebSearchRouteWithoutProviderDegrades(t *testing.T) {
	c := mocks.NewScriptedCompleter().
		On(TaskRouter, fixtures.RouteReply(types.RouteWebSearch, "current events")).
		On(TaskGenerator, "Web search is unavailable right now.").
		On(TaskHallucinationGrader, fixtures.GradeReply(true)).
		On(TaskAnswerGrader, fixtures.GradeReply(true))
	p := newTestPipeline(t, c, mocks.NewFakeIndex(), DefaultOptions())

	out, err := p.Run(testutil.TestContext(t), NewState("today's weather", nil))
	require.NoError(t, err)
	require.Len(t, out.Documents, 1)
	assert.Equal(t, websearch.ErrorSource, out.Documents[0].Metadata.Source)
	assert.Equal(t, "Found 1 web results for: 'today's weather'", out.Steps[1].Detail)
}

func TestPipeline_MultiQueryRoute(t *testing.T) {
	shared := fixtures.PDFPassage("kb.pdf", 0, "shared passage")
	c := mocks.NewScriptedCompleter().
		On(TaskRouter, fixtures.RouteReply(types.RouteMultiQuery, "broad")).
		On(TaskMultiQuery, "variant one\n\nvariant two\n").
		Default(TaskDocumentGrader, fixtures.GradeReply(true)).
		On(TaskGenerator, "answer").
		On(TaskHallucinationGrader, fixtures.GradeReply(true)).
		On(TaskAnswerGrader, fixtures.GradeReply(true))
	idx := mocks.NewFakeIndex(shared).
		Set("variant two", shared, fixtures.PDFPassage("kb.pdf", 1, "unique passage"))
	p := newTestPipeline(t, c, idx, DefaultOptions())

	out, err := p.Run(testutil.TestContext(t), NewState("overview", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"overview", "variant one", "variant two"}, idx.Queries())
	assert.Len(t, out.Documents, 2)
	assert.Equal(t, "Generated multiple sub-queries and retrieved 2 unique documents", out.Steps[1].Detail)
	assert.Equal(t, 0.7, c.PromptsFor(TaskMultiQuery)[0].Temperature)
}

// =============================================================================
// 错误传播
// =============================================================================

func TestPipeline_InvalidRouteFailsLoudly(t *testing.T) {
	c := mocks.NewScriptedCompleter().
		On(TaskRouter, `{"route":"graph_db","reasoning":"?"}`)
	idx := mocks.NewFakeIndex()
	p := newTestPipeline(t, c, idx, DefaultOptions())

	out, err := p.Run(testutil.TestContext(t), NewState("q", nil))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrRouteInvalid))

	var nodeErr *workflow.NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, NodeRouteQuery, nodeErr.Node)
	assert.Empty(t, out.Steps)
	assert.Empty(t, idx.Queries())
}

func TestPipeline_IndexFailurePropagates(t *testing.T) {
	c := mocks.NewScriptedCompleter().
		On(TaskRouter, fixtures.RouteReply(types.RouteVectorstore, "docs"))
	idx := mocks.NewFakeIndex()
	idx.Err = types.NewError(types.ErrIndexUnavailable, "connection refused")
	p := newTestPipeline(t, c, idx, DefaultOptions())

	out, err := p.Run(testutil.TestContext(t), NewState("q", nil))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrIndexUnavailable))
	testutil.AssertStepNames(t, []string{"Query Routing"}, out.Steps)
}

func TestPipeline_CompleterFailurePropagates(t *testing.T) {
	boom := errors.New("upstream 500")
	c := mocks.NewScriptedCompleter().
		On(TaskRouter, fixtures.RouteReply(types.RouteDirect, "hi")).
		OnError(TaskGenerator, boom)
	p := newTestPipeline(t, c, mocks.NewFakeIndex(), DefaultOptions())

	_, err := p.Run(testutil.TestContext(t), NewState("hi", nil))
	require.ErrorIs(t, err, boom)
}

func TestPipeline_CancelledContext(t *testing.T) {
	c := mocks.NewScriptedCompleter().
		On(TaskRouter, fixtures.RouteReply(types.RouteDirect, "hi"))
	p := newTestPipeline(t, c, mocks.NewFakeIndex(), DefaultOptions())

	_, err := p.Run(testutil.CancelledContext(), NewState("hi", nil))
	require.Error(t, err)
}

func TestPipeline_RejectsEmptyQuestion(t *testing.T) {
	p := newTestPipeline(t, mocks.NewScriptedCompleter(), mocks.NewFakeIndex(), DefaultOptions())
	_, err := p.Run(testutil.TestContext(t), NewState("", nil))
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}

func TestNewPipeline_Validation(t *testing.T) {
	_, err := NewPipeline(Dependencies{Index: mocks.NewFakeIndex()}, DefaultOptions())
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))

	opts := DefaultOptions()
	opts.TopK = 0
	_, err = NewPipeline(Dependencies{Completer: mocks.NewScriptedCompleter(), Index: mocks.NewFakeIndex()}, opts)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}

func TestPipeline_GraphTopology(t *testing.T) {
	p := newTestPipeline(t, mocks.NewScriptedCompleter(), mocks.NewFakeIndex(), DefaultOptions())
	g := p.Graph()

	assert.Equal(t, GraphName, g.Name())
	assert.ElementsMatch(t, []string{
		NodeRouteQuery, NodeRetrieve, NodeMultiQuery, NodeDecompose, NodeGradeDocuments,
		NodeRewriteQuery, NodeGenerate, NodeGradeGeneration, NodeSkipGrading, NodeWebSearch,
	}, g.Nodes())
	assert.Equal(t, 40, g.MaxSteps())

	chart := g.Mermaid()
	assert.Contains(t, chart, NodeSkipGrading)
	assert.Contains(t, chart, NodeGradeGeneration)
}

func TestPipeline_HistoryWindowInRouterPrompt(t *testing.T) {
	var history []types.ChatMessage
	for i := 0; i < 12; i++ {
		history = append(history, types.ChatMessage{Role: types.RoleUser, Content: fmt.Sprintf("msg-%02d", i)})
	}
	c := mocks.NewScriptedCompleter().
		On(TaskRouter, fixtures.RouteReply(types.RouteDirect, "follow-up")).
		On(TaskGenerator, "ok")
	p := newTestPipeline(t, c, mocks.NewFakeIndex(), DefaultOptions())

	_, err := p.Run(testutil.TestContext(t), NewState("and then?", history))
	require.NoError(t, err)

	router := c.PromptsFor(TaskRouter)[0]
	assert.NotContains(t, router.User, "msg-01")
	assert.Contains(t, router.User, "msg-02")
	assert.Contains(t, router.User, "msg-11")
	assert.Equal(t, 0.0, router.Temperature)
}
