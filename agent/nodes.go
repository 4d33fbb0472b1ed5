package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/ragflow/llm/structured"
	"github.com/BaSui01/ragflow/rag"
	"github.com/BaSui01/ragflow/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🧭 Router
// =============================================================================

func (p *Pipeline) routeQuery(ctx context.Context, s State) (Update, error) {
	history := FormatChatHistory(s.ChatHistory, p.opts.HistoryWindow)

	var decision structured.RouteDecision
	if err := p.completer.CompleteStructured(ctx, routerPrompt(s.Question, history, p.opts.RouterTemperature), &decision); err != nil {
		return Update{}, fmt.Errorf("route decision: %w", err)
	}
	route := decision.Parsed()

	p.logger.Debug("query routed", zap.String("route", string(route)), zap.String("reasoning", decision.Reasoning))
	return Update{
		Route:          &route,
		RouteReasoning: ptr(decision.Reasoning),
		Steps:          step("Query Routing", fmt.Sprintf("Route: %s | Reason: %s", route, decision.Reasoning)),
	}, nil
}

// =============================================================================
// 🔍 Retrieval
// =============================================================================

func (p *Pipeline) retrieve(ctx context.Context, s State) (Update, error) {
	docs, err := p.index.Search(ctx, s.Question, p.opts.TopK)
	if err != nil {
		return Update{}, fmt.Errorf("similarity search: %w", err)
	}
	return Update{
		Documents:    docs,
		SetDocuments: true,
		Steps:        step("Vector Retrieval", fmt.Sprintf("Retrieved %d documents for: '%s'", len(docs), s.Question)),
	}, nil
}

func (p *Pipeline) multiQueryRetrieve(ctx context.Context, s State) (Update, error) {
	docs, queries, err := p.multiQuery.Retrieve(ctx, s.Question)
	if err != nil {
		return Update{}, fmt.Errorf("multi-query retrieval: %w", err)
	}
	p.logger.Debug("multi-query retrieval", zap.Strings("queries", queries), zap.Int("documents", len(docs)))
	return Update{
		Documents:    docs,
		SetDocuments: true,
		Steps: step("Multi-Query Retrieval",
			fmt.Sprintf("Generated multiple sub-queries and retrieved %d unique documents", len(docs))),
	}, nil
}

// =============================================================================
// 🧩 Decomposer
// =============================================================================

func (p *Pipeline) decomposeAndAnswer(ctx context.Context, s State) (Update, error) {
	history := FormatChatHistory(s.ChatHistory, p.opts.HistoryWindow)

	var decomposed structured.DecomposedQuestions
	if err := p.completer.CompleteStructured(ctx, decomposerPrompt(s.Question), &decomposed); err != nil {
		return Update{}, fmt.Errorf("decompose question: %w", err)
	}
	subQuestions := decomposed.SubQuestions
	if len(subQuestions) > p.opts.MaxDecompositionSteps {
		subQuestions = subQuestions[:p.opts.MaxDecompositionSteps]
	}
	steps := step("Query Decomposition",
		fmt.Sprintf("Decomposed into %d sub-questions: %q", len(subQuestions), subQuestions))

	answers := make([]types.SubAnswer, len(subQuestions))
	retrieved := make([][]types.Document, len(subQuestions))
	answerOne := func(ctx context.Context, i int) error {
		q := subQuestions[i]
		docs, err := p.index.Search(ctx, q, p.opts.TopK)
		if err != nil {
			return fmt.Errorf("sub-question %d search: %w", i+1, err)
		}
		prompt := generatorPrompt(TaskSubAnswer, rag.FormatDocuments(docs), q, history, p.opts.GeneratorTemperature)
		answer, err := p.completer.Complete(ctx, prompt)
		if err != nil {
			return fmt.Errorf("sub-question %d answer: %w", i+1, err)
		}
		sources := make([]types.Metadata, len(docs))
		for j, d := range docs {
			sources[j] = d.Metadata
		}
		answers[i] = types.SubAnswer{Question: q, Answer: answer, Sources: sources}
		retrieved[i] = docs
		return nil
	}

	if p.opts.ParallelSubQuestions {
		g, gctx := errgroup.WithContext(ctx)
		for i := range subQuestions {
			g.Go(func() error { return answerOne(gctx, i) })
		}
		if err := g.Wait(); err != nil {
			return Update{}, err
		}
	} else {
		for i := range subQuestions {
			if err := answerOne(ctx, i); err != nil {
				return Update{}, err
			}
		}
	}

	var allDocs []types.Document
	for i, sa := range answers {
		allDocs = append(allDocs, retrieved[i]...)
		steps = append(steps, types.Step{
			Name:   fmt.Sprintf("Sub-question %d", i+1),
			Detail: fmt.Sprintf("Q: %s\nA: %s...", sa.Question, preview(sa.Answer, 200)),
		})
	}

	final, err := p.completer.Complete(ctx, synthesisPrompt(s.Question, answers, p.opts.GeneratorTemperature))
	if err != nil {
		return Update{}, fmt.Errorf("synthesize answer: %w", err)
	}
	steps = append(steps, types.Step{Name: "Synthesis", Detail: "Synthesized sub-answers into final answer"})

	return Update{
		SubQuestions:     subQuestions,
		SubAnswers:       answers,
		SetDecomposition: true,
		Documents:        allDocs,
		SetDocuments:     true,
		Generation:       ptr(final),
		Steps:            steps,
	}, nil
}

// =============================================================================
// ⚖️ Document Grader
// =============================================================================

func (p *Pipeline) gradeDocuments(ctx context.Context, s State) (Update, error) {
	relevant := make([]types.Document, 0, len(s.Documents))
	for i, d := range s.Documents {
		var grade structured.GradeDecision
		if err := p.completer.CompleteStructured(ctx, documentGraderPrompt(d.Content, s.Question), &grade); err != nil {
			return Update{}, fmt.Errorf("grade document %d: %w", i+1, err)
		}
		if grade.Yes() {
			relevant = append(relevant, d)
		}
	}
	needed := len(relevant) == 0

	return Update{
		Documents:       relevant,
		SetDocuments:    true,
		WebSearchNeeded: ptr(needed),
		Steps: step("Document Grading", fmt.Sprintf("Relevant: %d, Irrelevant: %d. Web search needed: %t",
			len(relevant), len(s.Documents)-len(relevant), needed)),
	}, nil
}

// =============================================================================
// ✏️ Query Rewriter
// =============================================================================

func (p *Pipeline) rewriteQuery(ctx context.Context, s State) (Update, error) {
	rewritten, err := p.completer.Complete(ctx, rewriterPrompt(s.Question))
	if err != nil {
		return Update{}, fmt.Errorf("rewrite query: %w", err)
	}
	rewritten = strings.TrimSpace(rewritten)
	attempt := s.QueryRewriteCount + 1

	return Update{
		Question:          ptr(rewritten),
		QueryRewriteCount: ptr(attempt),
		Steps:             step(fmt.Sprintf("Query Rewrite (attempt %d)", attempt), fmt.Sprintf("'%s' → '%s'", s.Question, rewritten)),
	}, nil
}

// =============================================================================
// ✍️ Generator
// =============================================================================

func (p *Pipeline) generate(ctx context.Context, s State) (Update, error) {
	docContext := directContext
	if s.Route != types.RouteDirect {
		docContext = rag.FormatDocuments(s.Documents)
	}
	history := FormatChatHistory(s.ChatHistory, p.opts.HistoryWindow)

	generation, err := p.completer.Complete(ctx, generatorPrompt(TaskGenerator, docContext, s.Question, history, p.opts.GeneratorTemperature))
	if err != nil {
		return Update{}, fmt.Errorf("generate answer: %w", err)
	}
	citations := rag.ExtractCitations(s.Documents)

	return Update{
		Generation:   ptr(generation),
		Citations:    citations,
		SetCitations: true,
		Steps: step("Answer Generation",
			fmt.Sprintf("Generated answer (%d chars) with %d source(s)", len([]rune(generation)), len(citations))),
	}, nil
}

// =============================================================================
// ✅ Generation Grader
// =============================================================================

func (p *Pipeline) gradeGeneration(ctx context.Context, s State) (Update, error) {
	facts := ""
	if len(s.Documents) > 0 {
		facts = rag.FormatDocuments(s.Documents)
	}

	var grounded, answers structured.GradeDecision
	if err := p.completer.CompleteStructured(ctx, hallucinationGraderPrompt(facts, s.Generation), &grounded); err != nil {
		return Update{}, fmt.Errorf("hallucination check: %w", err)
	}
	if err := p.completer.CompleteStructured(ctx, answerGraderPrompt(s.OriginalQuestion, s.Generation), &answers); err != nil {
		return Update{}, fmt.Errorf("answer relevance check: %w", err)
	}

	u := Update{
		Steps: step("Generation Grading", fmt.Sprintf("Grounded in facts: %s | Answers question: %s",
			yesNo(grounded.Yes()), yesNo(answers.Yes()))),
	}
	if !grounded.Yes() || !answers.Yes() {
		u.WebSearchNeeded = ptr(true)
	}
	return u, nil
}

func (p *Pipeline) skipGrading(_ context.Context, s State) (Update, error) {
	return Update{
		Steps: step("Grade Skipped", fmt.Sprintf("Route '%s': skipping hallucination/relevance check", s.Route)),
	}, nil
}

// =============================================================================
// 🌐 Web Search
// =============================================================================

func (p *Pipeline) webSearch(ctx context.Context, s State) (Update, error) {
	found, err := p.web.SearchDocuments(ctx, s.Question)
	if err != nil {
		return Update{}, fmt.Errorf("web search: %w", err)
	}
	docs := make([]types.Document, 0, len(s.Documents)+len(found))
	docs = append(docs, s.Documents...)
	docs = append(docs, found...)

	return Update{
		Documents:    docs,
		SetDocuments: true,
		Steps:        step("Web Search", fmt.Sprintf("Found %d web results for: '%s'", len(found), s.Question)),
	}, nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
