package agent

import (
	"context"
	"errors"

	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/llm/structured"
	"github.com/BaSui01/ragflow/rag"
	"github.com/BaSui01/ragflow/rag/websearch"
	"github.com/BaSui01/ragflow/types"
	"github.com/BaSui01/ragflow/workflow"
	"go.uber.org/zap"
)

// GraphName 编译后图的名称
const GraphName = "adaptive_rag"

// Dependencies 外部协作者
type Dependencies struct {
	Completer structured.Completer
	Index     rag.Index
	// WebSearch 为 nil 时使用未配置的搜索器，网络搜索节点返回占位文档
	WebSearch *websearch.Searcher
	Logger    *zap.Logger
}

// Options 编排参数
type Options struct {
	TopK                  int
	MultiQueryCount       int
	MaxDecompositionSteps int
	MaxQueryRewrites      int
	ParallelSubQuestions  bool
	HistoryWindow         int

	RouterTemperature     float64
	GeneratorTemperature  float64
	MultiQueryTemperature float64

	// MaxSteps 单次运行的节点执行上限，0 表示按改写次数推导
	MaxSteps int
}

// DefaultOptions 返回默认参数
func DefaultOptions() Options {
	return OptionsFromConfig(config.DefaultConfig())
}

// OptionsFromConfig 从配置构造参数
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		TopK:                  cfg.Retrieval.TopK,
		MultiQueryCount:       cfg.Retrieval.MultiQueryCount,
		MaxDecompositionSteps: cfg.Agent.MaxDecompositionSteps,
		MaxQueryRewrites:      cfg.Agent.MaxQueryRewrites,
		ParallelSubQuestions:  cfg.Agent.ParallelSubQuestions,
		HistoryWindow:         cfg.Agent.HistoryWindow,
		RouterTemperature:     cfg.Agent.RouterTemperature,
		GeneratorTemperature:  cfg.Agent.GeneratorTemperature,
		MultiQueryTemperature: cfg.Agent.MultiQueryTemperature,
	}
}

// StepBudget 每轮改写最多经过 retrieve/grade/generate/grade 等约 8 个节点
func (o Options) StepBudget() int {
	if o.MaxSteps > 0 {
		return o.MaxSteps
	}
	return 8 * (o.MaxQueryRewrites + 2)
}

func (o Options) validate() error {
	var errs []error
	if o.TopK <= 0 {
		errs = append(errs, errors.New("top_k must be positive"))
	}
	if o.MultiQueryCount <= 0 {
		errs = append(errs, errors.New("multi_query_count must be positive"))
	}
	if o.MaxDecompositionSteps <= 0 {
		errs = append(errs, errors.New("max_decomposition_steps must be positive"))
	}
	if o.MaxQueryRewrites < 0 {
		errs = append(errs, errors.New("max_query_rewrites must not be negative"))
	}
	return errors.Join(errs...)
}

// Pipeline 自适应 RAG 编排器
type Pipeline struct {
	completer  structured.Completer
	index      rag.Index
	multiQuery *rag.MultiQueryRetriever
	web        *websearch.Searcher
	logger     *zap.Logger
	opts       Options
	graph      *workflow.CompiledGraph[State, Update]
}

// NewPipeline 构建并编译状态图
func NewPipeline(deps Dependencies, opts Options, compileOpts ...workflow.CompileOption) (*Pipeline, error) {
	if deps.Completer == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "completer is required")
	}
	if deps.Index == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "index is required")
	}
	if err := opts.validate(); err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "invalid pipeline options").WithCause(err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	web := deps.WebSearch
	if web == nil {
		web = websearch.NewSearcher(nil, 0, logger)
	}

	p := &Pipeline{
		completer: deps.Completer,
		index:     deps.Index,
		multiQuery: rag.NewMultiQueryRetriever(deps.Completer, deps.Index, rag.MultiQueryConfig{
			Count:       opts.MultiQueryCount,
			TopK:        opts.TopK,
			Temperature: opts.MultiQueryTemperature,
		}, logger),
		web:    web,
		logger: logger.With(zap.String("component", "pipeline")),
		opts:   opts,
	}

	base := []workflow.CompileOption{
		workflow.WithName(GraphName),
		workflow.WithMaxSteps(opts.StepBudget()),
		workflow.WithLogger(logger),
	}
	graph, err := p.build().Compile(append(base, compileOpts...)...)
	if err != nil {
		return nil, err
	}
	p.graph = graph
	return p, nil
}

func (p *Pipeline) build() *workflow.StateGraph[State, Update] {
	maxRewrites := p.opts.MaxQueryRewrites

	return workflow.NewStateGraph(Merge).
		AddNode(NodeRouteQuery, p.routeQuery).
		AddNode(NodeRetrieve, p.retrieve).
		AddNode(NodeMultiQuery, p.multiQueryRetrieve).
		AddNode(NodeDecompose, p.decomposeAndAnswer).
		AddNode(NodeGradeDocuments, p.gradeDocuments).
		AddNode(NodeRewriteQuery, p.rewriteQuery).
		AddNode(NodeGenerate, p.generate).
		AddNode(NodeGradeGeneration, p.gradeGeneration).
		AddNode(NodeSkipGrading, p.skipGrading).
		AddNode(NodeWebSearch, p.webSearch).
		SetEntryPoint(NodeRouteQuery).
		AddConditionalEdges(NodeRouteQuery, RouteAfterQueryAnalysis, map[string]string{
			NodeRetrieve:   NodeRetrieve,
			NodeMultiQuery: NodeMultiQuery,
			NodeDecompose:  NodeDecompose,
			NodeWebSearch:  NodeWebSearch,
			NodeGenerate:   NodeGenerate,
		}).
		AddEdge(NodeRetrieve, NodeGradeDocuments).
		AddEdge(NodeMultiQuery, NodeGradeDocuments).
		AddConditionalEdges(NodeGradeDocuments, RouteAfterGrading(maxRewrites), map[string]string{
			NodeGenerate:     NodeGenerate,
			NodeWebSearch:    NodeWebSearch,
			NodeRewriteQuery: NodeRewriteQuery,
		}).
		AddEdge(NodeRewriteQuery, NodeRetrieve).
		AddEdge(NodeWebSearch, NodeGenerate).
		AddConditionalEdges(NodeGenerate, RouteToGenerationGrade, generationGradeTargets()).
		AddConditionalEdges(NodeDecompose, RouteToGenerationGrade, generationGradeTargets()).
		AddEdge(NodeSkipGrading, workflow.End).
		AddConditionalEdges(NodeGradeGeneration, RouteAfterGenerationGrade(maxRewrites), map[string]string{
			keyFinish:        workflow.End,
			NodeRewriteQuery: NodeRewriteQuery,
		})
}

func generationGradeTargets() map[string]string {
	return map[string]string{
		NodeGradeGeneration: NodeGradeGeneration,
		NodeSkipGrading:     NodeSkipGrading,
	}
}

// Run 执行一次完整的编排。失败时返回已累积的状态与错误。
func (p *Pipeline) Run(ctx context.Context, initial State, opts ...workflow.RunOption) (State, error) {
	if initial.Question == "" {
		return initial, types.NewError(types.ErrInvalidRequest, "question is required")
	}
	if initial.OriginalQuestion == "" {
		initial.OriginalQuestion = initial.Question
	}
	return p.graph.Invoke(ctx, initial, opts...)
}

// Ask 以空历史执行一次问答
func (p *Pipeline) Ask(ctx context.Context, question string) (State, error) {
	return p.Run(ctx, NewState(question, nil))
}

// Graph 返回编译后的图（拓扑渲染、观察者调试用）
func (p *Pipeline) Graph() *workflow.CompiledGraph[State, Update] { return p.graph }

// Options 返回当前参数
func (p *Pipeline) Options() Options { return p.opts }
