package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/ragflow/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/BaSui01/ragflow/workflow"

// DefaultMaxSteps 默认步数预算
const DefaultMaxSteps = 100

// NodeError 节点执行失败
type NodeError struct {
	Node string
	Step int
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s failed at step %d: %v", e.Node, e.Step, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// =============================================================================
// 编译选项
// =============================================================================

type compileConfig struct {
	name      string
	maxSteps  int
	logger    *zap.Logger
	tracer    trace.Tracer
	observers []Observer
}

func defaultCompileConfig() compileConfig {
	return compileConfig{
		name:     "graph",
		maxSteps: DefaultMaxSteps,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(instrumentationName),
	}
}

// CompileOption 编译选项
type CompileOption func(*compileConfig)

// WithName 设置图名称（日志与 span 属性）
func WithName(name string) CompileOption {
	return func(c *compileConfig) { c.name = name }
}

// WithMaxSteps 设置单次运行的最大节点执行数
func WithMaxSteps(n int) CompileOption {
	return func(c *compileConfig) {
		if n > 0 {
			c.maxSteps = n
		}
	}
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) CompileOption {
	return func(c *compileConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTracer 设置 tracer，默认使用全局 TracerProvider
func WithTracer(tracer trace.Tracer) CompileOption {
	return func(c *compileConfig) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithObserver 注册对所有运行生效的观察者
func WithObserver(obs Observer) CompileOption {
	return func(c *compileConfig) {
		if obs != nil {
			c.observers = append(c.observers, obs)
		}
	}
}

// RunOption 单次运行选项
type RunOption func(*runConfig)

type runConfig struct {
	observers []Observer
}

// WithRunObserver 注册只对本次运行生效的观察者
func WithRunObserver(obs Observer) RunOption {
	return func(c *runConfig) {
		if obs != nil {
			c.observers = append(c.observers, obs)
		}
	}
}

// =============================================================================
// 执行
// =============================================================================

// CompiledGraph 可执行的状态图。并发安全：运行之间不共享状态。
type CompiledGraph[S, U any] struct {
	name     string
	merge    MergeFunc[S, U]
	nodes    map[string]NodeFunc[S, U]
	order    []string
	edges    map[string]string
	branches map[string]branch[S]
	entry    string
	cfg      compileConfig
}

// Name 返回图名称
func (g *CompiledGraph[S, U]) Name() string { return g.name }

// Nodes 返回按注册顺序排列的节点名
func (g *CompiledGraph[S, U]) Nodes() []string { return append([]string(nil), g.order...) }

// MaxSteps 返回步数预算
func (g *CompiledGraph[S, U]) MaxSteps() int { return g.cfg.maxSteps }

// Invoke 从入口节点运行到 End。出错时同时返回失败前的最后状态。
func (g *CompiledGraph[S, U]) Invoke(ctx context.Context, initial S, opts ...RunOption) (S, error) {
	var rc runConfig
	for _, opt := range opts {
		opt(&rc)
	}
	observers := append(append([]Observer(nil), g.cfg.observers...), rc.observers...)

	ctx, span := g.cfg.tracer.Start(ctx, "workflow.invoke",
		trace.WithAttributes(attribute.String("workflow.name", g.name)))
	defer span.End()

	state := initial
	current := g.entry
	step := 0
	for current != End {
		if err := ctx.Err(); err != nil {
			return state, g.fail(span, err)
		}
		if step >= g.cfg.maxSteps {
			err := types.NewError(types.ErrStepLimit,
				fmt.Sprintf("%s exceeded %d steps (next node %s)", g.name, g.cfg.maxSteps, current))
			return state, g.fail(span, err)
		}
		step++

		update, err := g.runNode(ctx, current, step, state, observers)
		if err != nil {
			return state, g.fail(span, &NodeError{Node: current, Step: step, Err: err})
		}
		state = g.merge(state, update)

		next, err := g.next(current, state)
		if err != nil {
			return state, g.fail(span, err)
		}
		current = next
	}

	span.SetAttributes(attribute.Int("workflow.steps", step))
	return state, nil
}

func (g *CompiledGraph[S, U]) runNode(ctx context.Context, name string, step int, state S, observers []Observer) (U, error) {
	ctx, span := g.cfg.tracer.Start(ctx, "workflow.node",
		trace.WithAttributes(
			attribute.String("workflow.name", g.name),
			attribute.String("workflow.node", name),
			attribute.Int("workflow.step", step),
		))
	defer span.End()

	for _, obs := range observers {
		obs.OnNodeStart(ctx, name, step)
	}
	g.cfg.logger.Debug("node started", zap.String("node", name), zap.Int("step", step))

	start := time.Now()
	update, err := g.nodes[name](ctx, state)
	duration := time.Since(start)

	for _, obs := range observers {
		obs.OnNodeEnd(ctx, name, step, duration, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.cfg.logger.Error("node failed",
			zap.String("node", name),
			zap.Int("step", step),
			zap.Duration("duration", duration),
			zap.Error(err))
		return update, err
	}
	g.cfg.logger.Debug("node finished",
		zap.String("node", name),
		zap.Int("step", step),
		zap.Duration("duration", duration))
	return update, nil
}

// next 解析出边。条件边返回未知键时报 ROUTE_INVALID。
func (g *CompiledGraph[S, U]) next(from string, state S) (string, error) {
	if to, ok := g.edges[from]; ok {
		return to, nil
	}
	b := g.branches[from]
	key := b.route(state)
	to, ok := b.targets[key]
	if !ok {
		return "", types.NewError(types.ErrRouteInvalid,
			fmt.Sprintf("conditional edge from %s returned unknown key %q", from, key))
	}
	return to, nil
}

func (g *CompiledGraph[S, U]) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
