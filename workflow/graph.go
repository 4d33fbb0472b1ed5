package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/BaSui01/ragflow/types"
)

// End 终止节点标记
const End = "__end__"

// NodeFunc 节点函数：读取状态，返回部分更新
type NodeFunc[S, U any] func(ctx context.Context, state S) (U, error)

// RouteFunc 条件边的路由函数，返回映射表中的键
type RouteFunc[S any] func(state S) string

// MergeFunc 把部分更新合并进状态，不得修改入参
type MergeFunc[S, U any] func(state S, update U) S

type branch[S any] struct {
	route   RouteFunc[S]
	targets map[string]string
}

// StateGraph 状态图构建器
type StateGraph[S, U any] struct {
	merge    MergeFunc[S, U]
	nodes    map[string]NodeFunc[S, U]
	order    []string
	edges    map[string]string
	branches map[string]branch[S]
	entry    string
	errs     []error
}

// NewStateGraph 创建状态图
func NewStateGraph[S, U any](merge MergeFunc[S, U]) *StateGraph[S, U] {
	return &StateGraph[S, U]{
		merge:    merge,
		nodes:    make(map[string]NodeFunc[S, U]),
		edges:    make(map[string]string),
		branches: make(map[string]branch[S]),
	}
}

// AddNode 注册节点
func (g *StateGraph[S, U]) AddNode(name string, fn NodeFunc[S, U]) *StateGraph[S, U] {
	switch {
	case name == "" || name == End:
		g.errs = append(g.errs, fmt.Errorf("invalid node name %q", name))
	case fn == nil:
		g.errs = append(g.errs, fmt.Errorf("node %s: nil function", name))
	case g.nodes[name] != nil:
		g.errs = append(g.errs, fmt.Errorf("duplicate node %s", name))
	default:
		g.nodes[name] = fn
		g.order = append(g.order, name)
	}
	return g
}

// AddEdge 添加无条件边
func (g *StateGraph[S, U]) AddEdge(from, to string) *StateGraph[S, U] {
	if g.hasOutgoing(from) {
		g.errs = append(g.errs, fmt.Errorf("node %s already has an outgoing rule", from))
		return g
	}
	g.edges[from] = to
	return g
}

// AddConditionalEdges 添加条件边。route 的返回值必须是 targets 的键。
func (g *StateGraph[S, U]) AddConditionalEdges(from string, route RouteFunc[S], targets map[string]string) *StateGraph[S, U] {
	if g.hasOutgoing(from) {
		g.errs = append(g.errs, fmt.Errorf("node %s already has an outgoing rule", from))
		return g
	}
	if route == nil || len(targets) == 0 {
		g.errs = append(g.errs, fmt.Errorf("node %s: conditional edge needs a route function and targets", from))
		return g
	}
	copied := make(map[string]string, len(targets))
	for k, v := range targets {
		copied[k] = v
	}
	g.branches[from] = branch[S]{route: route, targets: copied}
	return g
}

// SetEntryPoint 设置入口节点
func (g *StateGraph[S, U]) SetEntryPoint(name string) *StateGraph[S, U] {
	g.entry = name
	return g
}

func (g *StateGraph[S, U]) hasOutgoing(name string) bool {
	_, static := g.edges[name]
	_, cond := g.branches[name]
	return static || cond
}

// Compile 校验并生成可执行图
func (g *StateGraph[S, U]) Compile(opts ...CompileOption) (*CompiledGraph[S, U], error) {
	if err := g.validate(); err != nil {
		return nil, types.NewError(types.ErrGraphInvalid, "graph validation failed").WithCause(err)
	}

	cfg := defaultCompileConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	cg := &CompiledGraph[S, U]{
		name:     cfg.name,
		merge:    g.merge,
		nodes:    make(map[string]NodeFunc[S, U], len(g.nodes)),
		order:    append([]string(nil), g.order...),
		edges:    make(map[string]string, len(g.edges)),
		branches: make(map[string]branch[S], len(g.branches)),
		entry:    g.entry,
		cfg:      cfg,
	}
	for k, v := range g.nodes {
		cg.nodes[k] = v
	}
	for k, v := range g.edges {
		cg.edges[k] = v
	}
	for k, v := range g.branches {
		cg.branches[k] = v
	}

	cfg.logger.Debug("graph compiled")
	return cg, nil
}

func (g *StateGraph[S, U]) validate() error {
	errs := append([]error(nil), g.errs...)

	if g.merge == nil {
		errs = append(errs, errors.New("merge function is nil"))
	}
	if len(g.nodes) == 0 {
		errs = append(errs, errors.New("graph has no nodes"))
	}
	if g.entry == "" {
		errs = append(errs, errors.New("entry node not set"))
	} else if g.nodes[g.entry] == nil {
		errs = append(errs, fmt.Errorf("entry node does not exist: %s", g.entry))
	}

	known := func(name string) bool { return name == End || g.nodes[name] != nil }

	for _, from := range sortedKeys(g.edges) {
		if g.nodes[from] == nil {
			errs = append(errs, fmt.Errorf("edge references non-existent source node: %s", from))
		}
		if to := g.edges[from]; !known(to) {
			errs = append(errs, fmt.Errorf("edge %s -> %s references non-existent target", from, to))
		}
	}
	for _, from := range sortedKeys(g.branches) {
		if g.nodes[from] == nil {
			errs = append(errs, fmt.Errorf("conditional edge references non-existent source node: %s", from))
		}
		b := g.branches[from]
		for _, key := range sortedKeys(b.targets) {
			if to := b.targets[key]; !known(to) {
				errs = append(errs, fmt.Errorf("conditional edge %s[%s] -> %s references non-existent target", from, key, to))
			}
		}
	}
	for _, name := range g.order {
		if !g.hasOutgoing(name) {
			errs = append(errs, fmt.Errorf("node %s has no outgoing edge", name))
		}
	}
	return errors.Join(errs...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
