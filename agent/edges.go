package agent

import "github.com/BaSui01/ragflow/types"

// 节点名
const (
	NodeRouteQuery      = "route_query"
	NodeRetrieve        = "retrieve"
	NodeMultiQuery      = "multi_query_retrieve"
	NodeDecompose       = "decompose_and_answer"
	NodeGradeDocuments  = "grade_documents"
	NodeRewriteQuery    = "rewrite_query"
	NodeGenerate        = "generate"
	NodeGradeGeneration = "grade_generation"
	NodeWebSearch       = "web_search_node"
	NodeSkipGrading     = "skip_grading"
)

// 条件边键（终止）
const keyFinish = "finish"

// routeTargets 路由到下一个节点的完整映射
var routeTargets = map[types.Route]string{
	types.RouteVectorstore: NodeRetrieve,
	types.RouteMultiQuery:  NodeMultiQuery,
	types.RouteDecompose:   NodeDecompose,
	types.RouteWebSearch:   NodeWebSearch,
	types.RouteDirect:      NodeGenerate,
}

// RouteAfterQueryAnalysis 路由节点之后的下一个节点。未设置或未知的路由走标准检索；
// 路由节点本身已拒绝非法值，这里只兜底零值。
func RouteAfterQueryAnalysis(s State) string {
	if next, ok := routeTargets[s.Route]; ok {
		return next
	}
	return NodeRetrieve
}

// RouteAfterGrading 文档评分之后：有文档则生成，改写次数用尽则网络搜索，否则改写。
func RouteAfterGrading(maxRewrites int) func(State) string {
	return func(s State) string {
		switch {
		case len(s.Documents) > 0:
			return NodeGenerate
		case s.QueryRewriteCount >= maxRewrites:
			return NodeWebSearch
		default:
			return NodeRewriteQuery
		}
	}
}

// RouteToGenerationGrade direct 与 decompose 路由跳过生成评分。
func RouteToGenerationGrade(s State) string {
	switch s.Route {
	case types.RouteDirect, types.RouteDecompose:
		return NodeSkipGrading
	default:
		return NodeGradeGeneration
	}
}

// RouteAfterGenerationGrade 评分通过则结束；改写次数用尽时接受不完美的答案。
func RouteAfterGenerationGrade(maxRewrites int) func(State) string {
	return func(s State) string {
		switch {
		case !s.WebSearchNeeded:
			return keyFinish
		case s.QueryRewriteCount >= maxRewrites:
			return keyFinish
		default:
			return NodeRewriteQuery
		}
	}
}
