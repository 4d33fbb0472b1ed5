package api

import (
	"time"

	"github.com/BaSui01/ragflow/types"
)

// =============================================================================
// 问答类型
// =============================================================================

// AskRequest 代表一次问答请求。
// @Description 问答请求结构
type AskRequest struct {
	// 用户问题
	Question string `json:"question" example:"What does the handbook say about refunds?" binding:"required"`
	// 会话线程 ID，为空时使用默认线程
	ThreadID string `json:"thread_id,omitempty" example:"support-42"`
	// 为 true 时忽略 thread_id 并创建新线程
	NewThread bool `json:"new_thread,omitempty"`
}

// AskResponse 代表一次问答结果。
// @Description 问答结果结构
type AskResponse struct {
	ThreadID          string            `json:"thread_id"`
	RunID             string            `json:"run_id"`
	Answer            string            `json:"answer"`
	Route             string            `json:"route"`
	RouteReasoning    string            `json:"route_reasoning,omitempty"`
	Citations         []types.Citation  `json:"citations"`
	SubQuestions      []string          `json:"sub_questions"`
	SubAnswers        []types.SubAnswer `json:"sub_answers"`
	Steps             []types.Step      `json:"steps"`
	QueryRewriteCount int               `json:"query_rewrite_count"`
	// 实际经过的节点序列
	Path []string `json:"path,omitempty"`
	// 运行耗时（毫秒）
	DurationMS int64 `json:"duration_ms"`
}

// =============================================================================
// 线程类型
// =============================================================================

// ThreadResponse 代表线程的持久化状态。
// @Description 线程历史结构
type ThreadResponse struct {
	ThreadID     string              `json:"thread_id"`
	CheckpointID string              `json:"checkpoint_id"`
	Version      int                 `json:"version"`
	ChatHistory  []types.ChatMessage `json:"chat_history"`
	// 最近一次运行的轨迹
	LastSteps []types.Step `json:"last_steps,omitempty"`
	LastRoute string       `json:"last_route,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}
