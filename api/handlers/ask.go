package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/BaSui01/ragflow/agent/checkpoint"
	"github.com/BaSui01/ragflow/agent/session"
	"github.com/BaSui01/ragflow/api"
	"github.com/BaSui01/ragflow/types"
	"go.uber.org/zap"
)

// =============================================================================
// 💬 问答与线程 Handler
// =============================================================================

// Conversation 是 Handler 依赖的会话能力，*session.Session 实现该接口
type Conversation interface {
	Invoke(ctx context.Context, question, threadID string) (*session.Result, error)
	History(ctx context.Context, threadID string) (*checkpoint.Checkpoint, error)
	Clear(ctx context.Context, threadID string) error
}

var _ Conversation = (*session.Session)(nil)

// AskHandler 问答处理器
type AskHandler struct {
	conv   Conversation
	logger *zap.Logger
}

// NewAskHandler 创建问答处理器
func NewAskHandler(conv Conversation, logger *zap.Logger) *AskHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AskHandler{conv: conv, logger: logger.With(zap.String("component", "ask_handler"))}
}

// Register 在 mux 上注册问答与线程路由
func (h *AskHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/ask", h.HandleAsk)
	mux.HandleFunc("GET /v1/threads/{id}", h.HandleGetThread)
	mux.HandleFunc("DELETE /v1/threads/{id}", h.HandleDeleteThread)
}

// HandleAsk 处理 POST /v1/ask
// @Summary 问答
// @Description 在线程上运行一次自适应 RAG 编排
// @Tags 问答
// @Accept json
// @Produce json
// @Param request body api.AskRequest true "问答请求"
// @Success 200 {object} Response "问答结果"
// @Failure 400 {object} Response "无效请求"
// @Failure 502 {object} Response "上游或节点失败"
// @Router /v1/ask [post]
func (h *AskHandler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.AskRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "question is required", h.logger)
		return
	}

	threadID := req.ThreadID
	if req.NewThread {
		threadID = checkpoint.NewThreadID()
	}

	res, err := h.conv.Invoke(r.Context(), req.Question, threadID)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, toAskResponse(res))
}

// HandleGetThread 处理 GET /v1/threads/{id}
// @Summary 线程历史
// @Tags 问答
// @Produce json
// @Param id path string true "线程 ID"
// @Success 200 {object} Response "线程历史"
// @Failure 404 {object} Response "线程不存在"
// @Router /v1/threads/{id} [get]
func (h *AskHandler) HandleGetThread(w http.ResponseWriter, r *http.Request) {
	cp, err := h.conv.History(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, toThreadResponse(cp))
}

// HandleDeleteThread 处理 DELETE /v1/threads/{id}
// @Summary 清除线程
// @Tags 问答
// @Param id path string true "线程 ID"
// @Success 204 "已清除"
// @Router /v1/threads/{id} [delete]
func (h *AskHandler) HandleDeleteThread(w http.ResponseWriter, r *http.Request) {
	if err := h.conv.Clear(r.Context(), r.PathValue("id")); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toAskResponse(res *session.Result) api.AskResponse {
	st := res.State
	out := api.AskResponse{
		ThreadID:          res.ThreadID,
		RunID:             res.RunID,
		Answer:            st.Generation,
		Route:             string(st.Route),
		RouteReasoning:    st.RouteReasoning,
		Citations:         nonNil(st.Citations),
		SubQuestions:      nonNil(st.SubQuestions),
		SubAnswers:        nonNil(st.SubAnswers),
		Steps:             nonNil(st.Steps),
		QueryRewriteCount: st.QueryRewriteCount,
	}
	if res.Execution != nil {
		out.Path = res.Execution.Path()
		out.DurationMS = res.Execution.Duration.Milliseconds()
	}
	return out
}

func toThreadResponse(cp *checkpoint.Checkpoint) api.ThreadResponse {
	out := api.ThreadResponse{
		ThreadID:     cp.ThreadID,
		CheckpointID: cp.ID,
		Version:      cp.Version,
		ChatHistory:  nonNil(cp.ChatHistory),
		UpdatedAt:    cp.CreatedAt,
	}
	if cp.LastRun != nil {
		out.LastSteps = cp.LastRun.Steps
		out.LastRoute = string(cp.LastRun.Route)
	}
	return out
}

// nonNil 让空切片序列化为 [] 而不是 null
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
