package agent

import (
	"github.com/BaSui01/ragflow/types"
	"github.com/BaSui01/ragflow/workflow"
)

// State 贯穿一次运行的共享状态
type State struct {
	Question          string              `json:"question"`
	OriginalQuestion  string              `json:"original_question"`
	ChatHistory       []types.ChatMessage `json:"chat_history"`
	Documents         []types.Document    `json:"documents"`
	Generation        string              `json:"generation"`
	Route             types.Route         `json:"route,omitempty"`
	RouteReasoning    string              `json:"route_reasoning,omitempty"`
	QueryRewriteCount int                 `json:"query_rewrite_count"`
	WebSearchNeeded   bool                `json:"web_search_needed"`
	Citations         []types.Citation    `json:"citations"`
	SubQuestions      []string            `json:"sub_questions"`
	SubAnswers        []types.SubAnswer   `json:"sub_answers"`
	Steps             []types.Step        `json:"steps"`
}

// NewState 为一个新问题创建初始状态。history 由会话层持有，这里只做拷贝。
func NewState(question string, history []types.ChatMessage) State {
	return State{
		Question:         question,
		OriginalQuestion: question,
		ChatHistory:      append([]types.ChatMessage(nil), history...),
		Documents:        []types.Document{},
		Citations:        []types.Citation{},
		SubQuestions:     []string{},
		SubAnswers:       []types.SubAnswer{},
		Steps:            []types.Step{},
	}
}

// Update 节点返回的部分更新。nil 字段表示不修改；Steps 总是追加。
type Update struct {
	Question          *string
	Documents         []types.Document
	SetDocuments      bool
	Generation        *string
	Route             *types.Route
	RouteReasoning    *string
	QueryRewriteCount *int
	WebSearchNeeded   *bool
	Citations         []types.Citation
	SetCitations      bool
	SubQuestions      []string
	SubAnswers        []types.SubAnswer
	SetDecomposition  bool
	Steps             []types.Step
}

var (
	appendSteps   = workflow.AppendReducer[types.Step]()
	maxRewrites   = workflow.MaxReducer[int]()
	lastString    = workflow.Optional(workflow.LastValueReducer[string]())
	lastBool      = workflow.Optional(workflow.LastValueReducer[bool]())
	lastRoute     = workflow.Optional(workflow.LastValueReducer[types.Route]())
	lastRewriteNo = workflow.Optional(maxRewrites)
)

// Merge 合并部分更新，返回新状态，不修改入参
func Merge(s State, u Update) State {
	out := s
	out.Question = *lastString(&s.Question, u.Question)
	out.Generation = *lastString(&s.Generation, u.Generation)
	out.RouteReasoning = *lastString(&s.RouteReasoning, u.RouteReasoning)
	out.Route = *lastRoute(&s.Route, u.Route)
	out.WebSearchNeeded = *lastBool(&s.WebSearchNeeded, u.WebSearchNeeded)
	out.QueryRewriteCount = *lastRewriteNo(&s.QueryRewriteCount, u.QueryRewriteCount)

	if u.SetDocuments {
		out.Documents = append([]types.Document{}, u.Documents...)
	}
	if u.SetCitations {
		out.Citations = append([]types.Citation{}, u.Citations...)
	}
	if u.SetDecomposition {
		out.SubQuestions = append([]string{}, u.SubQuestions...)
		out.SubAnswers = append([]types.SubAnswer{}, u.SubAnswers...)
	}
	if len(u.Steps) > 0 {
		out.Steps = appendSteps(s.Steps, u.Steps)
	}
	return out
}

// Answer 返回最终答案文本
func (s State) Answer() string { return s.Generation }

func ptr[T any](v T) *T { return &v }

func step(name, detail string) []types.Step {
	return []types.Step{{Name: name, Detail: detail}}
}
