package structured

import (
	"fmt"
	"strings"

	"github.com/BaSui01/ragflow/types"
)

// Shape is a structured result the completion service can be constrained to.
type Shape interface {
	// ShapeName identifies the shape in prompts, logs and errors.
	ShapeName() string
	// Schema returns the JSON Schema sent to the model.
	Schema() string
	// Validate checks and normalizes a decoded value.
	Validate() error
}

// RouteDecision 路由决策。
type RouteDecision struct {
	Route     string `json:"route"`
	Reasoning string `json:"reasoning"`

	parsed types.Route
}

func (d *RouteDecision) ShapeName() string { return "route_decision" }

func (d *RouteDecision) Schema() string {
	return `{
  "type": "object",
  "properties": {
    "route": {"type": "string", "enum": ["vectorstore", "multi_query", "decompose", "web_search", "direct"]},
    "reasoning": {"type": "string", "description": "Brief explanation of why this route was chosen."}
  },
  "required": ["route", "reasoning"]
}`
}

// Validate 拒绝五种路由之外的任何值。
func (d *RouteDecision) Validate() error {
	r, err := types.ParseRoute(d.Route)
	if err != nil {
		return err
	}
	d.parsed = r
	d.Route = string(r)
	d.Reasoning = strings.TrimSpace(d.Reasoning)
	return nil
}

// Parsed returns the validated route.
func (d *RouteDecision) Parsed() types.Route { return d.parsed }

// GradeDecision 二元评分（文档相关性、事实支撑、答案相关性共用）。
type GradeDecision struct {
	Relevant string `json:"relevant"`
}

func (d *GradeDecision) ShapeName() string { return "grade_decision" }

func (d *GradeDecision) Schema() string {
	return `{
  "type": "object",
  "properties": {
    "relevant": {"type": "string", "enum": ["yes", "no"]}
  },
  "required": ["relevant"]
}`
}

func (d *GradeDecision) Validate() error {
	v := strings.ToLower(strings.TrimSpace(d.Relevant))
	if v != "yes" && v != "no" {
		return types.NewError(types.ErrMalformedOutput, fmt.Sprintf("grade must be yes or no, got %q", d.Relevant))
	}
	d.Relevant = v
	return nil
}

// Yes reports a positive grade. Only meaningful after Validate.
func (d *GradeDecision) Yes() bool { return d.Relevant == "yes" }

// DecomposedQuestions 问题分解结果。
type DecomposedQuestions struct {
	SubQuestions []string `json:"sub_questions"`
}

func (d *DecomposedQuestions) ShapeName() string { return "decomposed_questions" }

func (d *DecomposedQuestions) Schema() string {
	return `{
  "type": "object",
  "properties": {
    "sub_questions": {
      "type": "array",
      "items": {"type": "string"},
      "minItems": 1,
      "description": "A list of 2-4 sub-questions that, answered in order, fully answer the original question."
    }
  },
  "required": ["sub_questions"]
}`
}

// Validate 去除空白项，至少保留一个子问题。
func (d *DecomposedQuestions) Validate() error {
	kept := d.SubQuestions[:0]
	for _, q := range d.SubQuestions {
		if q = strings.TrimSpace(q); q != "" {
			kept = append(kept, q)
		}
	}
	d.SubQuestions = kept
	if len(kept) == 0 {
		return types.NewError(types.ErrMalformedOutput, "sub_questions is empty")
	}
	return nil
}
