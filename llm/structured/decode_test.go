package structured

import (
	"testing"

	"github.com/BaSui01/ragflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced no lang", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding text", `Sure! {"a":1} Hope this helps.`, `{"a":1}`},
		{"trailing note with braces", `{"route":"direct","reasoning":"greeting"} (note: no {docs} needed)`, `{"route":"direct","reasoning":"greeting"}`},
		{"leading prose with braces", `Using {context}: {"relevant":"yes"}`, `{"relevant":"yes"}`},
		{"fenced then commentary", "```json\n{\"a\":{\"b\":2}}\n```\nSee {x}.", `{"a":{"b":2}}`},
		{"no json", "nothing here", "nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.in))
		})
	}
}

func TestDecode_RouteDecision(t *testing.T) {
	var d RouteDecision
	require.NoError(t, Decode(`{"route": " Multi_Query ", "reasoning": " vague question "}`, &d))
	assert.Equal(t, types.RouteMultiQuery, d.Parsed())
	assert.Equal(t, "multi_query", d.Route)
	assert.Equal(t, "vague question", d.Reasoning)
}

func TestDecode_RouteDecisionWithTrailingCommentary(t *testing.T) {
	var d RouteDecision
	require.NoError(t, Decode(`{"route":"direct","reasoning":"greeting"} (note: no {docs} needed)`, &d))
	assert.Equal(t, types.RouteDirect, d.Parsed())
	assert.Equal(t, "greeting", d.Reasoning)
}

func TestDecode_RouteDecisionRejectsUnknownRoute(t *testing.T) {
	for _, raw := range []string{`{"route": "google", "reasoning": "x"}`, `{"route": "", "reasoning": "x"}`, `{"reasoning": "x"}`} {
		var d RouteDecision
		err := Decode(raw, &d)
		require.Error(t, err, raw)
		assert.True(t, types.IsErrorCode(err, types.ErrRouteInvalid), raw)
	}
}

func TestDecode_GradeDecision(t *testing.T) {
	var yes GradeDecision
	require.NoError(t, Decode(`{"relevant": "YES"}`, &yes))
	assert.True(t, yes.Yes())

	var no GradeDecision
	require.NoError(t, Decode(`{"relevant": "no"}`, &no))
	assert.False(t, no.Yes())

	var maybe GradeDecision
	err := Decode(`{"relevant": "maybe"}`, &maybe)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrMalformedOutput))
}

func TestDecode_DecomposedQuestions(t *testing.T) {
	var d DecomposedQuestions
	require.NoError(t, Decode(`{"sub_questions": ["What is X?", "  ", "What is Y?"]}`, &d))
	assert.Equal(t, []string{"What is X?", "What is Y?"}, d.SubQuestions)

	var empty DecomposedQuestions
	err := Decode(`{"sub_questions": []}`, &empty)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrMalformedOutput))
}

func TestDecode_InvalidJSON(t *testing.T) {
	var d GradeDecision
	err := Decode(`{"relevant": `, &d)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrMalformedOutput))

	err = Decode("", &d)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrMalformedOutput))
}
