package structured

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/BaSui01/ragflow/types"
)

var codeFence = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// ExtractJSON 从可能包含 markdown 代码块或前后说明文字的响应中取出第一个完整的 JSON 对象。
// 说明文字里出现的花括号不影响结果；找不到可解析的对象时按首尾花括号截取，交给调用方报错。
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)

	if strings.Contains(response, "```") {
		if m := codeFence.FindStringSubmatch(response); len(m) > 1 {
			response = strings.TrimSpace(m[1])
		}
	}

	for off := 0; off < len(response); {
		i := strings.IndexByte(response[off:], '{')
		if i < 0 {
			break
		}
		start := off + i
		var obj json.RawMessage
		if err := json.NewDecoder(strings.NewReader(response[start:])).Decode(&obj); err == nil {
			return string(obj)
		}
		off = start + 1
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start >= 0 && end > start {
		return response[start : end+1]
	}
	return response
}

// Decode 解析原始响应到 out 并执行校验。
// 返回的错误总是携带 MALFORMED_OUTPUT 或 ROUTE_INVALID 错误码。
func Decode(raw string, out Shape) error {
	jsonStr := ExtractJSON(raw)
	if jsonStr == "" {
		return types.NewError(types.ErrMalformedOutput, fmt.Sprintf("%s: empty response", out.ShapeName()))
	}
	if err := json.Unmarshal([]byte(jsonStr), out); err != nil {
		return types.NewError(types.ErrMalformedOutput, fmt.Sprintf("%s: invalid json", out.ShapeName())).WithCause(err)
	}
	if err := out.Validate(); err != nil {
		if _, ok := types.AsError(err); ok {
			return err
		}
		return types.NewError(types.ErrMalformedOutput, out.ShapeName()).WithCause(err)
	}
	return nil
}

// buildSchemaInstruction 构造追加到 system prompt 的 JSON 输出约束。
func buildSchemaInstruction(out Shape) string {
	var sb strings.Builder
	sb.WriteString("\n\nIMPORTANT OUTPUT INSTRUCTIONS:\n")
	sb.WriteString("1. Respond with valid JSON that conforms to the schema below.\n")
	sb.WriteString("2. Do NOT include any text before or after the JSON.\n")
	sb.WriteString("3. Use only the allowed enum values.\n\n")
	sb.WriteString("JSON Schema:\n")
	sb.WriteString(out.Schema())
	return sb.String()
}
