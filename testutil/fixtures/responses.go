// =============================================================================
// 📦 测试数据工厂 - 补全服务回复
// =============================================================================
// 生成符合结构化形状的原始回复文本，供 ScriptedCompleter 使用
// =============================================================================
package fixtures

import (
	"encoding/json"

	"github.com/BaSui01/ragflow/types"
)

// RouteReply 路由决策回复
func RouteReply(route types.Route, reasoning string) string {
	return mustJSON(map[string]string{"route": string(route), "reasoning": reasoning})
}

// GradeReply 二元评分回复
func GradeReply(yes bool) string {
	if yes {
		return `{"relevant":"yes"}`
	}
	return `{"relevant":"no"}`
}

// SubQuestionsReply 子问题列表回复
func SubQuestionsReply(questions ...string) string {
	return mustJSON(map[string][]string{"sub_questions": questions})
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
