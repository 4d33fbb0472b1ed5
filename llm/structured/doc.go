/*
Package structured 在 llm.Provider 之上实现补全服务契约：

  - Complete           — 自由文本补全
  - CompleteStructured — 约束为 RouteDecision / GradeDecision / DecomposedQuestions
    之一的结构化补全

结构化结果先从响应中提取 JSON（兼容 markdown 代码块），再反序列化并调用
Shape.Validate。任何不符合形状的输出都返回 MALFORMED_OUTPUT（或 ROUTE_INVALID），
绝不静默回退到默认值。只有可重试的上游错误会按 retry 策略重试。
*/
package structured
