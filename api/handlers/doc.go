/*
Package handlers 提供 RAGFlow HTTP API 的请求处理器实现。

# 核心类型

  - AskHandler     — POST /v1/ask 与 /v1/threads/{id} 的读取、清除
  - HealthHandler  — /health 依赖检查与 /healthz 活跃度探针
  - Response       — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo      — 结构化错误信息，含 code、message、失败节点与 retryable 标记
  - ResponseWriter — 包装 http.ResponseWriter 以捕获状态码

# 错误映射

WriteError 接受任意 error：types.Error 保留其错误码与 HTTP 状态，
workflow.NodeError 额外带出失败的节点名，超时映射为 504。
*/
package handlers
