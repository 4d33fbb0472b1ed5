// Package api 定义 RAGFlow HTTP API 的请求与响应结构。
//
// # API Overview
//
// RAGFlow 提供以下端点：
//   - POST /v1/ask            在线程上回答一个问题
//   - GET /v1/threads/{id}    读取线程的对话历史与最近一次轨迹
//   - DELETE /v1/threads/{id} 清除线程
//   - GET /health             依赖健康检查
//   - GET /metrics            Prometheus 指标
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
package api
