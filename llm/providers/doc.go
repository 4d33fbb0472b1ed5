// Package providers 提供各 LLM Provider 共用的 HTTP 错误映射与请求辅助函数。
package providers
