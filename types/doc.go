/*
Package types 提供 RAGFlow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 rag、agent、workflow、
api 等上层模块提供统一的类型契约。

# 核心类型

  - Document / Metadata — 检索得到的段落及其来源元数据（page/row 零起始）
  - Citation            — 从 Metadata 投影并去重的引用（page/row 一起始）
  - SubAnswer           — 分解路径下单个子问题的回答
  - ChatMessage / Role  — 会话历史条目
  - Step                — 执行轨迹条目（只追加）
  - Route               — 五种检索策略的封闭枚举
  - Error / ErrorCode   — 结构化错误体系，含 HTTP 状态码、Retryable、Provider 标记
*/
package types
