/*
Package llm 定义与大语言模型交互的统一契约。

Provider 负责一次同步聊天补全；具体实现位于 llm/providers 下：

  - openaicompat — 任意 OpenAI 兼容端点（支持 JSON 输出模式）
  - anthropic    — Anthropic Messages API（anthropic-sdk-go）

上层的 llm/structured 在 Provider 之上提供“自由文本 / 结构化结果”两种补全模式，
编排节点只依赖 structured.Completer。
*/
package llm
