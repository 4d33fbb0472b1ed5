// Copyright (c) RAGFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 提供带环的泛型状态图编排引擎。

# 概述

StateGraph[S, U] 由节点注册表、静态边、条件边与入口节点组成。
节点读取当前状态 S 并返回部分更新 U，由调用方提供的 merge 函数
合并为新状态。执行器严格顺序地逐节点推进，直到到达 End。

# 核心类型

  - StateGraph     — 图构建器（AddNode / AddEdge / AddConditionalEdges / SetEntryPoint）
  - CompiledGraph  — 校验后的可执行图，Invoke(ctx, S) (S, error)
  - NodeError      — 节点失败包装，携带节点名与步序
  - Observer       — 节点开始/结束回调（指标、执行历史）
  - ExecutionHistory — 单次运行的节点执行记录
  - Reducer[T]     — 字段合并策略（LastValue / Append / Max / Sum / MergeMap）

# 执行语义

  - 条件边返回映射表中不存在的键时返回 ROUTE_INVALID，不做默认路由
  - 超出步数预算返回 STEP_LIMIT
  - 每个节点之间检查 ctx，节点运行在独立的 OpenTelemetry span 中
  - Mermaid() 导出拓扑，便于审阅分支与跳过规则
*/
package workflow
