// Copyright (c) RAGFlow Authors.
// Licensed under the MIT License.

/*
Package agent 实现自适应 RAG 编排：九个节点、路由函数与状态图组装。

# 概述

Pipeline 把路由、检索、评分、改写、生成与网络搜索节点装配为一个
workflow.CompiledGraph[State, Update]。每个节点只读取 State，
返回部分更新 Update，由 Merge 合并；执行轨迹 Steps 只追加不删除。

# 节点

  - route_query            — 结构化路由决策（五种路由之一）
  - retrieve               — 标准相似度检索
  - multi_query_retrieve   — 多角度改写检索并按内容前缀去重
  - decompose_and_answer   — 子问题分解、逐个回答、综合
  - grade_documents        — 逐文档二元相关性评分
  - rewrite_query          — 查询改写，计数加一
  - generate               — 带引用的答案生成
  - grade_generation       — 事实支撑与答案相关性检查
  - web_search_node        — 网络搜索回退（失败降级为说明性文档）
  - skip_grading           — direct / decompose 路由跳过生成评分，只记录轨迹

# 终止

唯一的环 rewrite_query → retrieve → grade_documents → … → grade_generation
受 MaxQueryRewrites 约束：两个出口条件都与同一上限比较，
QueryRewriteCount 每次改写严格加一。
*/
package agent
