// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖 HTTP、补全服务、
编排运行、节点执行、缓存与数据库连接。

# 概述

Collector 持有独立的 prometheus.Registry（附带 Go 运行时与进程指标），
通过 promauto.With 注册全部向量指标，Handler 直接暴露 /metrics。
多个 Collector 可在同一进程共存，测试之间互不干扰。

# 接入点

  - CompletionObserver：传给 structured.WithObserver，按 task 统计补全调用。
  - NodeObserver：作为 workflow.Observer 挂到每次运行，统计节点耗时与失败。
  - RecordRun：会话层在运行结束后记录路由、耗时与改写次数。
  - CacheLookupObserver：传给 websearch.WithLookupObserver，统计结果缓存命中。
  - RecordHTTPRequest：HTTP 中间件记录请求数与耗时。
  - RecordDBConnections：定期记录检查点数据库连接池状态。
*/
package metrics
