// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的连接池管理，为 SQL 会话检查点存储提供连接。

# 概述

Open 按配置的驱动（postgres、mysql、sqlite）选择方言并打开连接，
PoolManager 统一管理连接池参数、后台探活与事务执行。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB、Ping、Stats、Close。
  - PoolConfig：最大空闲/打开连接数、连接生命周期、健康检查间隔与事务重试退避。
  - TransactionFunc：事务回调。

# 主要能力

  - WithTransaction 执行单次事务；WithTransactionRetry 复用 llm/retry 的退避重试器，
    只对 IsTransientTxError 识别的死锁、序列化失败与 sqlite 锁等待重试。
*/
package database
