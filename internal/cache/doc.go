/*
包 cache 提供基于 Redis 的缓存管理能力。

# 概述

Manager 封装 go-redis 客户端，负责连接初始化、后台健康检查与优雅关闭。
网络搜索结果缓存与 redis 检查点存储共用同一个 Manager。

# 主要能力

  - 键值读写：字符串与 JSON 两种模式（Get/Set、GetJSON/SetJSON）。
  - 过期控制：ttl 为 0 时使用 DefaultTTL，DefaultTTL 为 0 表示不过期。
  - 命名空间：Config.Namespace 为键加前缀；Client() 返回的原始客户端不加前缀，
    供检查点存储使用自己的键前缀。
  - 错误语义：ErrCacheMiss 哨兵错误与 IsCacheMiss 判断函数。
*/
package cache
