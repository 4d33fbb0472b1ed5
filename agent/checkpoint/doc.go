/*
Package checkpoint 按会话线程持久化对话状态。

每个线程只保留最新的 Checkpoint：聊天历史与上一次运行的最终状态。
ParentID 与 Version 串起同一线程的保存历史，便于排查。

后端：

  - MemoryStore：进程内，测试与单机演示使用。
  - FileStore：BaseDir 下每线程一个 JSON 文件，原子替换写入。
  - RedisStore：go-redis，单键存储，可选 TTL。
  - SQLStore：GORM（postgres、mysql、sqlite），按线程 upsert。

New 根据 config.CheckpointConfig 选择后端。
*/
package checkpoint
