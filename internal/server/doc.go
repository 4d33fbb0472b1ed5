// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 ragflow serve 的 HTTP 服务器生命周期：非阻塞启动、
优雅关闭与系统信号监听。

  - Manager：持有 http.Server 与 net.Listener，提供 Start/Shutdown/
    WaitForShutdown/Run。OnShutdown 注册的钩子在连接排空后按注册逆序执行，
    serve 命令用它释放检查点存储、数据库与 Redis 连接。
  - Config：监听地址、读写超时、空闲超时与优雅关闭超时，
    由 ConfigFromServer 从 config.ServerConfig 派生。

写入超时默认较长，一次问答可能串行执行多轮模型调用。
*/
package server
