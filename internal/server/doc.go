// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 worker 对外 HTTP 服务（控制 API、webhook、/metrics）的生命周期。

# 核心类型

  - Manager：封装 http.Server 与 net.Listener，提供非阻塞启动、
    优雅关闭与异步错误通道。
  - Config：监听地址、读写与空闲超时、最大并发连接数、关闭超时。

# 主要能力

  - 非阻塞启动：Start 先完成监听再在后台 goroutine 中服务，
    端口为 0 时 Addr 返回实际地址。
  - 连接上限：MaxConnections > 0 时通过 netutil.LimitListener 限制并发连接。
  - 优雅关闭：Shutdown 在 ShutdownTimeout 内排空请求，可重复调用。
*/
package server
