// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 pptagent Worker 程序入口。

# 概述

cmd/pptagent 是幻灯片讲解 Agent 的可执行入口。Worker 接收 LiveKit
webhook 或控制 API 的派发请求，为每个房间启动一个演示会话，并在
收到 SIGINT/SIGTERM 后等待会话结束再退出。

# 子命令

  - start           — 生产模式：JSON 日志、Worker HTTP 服务、Metrics 服务
  - dev             — 开发模式：console 日志、debug 级别、配置文件热重载、短 drain 超时
  - download-files  — 预热 tokenizer 编码并并发下载 assets.files（可校验 sha256）
  - migrate         — 数据库迁移（up/down/steps/force/version/status）
  - version, health — 构建信息与 HTTP 健康探测

# 中间件链

Recovery → RequestID → SecurityHeaders → RequestLogger → Metrics →
OTelTracing → RateLimiter（按 IP，限额可热更新）→ APIKeyAuth
（探针路径与 /webhook/ 不鉴权）。

# 构建注入

Version、BuildTime、GitCommit 通过 ldflags 设置。
*/
package main
