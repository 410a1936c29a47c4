// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 pptagent HTTP API 的请求处理器实现。

# 概述

handlers 包实现了 worker 对外暴露的全部 HTTP 端点：会话派发与控制、
LiveKit webhook、会话历史、配置查看以及健康检查。所有 Handler 均遵循
标准 net/http 接口，路由使用 Go 1.22 的 method + path 模式注册。

# 核心类型

  - SessionHandler  — 会话派发、查询、翻页、文字消息、打断与音频推流
  - WebhookHandler  — 校验 LiveKit 签名，按房间事件自动派发或取消会话
  - HistoryHandler  — 已结束会话的历史记录（配置数据库时可用）
  - ConfigHandler   — 脱敏配置视图与手动重载
  - HealthHandler   — /healthz、/ready（排空时返回 503）、/version
  - Response        — 统一 JSON 响应结构（success + data + error + timestamp）

# 错误处理

WriteError 接受任意 error：*types.Error 按错误码映射 HTTP 状态，
已知哨兵错误（会话未就绪、会话不存在等）转换为对应错误码，
其余错误统一返回 INTERNAL_ERROR，原始信息只写入日志。
*/
package handlers
