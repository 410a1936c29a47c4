// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、演示会话、
实时语音、数字人、缓存与数据库。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制。所有指标按 namespace 隔离。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 会话指标：活跃会话 Gauge、按结果分组的结束总数与时长、拒绝原因、已讲解页数。
  - 语音指标：按 completed/interrupted/failed 分组的生成次数与耗时。
  - 数字人与 webhook：启动结果、收到的事件类型。
  - 缓存与数据库：幻灯片缓存命中率、连接数 Gauge。
*/
package metrics
