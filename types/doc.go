/*
Package types 提供 pptagent 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 presenter、worker、api
等上层模块提供统一的错误码与 context 传播约定。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码、Retryable、Provider 标记
  - WithRoom / WithSessionID / WithPresentationID — 会话标识的 context 传播
  - LogFields — 将 context 中的标识转换为 zap 字段
*/
package types
