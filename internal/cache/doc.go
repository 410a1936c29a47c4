// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理能力。

# 概述

Manager 封装 go-redis 客户端，为幻灯片数据等读多写少的内容提供
带键前缀与默认 TTL 的缓存读写，负责连接初始化、后台健康检查与关闭。

# 核心类型

  - Manager：Get/Set/Delete/Exists 基础操作与 GetJSON/SetJSON 序列化方法
  - Config：地址、密码、键前缀、默认 TTL、连接池与健康检查间隔
  - ErrCacheMiss / ErrClosed：哨兵错误
*/
package cache
