// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理 slides 与 presentation_sessions 两张表的 Schema，
支持 PostgreSQL、MySQL 与 SQLite，基于 golang-migrate 实现。

# 概述

各方言的 SQL 文件通过 embed.FS 内嵌在二进制中，`pptagent migrate`
子命令经由 CLI 类型调用 Migrator 完成 up/down/steps/force/status。

# 核心类型

  - Migrator / DefaultMigrator：迁移操作集与 golang-migrate 实现
  - Config：方言、连接串与版本表名
  - CLI：格式化终端输出
  - ParseDatabaseType / BuildDatabaseURL：类型解析与连接串拼接
*/
package migration
