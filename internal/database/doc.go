// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库访问，用于直连 Postgres（含 Supabase
数据库）或 MySQL 读取幻灯片与写入演示会话记录。

# 核心类型

  - Open / Dialector / DSN：按配置选择 postgres 或 mysql 驱动并建立连接
  - PoolManager：连接池参数、后台探活并向 StatsObserver 上报连接数、Ping 与统计
  - GormLogger：把 gorm 日志与慢查询输出到 zap
*/
package database
