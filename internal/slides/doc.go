// Package slides 定义幻灯片数据模型与数据源。
//
// 数据源有三种：SupabaseStore 走 PostgREST，SQLStore 直连数据库，
// CachedStore 在二者之前加 Redis 缓存。另外提供图片地址解析、
// 文本统计与讲解上下文窗口等辅助函数。
package slides
