// Package history 持久化已结束的演示会话记录（presentation_sessions 表）。
//
// Worker 在每个会话结束时写入一条记录，API 通过 /api/v1/history 查询。
// 表结构由 internal/migration 维护，本包只做读写。
package history
