// Package worker 管理演示会话的生命周期。
//
// Worker 按房间派发任务：同一房间只允许一个会话，并发数受
// worker.max_sessions 限制。会话结束后更新指标并写入历史记录，
// Drain 在关闭时等待会话自然结束，超时后取消剩余会话。
package worker
