// Package retry 提供固定间隔与指数退避两种重试策略。
package retry
