// Package ctxkeys 定义跨包传递的 context 键。
package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	roomKey      contextKey = "room"
	apiKeyIDKey  contextKey = "api_key_id"
)

func withString(ctx context.Context, key contextKey, v string) context.Context {
	return context.WithValue(ctx, key, v)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithRequestID 设置请求 ID
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

// RequestID 获取请求 ID
func RequestID(ctx context.Context) (string, bool) {
	return stringValue(ctx, requestIDKey)
}

// WithRoom 设置当前请求操作的房间
func WithRoom(ctx context.Context, room string) context.Context {
	return withString(ctx, roomKey, room)
}

// Room 获取房间名
func Room(ctx context.Context) (string, bool) {
	return stringValue(ctx, roomKey)
}

// WithAPIKeyID 设置通过鉴权的 API Key 标识（脱敏后的前缀）
func WithAPIKeyID(ctx context.Context, id string) context.Context {
	return withString(ctx, apiKeyIDKey, id)
}

// APIKeyID 获取 API Key 标识
func APIKeyID(ctx context.Context) (string, bool) {
	return stringValue(ctx, apiKeyIDKey)
}
