package types

import (
	"context"

	"go.uber.org/zap"
)

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyRequestID      contextKey = "request_id"
	keyRoom           contextKey = "room"
	keySessionID      contextKey = "session_id"
	keyPresentationID contextKey = "presentation_id"
)

// WithRequestID adds request ID to context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

// RequestID extracts request ID from context.
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRequestID).(string)
	return v, ok && v != ""
}

// WithRoom adds the LiveKit room name to context.
func WithRoom(ctx context.Context, room string) context.Context {
	return context.WithValue(ctx, keyRoom, room)
}

// Room extracts the LiveKit room name from context.
func Room(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRoom).(string)
	return v, ok && v != ""
}

// WithSessionID adds presenter session ID to context.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keySessionID, id)
}

// SessionID extracts presenter session ID from context.
func SessionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keySessionID).(string)
	return v, ok && v != ""
}

// WithPresentationID adds presentation ID to context.
func WithPresentationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyPresentationID, id)
}

// PresentationID extracts presentation ID from context.
func PresentationID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyPresentationID).(string)
	return v, ok && v != ""
}

// LogFields 把 context 中携带的标识转换为 zap 字段，便于各组件统一打日志。
func LogFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 4)
	if v, ok := RequestID(ctx); ok {
		fields = append(fields, zap.String("request_id", v))
	}
	if v, ok := Room(ctx); ok {
		fields = append(fields, zap.String("room", v))
	}
	if v, ok := SessionID(ctx); ok {
		fields = append(fields, zap.String("session_id", v))
	}
	if v, ok := PresentationID(ctx); ok {
		fields = append(fields, zap.String("presentation_id", v))
	}
	return fields
}
