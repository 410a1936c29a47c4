package presenter

import (
	"context"

	"github.com/BaSui01/pptagent/internal/livekit"
	"github.com/BaSui01/pptagent/llm/realtime"
)

// Speech 一次模型回复
type Speech interface {
	WaitForPlayout(ctx context.Context) error
	Interrupted() bool
}

// Conversation 实时语音对话
type Conversation interface {
	GenerateReply(ctx context.Context, instructions string) (Speech, error)
	SendText(ctx context.Context, text string) error
	AppendAudio(ctx context.Context, pcm []byte) error
	Interrupt(ctx context.Context) error
	Done() <-chan struct{}
	Close() error
}

// Dialer 建立实时对话
type Dialer func(ctx context.Context, cfg realtime.Config, opts ...realtime.Option) (Conversation, error)

// RoomService 会话使用的 LiveKit RoomService 能力
type RoomService interface {
	AttributeUpdater
	ListParticipants(ctx context.Context, room string) ([]livekit.Participant, error)
	RemoveParticipant(ctx context.Context, room, identity string) error
}

// DialRealtime 默认 Dialer，连接 OpenAI Realtime
func DialRealtime(ctx context.Context, cfg realtime.Config, opts ...realtime.Option) (Conversation, error) {
	s, err := realtime.Dial(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return realtimeConversation{s}, nil
}

type realtimeConversation struct {
	*realtime.Session
}

func (c realtimeConversation) GenerateReply(ctx context.Context, instructions string) (Speech, error) {
	h, err := c.Session.GenerateReply(ctx, instructions)
	if err != nil {
		return nil, err
	}
	return h, nil
}
