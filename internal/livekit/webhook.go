package livekit

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/livekit/protocol/auth"
	lkproto "github.com/livekit/protocol/livekit"
	"github.com/livekit/protocol/webhook"
)

// Webhook 事件名
const (
	EventRoomStarted       = "room_started"
	EventRoomFinished      = "room_finished"
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
)

// maxWebhookBody 单个 webhook 请求体上限
const maxWebhookBody = 1 << 20

var (
	// ErrMissingAuth 请求未携带签名令牌
	ErrMissingAuth = webhook.ErrNoAuthHeader
	// ErrChecksumMismatch 请求体摘要与令牌不符
	ErrChecksumMismatch = webhook.ErrInvalidChecksum
)

// WebhookEvent LiveKit 推送的事件
type WebhookEvent struct {
	ID          string       `json:"id"`
	Event       string       `json:"event"`
	Room        *Room        `json:"room,omitempty"`
	Participant *Participant `json:"participant,omitempty"`
	CreatedAt   int64        `json:"createdAt,string,omitempty"`
}

// RoomName 事件所属房间名
func (e *WebhookEvent) RoomName() string {
	if e.Room == nil {
		return ""
	}
	return e.Room.Name
}

func eventFromProto(ev *lkproto.WebhookEvent) *WebhookEvent {
	out := &WebhookEvent{
		ID:        ev.GetId(),
		Event:     ev.GetEvent(),
		CreatedAt: ev.GetCreatedAt(),
	}
	if ev.Room != nil {
		r := roomFromProto(ev.Room)
		out.Room = &r
	}
	if ev.Participant != nil {
		p := participantFromProto(ev.Participant)
		out.Participant = &p
	}
	return out
}

// WebhookReceiver 校验并解析 webhook
type WebhookReceiver struct {
	keys auth.KeyProvider
}

// NewWebhookReceiver 创建 webhook 接收器
func NewWebhookReceiver(apiKey, apiSecret string) *WebhookReceiver {
	return &WebhookReceiver{keys: auth.NewSimpleKeyProvider(apiKey, apiSecret)}
}

// Receive 读取请求体、校验签名与摘要，返回解析后的事件
func (w *WebhookReceiver) Receive(r *http.Request) (*WebhookEvent, error) {
	r.Body = io.NopCloser(io.LimitReader(r.Body, maxWebhookBody))
	ev, err := webhook.ReceiveWebhookEvent(r, w.keys)
	if err != nil {
		return nil, fmt.Errorf("verify webhook: %w", err)
	}
	return eventFromProto(ev), nil
}

// BodyChecksum 请求体的 base64(sha256)，与 webhook 令牌的 sha256 声明比较
func BodyChecksum(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// SignWebhook 生成 webhook 签名令牌，供本地联调与测试使用
func SignWebhook(apiKey, apiSecret string, body []byte) (string, error) {
	return auth.NewAccessToken(apiKey, apiSecret).
		SetValidFor(5 * time.Minute).
		SetSha256(BodyChecksum(body)).
		ToJWT()
}
