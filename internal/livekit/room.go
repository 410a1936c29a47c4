package livekit

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	lkproto "github.com/livekit/protocol/livekit"
	"github.com/twitchtv/twirp"
	"go.uber.org/zap"

	"github.com/BaSui01/pptagent/internal/tlsutil"
	"github.com/BaSui01/pptagent/types"
)

// 参与者类型（ParticipantInfo.Kind）
const (
	KindStandard = "STANDARD"
	KindAgent    = "AGENT"
	KindEgress   = "EGRESS"
	KindIngress  = "INGRESS"
	KindSIP      = "SIP"
)

// Participant RoomService 返回的参与者信息
type Participant struct {
	SID        string            `json:"sid"`
	Identity   string            `json:"identity"`
	Name       string            `json:"name,omitempty"`
	State      string            `json:"state,omitempty"`
	Metadata   string            `json:"metadata,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Kind       string            `json:"kind,omitempty"`
}

// IsAudience 是否为普通观众（排除代理、录制与推流等）
func (p Participant) IsAudience() bool {
	return p.Kind == "" || p.Kind == KindStandard || p.Kind == KindSIP
}

// Room 房间信息
type Room struct {
	SID             string `json:"sid"`
	Name            string `json:"name"`
	Metadata        string `json:"metadata,omitempty"`
	NumParticipants int    `json:"num_participants,omitempty"`
}

func participantFromProto(p *lkproto.ParticipantInfo) Participant {
	return Participant{
		SID:        p.GetSid(),
		Identity:   p.GetIdentity(),
		Name:       p.GetName(),
		State:      p.GetState().String(),
		Metadata:   p.GetMetadata(),
		Attributes: p.GetAttributes(),
		Kind:       p.GetKind().String(),
	}
}

func roomFromProto(r *lkproto.Room) Room {
	return Room{
		SID:             r.GetSid(),
		Name:            r.GetName(),
		Metadata:        r.GetMetadata(),
		NumParticipants: int(r.GetNumParticipants()),
	}
}

// ClientConfig RoomClient 配置
type ClientConfig struct {
	URL       string
	APIKey    string
	APISecret string
	Timeout   time.Duration
}

// RoomClient RoomService 的 Twirp JSON 客户端
type RoomClient struct {
	svc       lkproto.RoomService
	apiKey    string
	apiSecret string
	logger    *zap.Logger
}

// NewRoomClient 创建 RoomService 客户端。ws(s):// 地址会转换为 http(s)://
func NewRoomClient(cfg ClientConfig, logger *zap.Logger) *RoomClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RoomClient{
		svc:       lkproto.NewRoomServiceJSONClient(HTTPURL(cfg.URL), tlsutil.SecureHTTPClient(timeout)),
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		logger:    logger.With(zap.String("component", "livekit_room")),
	}
}

// HTTPURL 把 LiveKit 信令地址转换为 HTTP API 地址
func HTTPURL(u string) string {
	u = strings.TrimRight(u, "/")
	switch {
	case strings.HasPrefix(u, "wss://"):
		return "https://" + strings.TrimPrefix(u, "wss://")
	case strings.HasPrefix(u, "ws://"):
		return "http://" + strings.TrimPrefix(u, "ws://")
	default:
		return u
	}
}

// ListParticipants 列出房间内的参与者
func (c *RoomClient) ListParticipants(ctx context.Context, room string) ([]Participant, error) {
	ctx, err := c.authorize(ctx, room)
	if err != nil {
		return nil, err
	}
	resp, err := c.svc.ListParticipants(ctx, &lkproto.ListParticipantsRequest{Room: room})
	if err != nil {
		return nil, c.mapError("ListParticipants", err)
	}
	out := make([]Participant, 0, len(resp.GetParticipants()))
	for _, p := range resp.GetParticipants() {
		out = append(out, participantFromProto(p))
	}
	return out, nil
}

// GetParticipant 查询单个参与者
func (c *RoomClient) GetParticipant(ctx context.Context, room, identity string) (*Participant, error) {
	ctx, err := c.authorize(ctx, room)
	if err != nil {
		return nil, err
	}
	info, err := c.svc.GetParticipant(ctx, &lkproto.RoomParticipantIdentity{Room: room, Identity: identity})
	if err != nil {
		return nil, c.mapError("GetParticipant", err)
	}
	p := participantFromProto(info)
	return &p, nil
}

// UpdateAttributes 合并更新参与者属性
func (c *RoomClient) UpdateAttributes(ctx context.Context, room, identity string, attrs map[string]string) error {
	ctx, err := c.authorize(ctx, room)
	if err != nil {
		return err
	}
	_, err = c.svc.UpdateParticipant(ctx, &lkproto.UpdateParticipantRequest{
		Room:       room,
		Identity:   identity,
		Attributes: attrs,
	})
	if err != nil {
		return c.mapError("UpdateParticipant", err)
	}
	return nil
}

// RemoveParticipant 将参与者移出房间
func (c *RoomClient) RemoveParticipant(ctx context.Context, room, identity string) error {
	ctx, err := c.authorize(ctx, room)
	if err != nil {
		return err
	}
	if _, err := c.svc.RemoveParticipant(ctx, &lkproto.RoomParticipantIdentity{Room: room, Identity: identity}); err != nil {
		return c.mapError("RemoveParticipant", err)
	}
	return nil
}

// ListRooms 列出活跃房间
func (c *RoomClient) ListRooms(ctx context.Context) ([]Room, error) {
	ctx, err := c.authorize(ctx, "")
	if err != nil {
		return nil, err
	}
	resp, err := c.svc.ListRooms(ctx, &lkproto.ListRoomsRequest{})
	if err != nil {
		return nil, c.mapError("ListRooms", err)
	}
	out := make([]Room, 0, len(resp.GetRooms()))
	for _, r := range resp.GetRooms() {
		out = append(out, roomFromProto(r))
	}
	return out, nil
}

// Ping 以 ListRooms 探测服务可用性
func (c *RoomClient) Ping(ctx context.Context) error {
	_, err := c.ListRooms(ctx)
	return err
}

// authorize 为本次调用附加管理令牌；room 为空时签发 roomList 权限
func (c *RoomClient) authorize(ctx context.Context, room string) (context.Context, error) {
	token, err := adminToken(c.apiKey, c.apiSecret, room)
	if err != nil {
		return ctx, types.NewError(types.ErrUnauthorized, "sign livekit request").WithCause(err).WithProvider("livekit")
	}
	header := make(http.Header)
	header.Set("Authorization", "Bearer "+token)
	authed, err := twirp.WithHTTPRequestHeaders(ctx, header)
	if err != nil {
		return ctx, types.NewError(types.ErrInternalError, "attach livekit credentials").WithCause(err)
	}
	return authed, nil
}

// mapError 把 Twirp 错误转换为 types.Error。
// 客户端侧失败（连接拒绝、超时）由生成代码包装为带 cause 元数据的 internal 错误。
func (c *RoomClient) mapError(method string, err error) error {
	var twerr twirp.Error
	if !errors.As(err, &twerr) || (twerr.Code() == twirp.Internal && twerr.Meta("cause") != "") {
		return types.NewError(types.ErrProviderUnavailable, "livekit "+method+" failed").
			WithCause(err).WithRetryable(true).WithProvider("livekit")
	}

	status := twirp.ServerHTTPStatusFromErrorCode(twerr.Code())
	c.logger.Debug("room service error",
		zap.String("method", method),
		zap.String("code", string(twerr.Code())),
		zap.Int("status", status),
		zap.String("message", twerr.Msg()))
	return types.FromHTTPStatus(status, twerr.Msg(), "livekit")
}
