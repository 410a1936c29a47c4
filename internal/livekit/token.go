package livekit

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/livekit/protocol/auth"
	lkproto "github.com/livekit/protocol/livekit"
)

// DefaultTokenTTL 默认令牌有效期
const DefaultTokenTTL = 6 * time.Hour

// TokenRequest 参与者令牌参数
type TokenRequest struct {
	Identity   string
	Name       string
	Metadata   string
	Attributes map[string]string
	// 参与者类型，代理使用 KindAgent
	Kind  string
	Grant *auth.VideoGrant
	TTL   time.Duration
}

// MintToken 签发参与者访问令牌（HS256，API Key 作为 issuer）
func MintToken(apiKey, apiSecret string, req TokenRequest) (string, error) {
	at := auth.NewAccessToken(apiKey, apiSecret).
		SetIdentity(req.Identity).
		SetName(req.Name).
		SetMetadata(req.Metadata)
	if len(req.Attributes) > 0 {
		at.SetAttributes(req.Attributes)
	}
	if req.Kind != "" {
		at.SetKind(kindToProto(req.Kind))
	}
	if req.Grant != nil {
		at.SetVideoGrant(req.Grant)
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return at.SetValidFor(ttl).ToJWT()
}

// AgentGrant 代理（及代其发布媒体的头像服务）加入房间所需的权限
func AgentGrant(room string) *auth.VideoGrant {
	return &auth.VideoGrant{
		RoomJoin:       true,
		Room:           room,
		CanPublish:     boolPtr(true),
		CanSubscribe:   boolPtr(true),
		CanPublishData: boolPtr(true),
		Agent:          true,
	}
}

func boolPtr(b bool) *bool { return &b }

// adminToken RoomService 调用使用的短期管理令牌
func adminToken(apiKey, apiSecret, room string) (string, error) {
	grant := &auth.VideoGrant{RoomAdmin: true, Room: room}
	if room == "" {
		grant = &auth.VideoGrant{RoomList: true}
	}
	return auth.NewAccessToken(apiKey, apiSecret).
		SetVideoGrant(grant).
		SetValidFor(10 * time.Minute).
		ToJWT()
}

func kindToProto(kind string) lkproto.ParticipantInfo_Kind {
	if v, ok := lkproto.ParticipantInfo_Kind_value[kind]; ok {
		return lkproto.ParticipantInfo_Kind(v)
	}
	return lkproto.ParticipantInfo_STANDARD
}

// =============================================================================
// 🔍 令牌校验
// =============================================================================

// Grant 令牌中的房间权限声明
type Grant struct {
	RoomList       bool   `json:"roomList,omitempty"`
	RoomAdmin      bool   `json:"roomAdmin,omitempty"`
	RoomJoin       bool   `json:"roomJoin,omitempty"`
	Room           string `json:"room,omitempty"`
	CanPublish     *bool  `json:"canPublish,omitempty"`
	CanSubscribe   *bool  `json:"canSubscribe,omitempty"`
	CanPublishData *bool  `json:"canPublishData,omitempty"`
	Agent          bool   `json:"agent,omitempty"`
}

// Claims LiveKit 访问令牌的声明
type Claims struct {
	jwt.RegisteredClaims
	Name       string            `json:"name,omitempty"`
	Video      *Grant            `json:"video,omitempty"`
	Metadata   string            `json:"metadata,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Kind       string            `json:"kind,omitempty"`
	Sha256     string            `json:"sha256,omitempty"`
}

// ParseToken 校验令牌签名、签发者与有效期
func ParseToken(tokenStr, apiKey, apiSecret string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return []byte(apiSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithIssuer(apiKey))
	if err != nil {
		return nil, err
	}
	return claims, nil
}
