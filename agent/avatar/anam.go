package avatar

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/pptagent/config"
	"github.com/BaSui01/pptagent/types"
)

const (
	anamTokenPath   = "/v1/auth/session-token"
	anamSessionPath = "/v1/engine/session"
)

type anamPersona struct {
	Name     string `json:"name"`
	AvatarID string `json:"avatarId"`
}

type anamEnvironment struct {
	LiveKitURL   string `json:"livekitUrl"`
	LiveKitToken string `json:"livekitToken"`
	Identity     string `json:"identity,omitempty"`
}

type anamTokenRequest struct {
	PersonaConfig anamPersona     `json:"personaConfig"`
	Environment   anamEnvironment `json:"environment"`
}

type anamTokenResponse struct {
	SessionToken string `json:"sessionToken"`
}

type anamSessionResponse struct {
	SessionID    string `json:"sessionId"`
	WebsocketURL string `json:"websocketUrl"`
}

// anamMessage 音频流上的 JSON 消息
type anamMessage struct {
	Type       string `json:"type"`
	Audio      string `json:"audio,omitempty"`
	SampleRate int    `json:"sampleRate,omitempty"`
}

// AnamProvider Anam 数字人
type AnamProvider struct {
	cfg    config.AnamConfig
	client *http.Client
	logger *zap.Logger
}

// NewAnam 创建 Anam 提供者
func NewAnam(cfg config.AnamConfig, timeout time.Duration, logger *zap.Logger) *AnamProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anam.ai"
	}
	if cfg.Name == "" {
		cfg.Name = "Dia"
	}
	return &AnamProvider{
		cfg:    cfg,
		client: newHTTPClient(timeout),
		logger: logger.With(zap.String("component", "avatar"), zap.String("provider", "anam")),
	}
}

// Name 提供者名称
func (p *AnamProvider) Name() string { return "anam" }

// Start 换取会话 token，创建引擎会话并打开音频流
func (p *AnamProvider) Start(ctx context.Context, req StartRequest) (Session, error) {
	if p.cfg.APIKey == "" || p.cfg.AvatarID == "" {
		return nil, types.NewError(types.ErrUnauthorized, "anam api key and avatar id are required").WithProvider("anam")
	}

	var tok anamTokenResponse
	err := postJSON(ctx, p.client, p.cfg.BaseURL+anamTokenPath, "anam", bearer(p.cfg.APIKey), anamTokenRequest{
		PersonaConfig: anamPersona{Name: p.cfg.Name, AvatarID: p.cfg.AvatarID},
		Environment:   anamEnvironment{LiveKitURL: req.LiveKitURL, LiveKitToken: req.Token, Identity: req.Identity},
	}, &tok)
	if err != nil {
		return nil, err
	}
	if tok.SessionToken == "" {
		return nil, types.NewError(types.ErrUpstreamError, "anam returned empty session token").WithProvider("anam")
	}

	var sess anamSessionResponse
	if err := postJSON(ctx, p.client, p.cfg.BaseURL+anamSessionPath, "anam", bearer(tok.SessionToken), struct{}{}, &sess); err != nil {
		return nil, err
	}
	endpoint := sess.WebsocketURL
	if endpoint == "" {
		if endpoint, err = wsURL(p.cfg.BaseURL, anamSessionPath+"/"+sess.SessionID+"/audio"); err != nil {
			return nil, err
		}
	}

	conn, err := dialStream(ctx, endpoint, "anam", bearer(tok.SessionToken))
	if err != nil {
		return nil, err
	}

	p.logger.Info("anam avatar started",
		zap.String("room", req.Room),
		zap.String("session_id", sess.SessionID),
		zap.String("avatar_id", p.cfg.AvatarID))

	flushMsg, _ := json.Marshal(anamMessage{Type: "end_of_speech"})
	clearMsg, _ := json.Marshal(anamMessage{Type: "interrupt"})
	return &streamSession{
		provider: "anam",
		conn:     conn,
		encode: func(pcm []byte) (websocket.MessageType, []byte, error) {
			msg, err := json.Marshal(anamMessage{
				Type:       "audio",
				Audio:      base64.StdEncoding.EncodeToString(pcm),
				SampleRate: InputSampleRate,
			})
			return websocket.MessageText, msg, err
		},
		clearType: websocket.MessageText,
		clearMsg:  clearMsg,
		flushType: websocket.MessageText,
		flushMsg:  flushMsg,
		playout:   newPlayout(InputSampleRate, time.Now),
		logger:    p.logger.With(zap.String("room", req.Room), zap.String("session_id", sess.SessionID)),
	}, nil
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}
