package avatar

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/pptagent/config"
	"github.com/BaSui01/pptagent/types"
)

const (
	simliSampleRate = 16000
	simliStartPath  = "/startAudioToVideoSession"
	simliStreamPath = "/audioStream"
	// simliSkip 丢弃 Simli 端尚未播放的音频
	simliSkip = "SKIP"
)

type simliStartRequest struct {
	APIKey           string `json:"apiKey"`
	FaceID           string `json:"faceId"`
	HandleSilence    bool   `json:"handleSilence"`
	SyncAudio        bool   `json:"syncAudio"`
	MaxSessionLength int    `json:"maxSessionLength"`
	MaxIdleTime      int    `json:"maxIdleTime"`
	LiveKitURL       string `json:"livekitUrl"`
	LiveKitToken     string `json:"livekitToken"`
	Identity         string `json:"identity,omitempty"`
}

type simliStartResponse struct {
	SessionToken string `json:"session_token"`
}

// SimliProvider Simli 数字人
type SimliProvider struct {
	cfg    config.SimliConfig
	client *http.Client
	logger *zap.Logger
}

// NewSimli 创建 Simli 提供者
func NewSimli(cfg config.SimliConfig, timeout time.Duration, logger *zap.Logger) *SimliProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.simli.ai"
	}
	return &SimliProvider{
		cfg:    cfg,
		client: newHTTPClient(timeout),
		logger: logger.With(zap.String("component", "avatar"), zap.String("provider", "simli")),
	}
}

// Name 提供者名称
func (p *SimliProvider) Name() string { return "simli" }

// Start 创建 Simli 会话并打开音频流
func (p *SimliProvider) Start(ctx context.Context, req StartRequest) (Session, error) {
	if p.cfg.APIKey == "" || p.cfg.FaceID == "" {
		return nil, types.NewError(types.ErrUnauthorized, "simli api key and face id are required").WithProvider("simli")
	}

	var started simliStartResponse
	err := postJSON(ctx, p.client, p.cfg.BaseURL+simliStartPath, "simli", nil, simliStartRequest{
		APIKey:           p.cfg.APIKey,
		FaceID:           p.cfg.FaceID,
		HandleSilence:    true,
		SyncAudio:        true,
		MaxSessionLength: int(p.cfg.MaxSessionLength / time.Second),
		MaxIdleTime:      int(p.cfg.MaxIdleTime / time.Second),
		LiveKitURL:       req.LiveKitURL,
		LiveKitToken:     req.Token,
		Identity:         req.Identity,
	}, &started)
	if err != nil {
		return nil, err
	}
	if started.SessionToken == "" {
		return nil, types.NewError(types.ErrUpstreamError, "simli returned empty session token").WithProvider("simli")
	}

	endpoint, err := wsURL(p.cfg.BaseURL, simliStreamPath)
	if err != nil {
		return nil, err
	}
	conn, err := dialStream(ctx, endpoint, "simli", nil)
	if err != nil {
		return nil, err
	}
	// 首条消息为会话 token
	if err := conn.Write(ctx, websocket.MessageText, []byte(started.SessionToken)); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "handshake failed")
		return nil, types.NewError(types.ErrProviderUnavailable, "simli handshake failed").
			WithCause(err).WithRetryable(true).WithProvider("simli")
	}

	p.logger.Info("simli avatar started", zap.String("room", req.Room), zap.String("face_id", p.cfg.FaceID))

	return &streamSession{
		provider: "simli",
		conn:     conn,
		encode: func(pcm []byte) (websocket.MessageType, []byte, error) {
			return websocket.MessageBinary, Resample(pcm, InputSampleRate, simliSampleRate), nil
		},
		clearType: websocket.MessageText,
		clearMsg:  []byte(simliSkip),
		playout:   newPlayout(InputSampleRate, time.Now),
		logger:    p.logger.With(zap.String("room", req.Room)),
	}, nil
}
