package avatar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/pptagent/config"
	"github.com/BaSui01/pptagent/llm/realtime"
)

// InputSampleRate 实时模型输出音频的采样率
const InputSampleRate = 24000

// StartRequest 启动数字人所需的房间信息
type StartRequest struct {
	Room       string
	LiveKitURL string
	// Token 数字人入房使用的 access token
	Token string
	// Identity 数字人在房间中的身份
	Identity string
}

// Session 一个运行中的数字人
type Session interface {
	realtime.AudioSink
	// Close 断开音频流并结束数字人会话
	Close(ctx context.Context) error
}

// Provider 数字人服务
type Provider interface {
	Name() string
	Start(ctx context.Context, req StartRequest) (Session, error)
}

// New 按配置创建提供者
func New(cfg config.AvatarConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(cfg.Provider) {
	case "simli", "":
		return NewSimli(cfg.Simli, cfg.Timeout, logger), nil
	case "anam":
		return NewAnam(cfg.Anam, cfg.Timeout, logger), nil
	case "none":
		return NewNone(logger), nil
	default:
		return nil, fmt.Errorf("unsupported avatar provider: %s", cfg.Provider)
	}
}

// =============================================================================
// none
// =============================================================================

type noneProvider struct {
	logger *zap.Logger
}

// NewNone 不连接任何数字人服务的提供者
func NewNone(logger *zap.Logger) Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &noneProvider{logger: logger.With(zap.String("component", "avatar"), zap.String("provider", "none"))}
}

func (p *noneProvider) Name() string { return "none" }

func (p *noneProvider) Start(_ context.Context, req StartRequest) (Session, error) {
	p.logger.Info("avatar disabled, audio will be discarded", zap.String("room", req.Room))
	return &noneSession{playout: newPlayout(InputSampleRate, time.Now)}, nil
}

type noneSession struct {
	playout *playout
}

func (s *noneSession) CaptureFrame(_ context.Context, pcm []byte) error {
	s.playout.add(len(pcm))
	return nil
}

func (s *noneSession) Flush(ctx context.Context) error { return s.playout.wait(ctx) }

func (s *noneSession) ClearBuffer(context.Context) error {
	s.playout.reset()
	return nil
}

func (s *noneSession) Close(context.Context) error {
	s.playout.reset()
	return nil
}
