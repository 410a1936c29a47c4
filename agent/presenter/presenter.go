package presenter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/pptagent/agent/avatar"
	"github.com/BaSui01/pptagent/config"
	"github.com/BaSui01/pptagent/internal/livekit"
	"github.com/BaSui01/pptagent/internal/slides"
	"github.com/BaSui01/pptagent/llm/realtime"
	"github.com/BaSui01/pptagent/llm/retry"
	"github.com/BaSui01/pptagent/llm/tokenizer"
	"github.com/BaSui01/pptagent/llm/tools"
	"github.com/BaSui01/pptagent/types"
)

var (
	// ErrNoPresentationID 超时仍未在参会者 metadata 中找到 presentation_id
	ErrNoPresentationID = errors.New("no presentation_id found in participant metadata")
	// ErrNotReady 会话尚未进入演示阶段或已结束
	ErrNotReady = errors.New("presentation session is not ready")
	// ErrSpeechTimeout 单页讲解未在 speech_timeout 内播放完
	ErrSpeechTimeout = errors.New("slide speech timed out")
)

// State 会话阶段
type State string

const (
	StateWaiting    State = "waiting"
	StateLoading    State = "loading"
	StatePresenting State = "presenting"
	StateQA         State = "qa"
	StateClosed     State = "closed"
)

const (
	maxTranscript      = 100
	cleanupTimeout     = 10 * time.Second
	transcriptionModel = "whisper-1"
)

// Config 单个会话的配置
type Config struct {
	Room          string
	AgentIdentity string
	AgentName     string
	Persona       string
	LiveKit       config.LiveKitConfig
	Realtime      config.RealtimeConfig
	Presenter     config.PresenterConfig
}

// Observer 接收讲解与数字人启动结果，*metrics.Collector 实现了该接口
type Observer interface {
	RecordSpeech(status string, duration time.Duration)
	RecordAvatarStart(provider string, err error)
}

type nopObserver struct{}

func (nopObserver) RecordSpeech(string, time.Duration) {}
func (nopObserver) RecordAvatarStart(string, error)    {}

// Deps 会话依赖
type Deps struct {
	Rooms     RoomService
	Slides    slides.Store
	Avatar    avatar.Provider
	Dial      Dialer
	Tokenizer tokenizer.Tokenizer
	Observer  Observer
	Logger    *zap.Logger
}

// Snapshot 会话状态快照
type Snapshot struct {
	Room            string          `json:"room"`
	State           State           `json:"state"`
	PresentationID  string          `json:"presentation_id,omitempty"`
	ContextMode     string          `json:"context_mode,omitempty"`
	CurrentSlide    int             `json:"current_slide"`
	TotalSlides     int             `json:"total_slides"`
	SlidesPresented int             `json:"slides_presented"`
	Completed       bool            `json:"completed"`
	StartedAt       time.Time       `json:"started_at"`
	Error           string          `json:"error,omitempty"`
	Transcript      []types.Message `json:"transcript,omitempty"`
}

// Presenter 一个房间的演示会话
type Presenter struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
	tracer trace.Tracer

	mu             sync.RWMutex
	state          State
	presentationID string
	mode           string
	total          int
	current        int
	presented      int
	completed      bool
	startedAt      time.Time
	err            error
	nav            *Navigator
	conv           Conversation
	avatar         avatar.Session
	transcript     []types.Message
}

// New 创建会话，缺省依赖使用默认实现
func New(cfg Config, deps Deps) *Presenter {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Dial == nil {
		deps.Dial = DialRealtime
	}
	if deps.Avatar == nil {
		deps.Avatar = avatar.NewNone(deps.Logger)
	}
	if deps.Tokenizer == nil {
		deps.Tokenizer = tokenizer.ForModel(cfg.Realtime.Model)
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if cfg.Persona == "" {
		cfg.Persona = DefaultPersona
	}
	return &Presenter{
		cfg:       cfg,
		deps:      deps,
		logger:    deps.Logger.With(zap.String("component", "presenter"), zap.String("room", cfg.Room)),
		tracer:    otel.Tracer("github.com/BaSui01/pptagent/agent/presenter"),
		state:     StateWaiting,
		startedAt: time.Now(),
	}
}

// =============================================================================
// 🎬 主流程
// =============================================================================

// Run 执行完整的演示流程，返回时所有资源已释放。
// 房间清空时返回 nil，ctx 取消时返回 ctx.Err()。
func (p *Presenter) Run(ctx context.Context) (err error) {
	ctx, span := p.tracer.Start(ctx, "presenter.Run",
		trace.WithAttributes(attribute.String("livekit.room", p.cfg.Room)))
	defer func() {
		if err != nil && !errors.Is(err, context.Canceled) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	p.logger.Info("initializing presentation session")
	defer p.cleanup()

	err = p.run(ctx, span)
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	return err
}

func (p *Presenter) run(ctx context.Context, span trace.Span) error {
	pid, err := p.waitForPresentation(ctx)
	if err != nil {
		return err
	}
	p.logger.Info("verified presentation id", zap.String("presentation_id", pid))
	span.SetAttributes(attribute.String("presentation.id", pid))
	p.setState(StateLoading, func() { p.presentationID = pid })

	deck, err := p.deps.Slides.LoadDeck(ctx, pid)
	if err != nil {
		return fmt.Errorf("load deck %s: %w", pid, err)
	}
	stats := slides.ContentStats(deck)
	p.logger.Info("slides loaded",
		zap.Int("total", stats.Total),
		zap.Int("with_text", stats.WithText),
		zap.Ints("missing_text", stats.MissingText))
	span.SetAttributes(attribute.Int("presentation.slides", len(deck)))

	pc := p.cfg.Presenter
	nav := NewNavigator(deck, RoomDisplay{
		Rooms:    p.deps.Rooms,
		Room:     p.cfg.Room,
		Identity: p.cfg.AgentIdentity,
	}, pc.CompactToolReplies, p.logger)

	mode, tokens := ResolveMode(pc.ContextMode, p.cfg.Persona, deck, p.deps.Tokenizer, pc.MaxContextTokens)
	if mode != pc.ContextMode && pc.ContextMode != "" {
		p.logger.Warn("presentation context exceeds token budget, using overview mode",
			zap.Int("tokens", tokens), zap.Int("budget", pc.MaxContextTokens))
	}

	reg := tools.NewDefaultRegistry(p.logger)
	if err := RegisterTools(reg, nav); err != nil {
		return fmt.Errorf("register navigation tools: %w", err)
	}

	av, err := p.startAvatar(ctx)
	if err != nil {
		return err
	}
	p.setState(StateLoading, func() { p.avatar = av })

	rc := p.cfg.Realtime
	conv, err := p.deps.Dial(ctx, realtime.Config{
		BaseURL:            rc.BaseURL,
		APIKey:             rc.APIKey,
		Model:              rc.Model,
		Voice:              rc.Voice,
		Temperature:        rc.Temperature,
		Instructions:       BuildInstructions(p.cfg.Persona, deck, mode),
		Tools:              reg.List(),
		SilenceDuration:    rc.EndpointingDelay,
		TranscriptionModel: transcriptionModel,
		DialTimeout:        rc.DialTimeout,
	},
		realtime.WithExecutor(tools.NewDefaultExecutor(reg, p.logger)),
		realtime.WithAudioSink(av),
		realtime.WithTranscriptHandler(p.recordTranscript),
		realtime.WithLogger(p.logger),
	)
	if err != nil {
		return fmt.Errorf("open realtime conversation: %w", err)
	}
	p.logger.Info("conversation started with navigation tools", zap.String("context_mode", mode), zap.Int("tokens", tokens))

	p.setState(StatePresenting, func() {
		p.conv = conv
		p.nav = nav
		p.mode = mode
		p.total = len(deck)
	})

	completed, err := p.present(ctx, conv, nav, deck, mode)
	if err != nil {
		return err
	}

	if completed {
		p.setState(StatePresenting, func() { p.completed = true })
		p.logger.Info("all slides presented")
		if err := p.speak(ctx, conv, ThankYouMessage); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Error("error in final message", zap.Error(err))
		}
	}

	p.logger.Info("presentation complete, entering interactive Q&A")
	p.setState(StateQA, nil)
	return p.keepAlive(ctx, conv)
}

// present 自动逐页讲解，全部讲完返回 true，被用户打断返回 false
func (p *Presenter) present(ctx context.Context, conv Conversation, nav *Navigator, deck []slides.Slide, mode string) (bool, error) {
	pc := p.cfg.Presenter
	retryer := retry.New(retry.Policy{
		MaxAttempts: pc.SpeechMaxAttempts,
		Delay:       pc.SpeechRetryDelay,
		Multiplier:  1,
		ShouldRetry: func(err error) bool {
			return ctx.Err() == nil && !errors.Is(err, realtime.ErrSessionClosed) && !errors.Is(err, ErrSpeechTimeout)
		},
		OnRetry: func(attempt int, err error, delay time.Duration) {
			p.logger.Warn("speech attempt failed, retrying",
				zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
		},
	}, p.logger)

	p.logger.Info("starting presentation sequence")
	total := len(deck)
	idx := nav.Index()
	for idx < total {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		s := deck[idx]
		no := slides.Number(s, idx)

		if !s.HasImage() {
			p.logger.Warn("slide has no image, skipping", zap.Int("slide", no))
			idx = nav.AdvanceFrom(idx)
			continue
		}
		if err := nav.Publish(ctx, idx, no); err != nil {
			p.logger.Error("failed to set slide attributes", zap.Int("slide", no), zap.Error(err))
			idx = nav.AdvanceFrom(idx)
			continue
		}
		p.logger.Info("displaying slide", zap.Int("slide", no), zap.Int("total", total))

		instruction := SlideInstruction(deck, idx, mode, pc.ContextWindow)
		sctx, span := p.tracer.Start(ctx, "presenter.slide", trace.WithAttributes(attribute.Int("slide.number", no)))
		began := time.Now()
		speech, err := retry.Do(sctx, retryer, func(ctx context.Context, attempt int) (Speech, error) {
			return p.speakSlide(ctx, conv, instruction, pc.SpeechTimeout)
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		p.deps.Observer.RecordSpeech(speechStatus(speech, err), time.Since(began))

		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			if errors.Is(err, realtime.ErrSessionClosed) {
				return false, fmt.Errorf("realtime conversation lost: %w", err)
			}
			p.logger.Error("error presenting slide", zap.Int("slide", no), zap.Error(err))
			idx = nav.AdvanceFrom(idx)
			continue
		}

		if speech.Interrupted() {
			p.logger.Info("slide presentation interrupted, stopping auto-advance", zap.Int("slide", no))
			return false, nil
		}

		p.setState(StatePresenting, func() { p.presented++ })
		p.logger.Info("completed slide", zap.Int("slide", no))

		if err := sleepCtx(ctx, pc.SlidePause); err != nil {
			return false, err
		}
		idx = nav.AdvanceFrom(idx)
	}
	return true, nil
}

// speakSlide 生成并播放一页讲解，超过 timeout 时打断当前回复并返回 ErrSpeechTimeout
func (p *Presenter) speakSlide(ctx context.Context, conv Conversation, instruction string, timeout time.Duration) (Speech, error) {
	if timeout <= 0 {
		return p.generate(ctx, conv, instruction)
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	h, err := p.generate(tctx, conv, instruction)
	if err != nil && ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
		if ierr := conv.Interrupt(ctx); ierr != nil {
			p.logger.Warn("failed to interrupt timed out speech", zap.Error(ierr))
		}
		return nil, fmt.Errorf("%w after %s", ErrSpeechTimeout, timeout)
	}
	return h, err
}

func (p *Presenter) generate(ctx context.Context, conv Conversation, instruction string) (Speech, error) {
	h, err := conv.GenerateReply(ctx, instruction)
	if err != nil {
		return nil, err
	}
	if err := h.WaitForPlayout(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

func (p *Presenter) speak(ctx context.Context, conv Conversation, instructions string) error {
	h, err := conv.GenerateReply(ctx, instructions)
	if err != nil {
		return err
	}
	return h.WaitForPlayout(ctx)
}

// =============================================================================
// 🔍 等待 presentation_id
// =============================================================================

func (p *Presenter) waitForPresentation(ctx context.Context) (string, error) {
	pc := p.cfg.Presenter
	if err := sleepCtx(ctx, pc.MetadataInitialDelay); err != nil {
		return "", err
	}

	waitCtx, cancel := context.WithTimeout(ctx, pc.MetadataTimeout)
	defer cancel()

	interval := pc.MetadataPollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	for {
		pid, err := p.findPresentationID(waitCtx)
		switch {
		case err != nil && waitCtx.Err() == nil:
			p.logger.Warn("list participants failed", zap.Error(err))
		case pid != "":
			return pid, nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			p.logger.Error("no presentation_id found in metadata", zap.Duration("waited", pc.MetadataInitialDelay+pc.MetadataTimeout))
			return "", ErrNoPresentationID
		case <-time.After(interval):
		}
	}
}

func (p *Presenter) findPresentationID(ctx context.Context) (string, error) {
	participants, err := p.deps.Rooms.ListParticipants(ctx, p.cfg.Room)
	if err != nil {
		return "", err
	}
	for _, part := range participants {
		if part.Identity == p.cfg.AgentIdentity || !part.IsAudience() {
			continue
		}
		if pid := ParsePresentationID(part.Metadata); pid != "" {
			return pid, nil
		}
	}
	return "", nil
}

// ParsePresentationID 从参会者 metadata 中取出 presentation_id。
// metadata 可以直接是 id，也可以是 {"presentation_id": "..."} 形式的 JSON。
func ParsePresentationID(metadata string) string {
	md := strings.TrimSpace(metadata)
	if !strings.HasPrefix(md, "{") {
		return md
	}
	var obj struct {
		PresentationID      string `json:"presentation_id"`
		PresentationIDCamel string `json:"presentationId"`
	}
	if err := json.Unmarshal([]byte(md), &obj); err != nil {
		return md
	}
	if obj.PresentationID != "" {
		return obj.PresentationID
	}
	return obj.PresentationIDCamel
}

// =============================================================================
// 🧑‍🤝‍🧑 数字人与问答
// =============================================================================

func (p *Presenter) startAvatar(ctx context.Context) (avatar.Session, error) {
	lk := p.cfg.LiveKit
	token, err := livekit.MintToken(lk.APIKey, lk.APISecret, livekit.TokenRequest{
		Identity: p.cfg.AgentIdentity,
		Name:     p.cfg.AgentName,
		Kind:     livekit.KindAgent,
		Grant:    livekit.AgentGrant(p.cfg.Room),
		TTL:      lk.TokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("mint avatar token: %w", err)
	}

	av, err := p.deps.Avatar.Start(ctx, avatar.StartRequest{
		Room:       p.cfg.Room,
		LiveKitURL: lk.URL,
		Token:      token,
		Identity:   p.cfg.AgentIdentity,
	})
	p.deps.Observer.RecordAvatarStart(p.deps.Avatar.Name(), err)
	if err != nil {
		return nil, fmt.Errorf("start %s avatar: %w", p.deps.Avatar.Name(), err)
	}
	p.logger.Info("avatar started", zap.String("provider", p.deps.Avatar.Name()))
	return av, nil
}

// keepAlive 问答阶段：房间没有观众时返回 nil
func (p *Presenter) keepAlive(ctx context.Context, conv Conversation) error {
	interval := p.cfg.Presenter.KeepAliveInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("keep alive cancelled")
			return ctx.Err()
		case <-conv.Done():
			return fmt.Errorf("realtime conversation lost: %w", realtime.ErrSessionClosed)
		case <-ticker.C:
			participants, err := p.deps.Rooms.ListParticipants(ctx, p.cfg.Room)
			if err != nil {
				p.logger.Warn("list participants failed", zap.Error(err))
				continue
			}
			if !p.hasAudience(participants) {
				p.logger.Info("room has no audience, ending session")
				return nil
			}
		}
	}
}

func (p *Presenter) hasAudience(participants []livekit.Participant) bool {
	for _, part := range participants {
		if part.Identity != p.cfg.AgentIdentity && part.IsAudience() {
			return true
		}
	}
	return false
}

// cleanup 每一步失败都只记录日志
func (p *Presenter) cleanup() {
	p.logger.Info("starting cleanup")
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	p.mu.Lock()
	conv, av := p.conv, p.avatar
	p.mu.Unlock()

	if conv != nil {
		if err := conv.Close(); err != nil {
			p.logger.Error("error closing conversation", zap.Error(err))
		} else {
			p.logger.Info("conversation closed")
		}
	}
	if av != nil {
		if err := av.Close(ctx); err != nil {
			p.logger.Error("error stopping avatar", zap.Error(err))
		}
		if err := p.deps.Rooms.RemoveParticipant(ctx, p.cfg.Room, p.cfg.AgentIdentity); err != nil {
			if types.GetErrorCode(err) == types.ErrNotFound {
				p.logger.Debug("agent participant already left")
			} else {
				p.logger.Error("error disconnecting", zap.Error(err))
			}
		} else {
			p.logger.Info("disconnected from room")
		}
	}

	p.setState(StateClosed, func() {
		if p.nav != nil {
			p.current = min(p.nav.Index()+1, p.total)
		}
		p.conv = nil
		p.avatar = nil
		p.nav = nil
	})
	p.logger.Info("cleanup complete")
}

// =============================================================================
// 🎛️ 外部控制
// =============================================================================

// Snapshot 当前状态
func (p *Presenter) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := Snapshot{
		Room:            p.cfg.Room,
		State:           p.state,
		PresentationID:  p.presentationID,
		ContextMode:     p.mode,
		TotalSlides:     p.total,
		SlidesPresented: p.presented,
		Completed:       p.completed,
		StartedAt:       p.startedAt,
		Transcript:      append([]types.Message(nil), p.transcript...),
	}
	snap.CurrentSlide = p.current
	if p.nav != nil {
		snap.CurrentSlide = min(p.nav.Index()+1, p.total)
	}
	if p.err != nil {
		snap.Error = p.err.Error()
	}
	return snap
}

// Navigate 外部翻页，action 为 next、previous 或 goto
func (p *Presenter) Navigate(ctx context.Context, action string, number int) (string, error) {
	p.mu.RLock()
	nav := p.nav
	p.mu.RUnlock()
	if nav == nil {
		return "", ErrNotReady
	}

	switch action {
	case "next":
		return nav.Next(ctx), nil
	case "previous", "prev":
		return nav.Previous(ctx), nil
	case "goto":
		return nav.Goto(ctx, number), nil
	default:
		return "", types.NewError(types.ErrInvalidRequest, "unknown navigation action: "+action)
	}
}

// SendText 以用户身份发送文字
func (p *Presenter) SendText(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return types.NewError(types.ErrInvalidRequest, "text is required")
	}
	conv, err := p.conversation()
	if err != nil {
		return err
	}
	return conv.SendText(ctx, text)
}

// Interrupt 打断当前讲解
func (p *Presenter) Interrupt(ctx context.Context) error {
	conv, err := p.conversation()
	if err != nil {
		return err
	}
	return conv.Interrupt(ctx)
}

// AppendAudio 转发用户音频（PCM16 24kHz）
func (p *Presenter) AppendAudio(ctx context.Context, pcm []byte) error {
	conv, err := p.conversation()
	if err != nil {
		return err
	}
	return conv.AppendAudio(ctx, pcm)
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func (p *Presenter) conversation() (Conversation, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.conv == nil {
		return nil, ErrNotReady
	}
	return p.conv, nil
}

func (p *Presenter) setState(s State, fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fn != nil {
		fn()
	}
	if p.state != s {
		p.logger.Debug("state changed", zap.String("from", string(p.state)), zap.String("to", string(s)))
		p.state = s
	}
}

func (p *Presenter) recordTranscript(m types.Message) {
	p.logger.Debug("transcript", zap.String("role", string(m.Role)), zap.String("text", m.Content))
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transcript = append(p.transcript, m)
	if n := len(p.transcript); n > maxTranscript {
		p.transcript = append([]types.Message(nil), p.transcript[n-maxTranscript:]...)
	}
}

func speechStatus(s Speech, err error) string {
	switch {
	case errors.Is(err, ErrSpeechTimeout):
		return "timeout"
	case err != nil:
		return "failed"
	case s.Interrupted():
		return "interrupted"
	default:
		return "completed"
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
