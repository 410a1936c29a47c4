package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/pptagent/llm/tools"
	"github.com/BaSui01/pptagent/types"
)

// ErrSessionClosed 会话已关闭或连接已断开
var ErrSessionClosed = errors.New("realtime session closed")

// Config 实时会话配置
type Config struct {
	BaseURL            string
	APIKey             string
	Model              string
	Voice              string
	Temperature        float64
	Instructions       string
	Tools              []types.ToolSchema
	SilenceDuration    time.Duration
	TranscriptionModel string
	DialTimeout        time.Duration
}

func (c Config) endpoint() (string, error) {
	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = "wss://api.openai.com"
	}
	u, err := url.Parse(base + "/v1/realtime")
	if err != nil {
		return "", fmt.Errorf("invalid realtime base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("model", c.Model)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c Config) session() *sessionConfig {
	sc := &sessionConfig{
		Modalities:        []string{"audio", "text"},
		Instructions:      c.Instructions,
		Voice:             c.Voice,
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
		TurnDetection: &turnDetection{
			Type:              "server_vad",
			Threshold:         0.5,
			PrefixPaddingMs:   300,
			SilenceDurationMs: int(c.SilenceDuration / time.Millisecond),
			CreateResponse:    true,
			InterruptResponse: true,
		},
		Tools:       toFunctionTools(c.Tools),
		ToolChoice:  "auto",
		Temperature: c.Temperature,
	}
	if c.TranscriptionModel != "" {
		sc.InputAudioTranscription = &transcriptionConfig{Model: c.TranscriptionModel}
	}
	return sc
}

// AudioSink 接收模型输出的 PCM16（24kHz 单声道）音频
type AudioSink interface {
	CaptureFrame(ctx context.Context, pcm []byte) error
	// Flush 标记当前回复的音频已全部写入，返回时音频已交付播放
	Flush(ctx context.Context) error
	// ClearBuffer 丢弃尚未播放的音频
	ClearBuffer(ctx context.Context) error
}

// Option 会话选项
type Option func(*Session)

// WithExecutor 设置函数调用执行器
func WithExecutor(e tools.Executor) Option {
	return func(s *Session) { s.executor = e }
}

// WithAudioSink 设置音频输出
func WithAudioSink(sink AudioSink) Option {
	return func(s *Session) { s.sink = sink }
}

// WithTranscriptHandler 接收双方的转写文本
func WithTranscriptHandler(fn func(types.Message)) Option {
	return func(s *Session) { s.onTranscript = fn }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Session 一条 Realtime WebSocket 连接
type Session struct {
	cfg          Config
	conn         *websocket.Conn
	executor     tools.Executor
	sink         AudioSink
	onTranscript func(types.Message)
	logger       *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	seq    atomic.Uint64

	mu           sync.Mutex
	closed       bool
	closeErr     error
	handles      map[string]*SpeechHandle // handle id -> handle
	byResponse   map[string]*SpeechHandle // response id -> handle
	eventHandles map[string]string        // response.create event id -> handle id
	pendingCalls map[string][]types.ToolCall
	active       string

	// 生成已结束但 sink 仍在播放的回复，Flush 返回前保持
	playing *SpeechHandle
	// sink 中可能还有未播放的音频（含无 handle 的回复）
	audible bool
}

// Dial 建立连接并发送 session.update
func Dial(ctx context.Context, cfg Config, opts ...Option) (*Session, error) {
	if cfg.APIKey == "" {
		return nil, types.NewError(types.ErrUnauthorized, "realtime api key is empty").WithProvider("openai")
	}
	endpoint, err := cfg.endpoint()
	if err != nil {
		return nil, err
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, resp, err := websocket.Dial(dialCtx, endpoint, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + cfg.APIKey},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			return nil, types.FromHTTPStatus(resp.StatusCode, "realtime dial rejected", "openai").WithCause(err)
		}
		return nil, types.NewError(types.ErrProviderUnavailable, "realtime dial failed").
			WithCause(err).WithRetryable(true).WithProvider("openai")
	}
	// 音频增量事件可能较大
	conn.SetReadLimit(16 << 20)

	sctx, scancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:          cfg,
		conn:         conn,
		logger:       zap.NewNop(),
		ctx:          sctx,
		cancel:       scancel,
		done:         make(chan struct{}),
		handles:      make(map[string]*SpeechHandle),
		byResponse:   make(map[string]*SpeechHandle),
		eventHandles: make(map[string]string),
		pendingCalls: make(map[string][]types.ToolCall),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "realtime"), zap.String("model", cfg.Model))

	if err := s.send(ctx, clientEvent{Type: evSessionUpdate, Session: cfg.session()}); err != nil {
		scancel()
		_ = conn.Close(websocket.StatusInternalError, "session.update failed")
		return nil, fmt.Errorf("send session.update: %w", err)
	}

	go s.readLoop()

	s.logger.Info("realtime session opened",
		zap.String("voice", cfg.Voice),
		zap.Int("tools", len(cfg.Tools)))
	return s, nil
}

// =============================================================================
// 对外操作
// =============================================================================

// GenerateReply 让模型按 instructions 生成一次回复
func (s *Session) GenerateReply(ctx context.Context, instructions string) (*SpeechHandle, error) {
	h := newSpeechHandle(uuid.NewString())
	eventID := s.nextEventID()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.handles[h.id] = h
	s.eventHandles[eventID] = h.id
	s.mu.Unlock()

	err := s.send(ctx, clientEvent{
		EventID: eventID,
		Type:    evResponseCreate,
		Response: &responseParams{
			Instructions: instructions,
			Metadata:     map[string]string{handleKey: h.id},
		},
	})
	if err != nil {
		s.mu.Lock()
		delete(s.handles, h.id)
		delete(s.eventHandles, eventID)
		s.mu.Unlock()
		return nil, err
	}
	return h, nil
}

// SendText 以用户身份发送一段文字并请求回复
func (s *Session) SendText(ctx context.Context, text string) error {
	err := s.send(ctx, clientEvent{
		Type: evItemCreate,
		Item: &conversationItem{
			Type:    "message",
			Role:    string(types.RoleUser),
			Content: []contentPart{{Type: "input_text", Text: text}},
		},
	})
	if err != nil {
		return err
	}
	s.emitTranscript(types.RoleUser, text)
	return s.send(ctx, clientEvent{Type: evResponseCreate})
}

// AppendAudio 追加用户音频（PCM16 24kHz），由服务端 VAD 切分话轮
func (s *Session) AppendAudio(ctx context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	return s.send(ctx, clientEvent{
		Type:  evInputAudioAppend,
		Audio: base64.StdEncoding.EncodeToString(pcm),
	})
}

// CommitAudio 手动提交音频缓冲
func (s *Session) CommitAudio(ctx context.Context) error {
	return s.send(ctx, clientEvent{Type: evInputAudioCommit})
}

// Interrupt 取消正在生成的回复，并丢弃 sink 中尚未播放的音频
func (s *Session) Interrupt(ctx context.Context) error {
	active, speaking := s.interruptCurrent()
	if !speaking || active == "" {
		return nil
	}
	return s.send(ctx, clientEvent{Type: evResponseCancel})
}

// interruptCurrent 标记当前回复被打断并清空播放缓冲。
// 当前回复是仍在生成的回复，或生成已结束但仍在播放的回复
func (s *Session) interruptCurrent() (active string, speaking bool) {
	s.mu.Lock()
	active = s.active
	h := s.byResponse[active]
	if h == nil {
		h = s.playing
	}
	speaking = active != "" || s.playing != nil || s.audible
	s.audible = false
	s.mu.Unlock()

	if h != nil {
		h.markInterrupted()
	}
	if speaking {
		s.clearSink()
	}
	return active, speaking
}

// UpdateInstructions 替换会话指令
func (s *Session) UpdateInstructions(ctx context.Context, instructions string) error {
	s.mu.Lock()
	s.cfg.Instructions = instructions
	cfg := s.cfg
	s.mu.Unlock()
	return s.send(ctx, clientEvent{Type: evSessionUpdate, Session: cfg.session()})
}

// Done 连接结束时关闭
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err 连接结束的原因
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeErr
}

// Close 关闭连接并结束所有未完成的回复
func (s *Session) Close() error {
	s.shutdown(ErrSessionClosed)
	// 读循环退出时连接可能已关闭，此处忽略重复关闭的错误
	_ = s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}

// =============================================================================
// 事件循环
// =============================================================================

func (s *Session) readLoop() {
	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Warn("realtime connection lost", zap.Error(err))
			}
			s.shutdown(fmt.Errorf("%w: %v", ErrSessionClosed, err))
			return
		}

		var ev serverEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.logger.Warn("invalid realtime event", zap.Error(err))
			continue
		}
		s.handleEvent(ev)
	}
}

func (s *Session) handleEvent(ev serverEvent) {
	switch ev.Type {
	case evSessionCreated, evSessionUpdated:
		s.logger.Debug("realtime session event", zap.String("type", ev.Type))

	case evResponseCreated:
		if ev.Response == nil {
			return
		}
		s.mu.Lock()
		s.active = ev.Response.ID
		if hid := ev.Response.Metadata[handleKey]; hid != "" {
			if h, ok := s.handles[hid]; ok {
				s.byResponse[ev.Response.ID] = h
			}
		}
		s.mu.Unlock()

	case evAudioDelta:
		if s.sink == nil || ev.Delta == "" {
			return
		}
		pcm, err := base64.StdEncoding.DecodeString(ev.Delta)
		if err != nil {
			s.logger.Warn("invalid audio delta", zap.Error(err))
			return
		}
		s.mu.Lock()
		s.audible = true
		s.mu.Unlock()
		if err := s.sink.CaptureFrame(s.ctx, pcm); err != nil {
			s.logger.Warn("audio sink write failed", zap.Error(err))
		}

	case evAudioTranscriptDone:
		s.mu.Lock()
		h := s.byResponse[ev.ResponseID]
		s.mu.Unlock()
		if h != nil {
			h.appendTranscript(ev.Transcript)
		}
		s.emitTranscript(types.RoleAssistant, ev.Transcript)

	case evInputTranscriptComplete:
		s.emitTranscript(types.RoleUser, ev.Transcript)

	case evFunctionArgsDone:
		args := json.RawMessage(ev.Arguments)
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		s.mu.Lock()
		s.pendingCalls[ev.ResponseID] = append(s.pendingCalls[ev.ResponseID], types.ToolCall{
			ID:        ev.CallID,
			Name:      ev.Name,
			Arguments: args,
		})
		s.mu.Unlock()

	case evSpeechStarted:
		s.interruptCurrent()

	case evResponseDone:
		if ev.Response != nil {
			s.onResponseDone(ev.Response)
		}

	case evError:
		s.onError(ev.Error)
	}
}

func (s *Session) onResponseDone(resp *responseObject) {
	s.mu.Lock()
	if s.active == resp.ID {
		s.active = ""
	}
	h := s.byResponse[resp.ID]
	delete(s.byResponse, resp.ID)
	calls := s.pendingCalls[resp.ID]
	delete(s.pendingCalls, resp.ID)
	s.mu.Unlock()

	switch resp.Status {
	case StatusCancelled:
		if h != nil {
			h.markInterrupted()
			s.finish(h, nil)
		}
	case StatusFailed:
		msg := "response failed"
		if d := resp.StatusDetails; d != nil && d.Error != nil && d.Error.Message != "" {
			msg = d.Error.Message
		}
		s.logger.Warn("realtime response failed", zap.String("response_id", resp.ID), zap.String("message", msg))
		if h != nil {
			s.finish(h, types.NewError(types.ErrUpstreamError, msg).WithProvider("openai").WithRetryable(true))
		}
	default:
		if len(calls) > 0 {
			go s.runTools(calls, h)
			return
		}
		if h != nil {
			s.mu.Lock()
			s.playing = h
			s.mu.Unlock()
			go s.playout(h)
		}
	}
}

// playout 等待 sink 播完回复音频后结束 handle。播放期间的打断会清空缓冲，使 Flush 提前返回
func (s *Session) playout(h *SpeechHandle) {
	if s.sink != nil {
		if err := s.sink.Flush(s.ctx); err != nil {
			s.logger.Warn("audio sink flush failed", zap.Error(err))
		}
	}
	s.mu.Lock()
	if s.playing == h {
		s.playing = nil
		if s.active == "" {
			s.audible = false
		}
	}
	s.mu.Unlock()
	s.finish(h, nil)
}

func (s *Session) onError(e *apiError) {
	if e == nil {
		return
	}
	s.logger.Warn("realtime error event",
		zap.String("type", e.Type),
		zap.String("code", e.Code),
		zap.String("message", e.Message))

	s.mu.Lock()
	hid, ok := s.eventHandles[e.EventID]
	h := s.handles[hid]
	s.mu.Unlock()
	if ok && h != nil {
		s.finish(h, types.NewError(types.ErrUpstreamError, e.Message).WithProvider("openai"))
	}
}

// runTools 执行函数调用，回传结果并请求模型继续
func (s *Session) runTools(calls []types.ToolCall, h *SpeechHandle) {
	var results []types.ToolResult
	if s.executor != nil {
		results = s.executor.Execute(s.ctx, calls)
	} else {
		for _, c := range calls {
			results = append(results, types.ToolResult{ToolCallID: c.ID, Name: c.Name, Error: "no tool executor"})
		}
	}

	for _, r := range results {
		s.logger.Debug("tool call completed",
			zap.String("name", r.Name),
			zap.String("output", r.Output()))
		err := s.send(s.ctx, clientEvent{
			Type: evItemCreate,
			Item: &conversationItem{Type: "function_call_output", CallID: r.ToolCallID, Output: r.Output()},
		})
		if err != nil {
			if h != nil {
				s.finish(h, err)
			}
			return
		}
	}

	params := &responseParams{}
	if h != nil {
		if h.Interrupted() {
			s.finish(h, nil)
		} else {
			params.Metadata = map[string]string{handleKey: h.id}
		}
	}
	if err := s.send(s.ctx, clientEvent{Type: evResponseCreate, Response: params}); err != nil && h != nil {
		s.finish(h, err)
	}
}

// =============================================================================
// 内部工具
// =============================================================================

func (s *Session) nextEventID() string {
	return "evt_" + strconv.FormatUint(s.seq.Add(1), 10)
}

func (s *Session) send(ctx context.Context, ev clientEvent) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}
	if ev.EventID == "" {
		ev.EventID = s.nextEventID()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ev.Type, err)
	}
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write %s: %w", ev.Type, err)
	}
	return nil
}

func (s *Session) finish(h *SpeechHandle, err error) {
	s.mu.Lock()
	delete(s.handles, h.id)
	for ev, hid := range s.eventHandles {
		if hid == h.id {
			delete(s.eventHandles, ev)
		}
	}
	s.mu.Unlock()
	h.finish(err)
}

func (s *Session) clearSink() {
	if s.sink == nil {
		return
	}
	if err := s.sink.ClearBuffer(s.ctx); err != nil {
		s.logger.Warn("audio sink clear failed", zap.Error(err))
	}
}

func (s *Session) emitTranscript(role types.Role, text string) {
	if s.onTranscript == nil || strings.TrimSpace(text) == "" {
		return
	}
	s.onTranscript(types.NewMessage(role, text))
}

func (s *Session) shutdown(cause error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.closeErr = cause
	pending := make([]*SpeechHandle, 0, len(s.handles))
	for _, h := range s.handles {
		pending = append(pending, h)
	}
	s.handles = make(map[string]*SpeechHandle)
	s.byResponse = make(map[string]*SpeechHandle)
	s.playing = nil
	s.mu.Unlock()

	s.cancel()
	for _, h := range pending {
		h.finish(cause)
	}
	close(s.done)
	s.logger.Info("realtime session closed", zap.NamedError("cause", cause))
}
