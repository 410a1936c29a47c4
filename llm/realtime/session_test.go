package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/pptagent/llm/tools"
	"github.com/BaSui01/pptagent/types"
)

// ---------------------------------------------------------------------------
// 测试辅助
// ---------------------------------------------------------------------------

type scriptFunc func(ctx context.Context, conn *websocket.Conn, ev clientEvent)

func newFakeServer(t *testing.T, script scriptFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "realtime=v1", r.Header.Get("OpenAI-Beta"))
		assert.Equal(t, "/v1/realtime", r.URL.Path)
		assert.Equal(t, "gpt-4o-realtime-preview", r.URL.Query().Get("model"))

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		conn.SetReadLimit(16 << 20)

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			var ev clientEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				return
			}
			script(r.Context(), conn, ev)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func emit(ctx context.Context, conn *websocket.Conn, ev map[string]any) {
	data, _ := json.Marshal(ev)
	_ = conn.Write(ctx, websocket.MessageText, data)
}

func testConfig(srv *httptest.Server) Config {
	return Config{
		BaseURL:         srv.URL,
		APIKey:          "sk-test",
		Model:           "gpt-4o-realtime-preview",
		Voice:           "alloy",
		Temperature:     0.8,
		Instructions:    "You are Dia.",
		SilenceDuration: 500 * time.Millisecond,
		Tools: []types.ToolSchema{{
			Name:        "next_slide",
			Description: "Move to the next slide in the presentation",
			Parameters:  tools.ObjectSchema(nil),
		}},
	}
}

type recordingSink struct {
	mu      sync.Mutex
	audio   []byte
	flushes int
	clears  int
}

func (s *recordingSink) CaptureFrame(_ context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, pcm...)
	return nil
}

func (s *recordingSink) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

func (s *recordingSink) ClearBuffer(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
	return nil
}

func (s *recordingSink) snapshot() (string, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.audio), s.flushes, s.clears
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// ---------------------------------------------------------------------------
// 测试用例
// ---------------------------------------------------------------------------

func TestDial_SendsSessionUpdate(t *testing.T) {
	got := make(chan *sessionConfig, 1)
	srv := newFakeServer(t, func(ctx context.Context, conn *websocket.Conn, ev clientEvent) {
		if ev.Type == evSessionUpdate {
			got <- ev.Session
		}
	})

	s, err := Dial(waitCtx(t), testConfig(srv))
	require.NoError(t, err)
	defer s.Close()

	select {
	case sc := <-got:
		assert.Equal(t, "You are Dia.", sc.Instructions)
		assert.Equal(t, "alloy", sc.Voice)
		assert.Equal(t, []string{"audio", "text"}, sc.Modalities)
		assert.Equal(t, "pcm16", sc.OutputAudioFormat)
		require.NotNil(t, sc.TurnDetection)
		assert.Equal(t, "server_vad", sc.TurnDetection.Type)
		assert.Equal(t, 500, sc.TurnDetection.SilenceDurationMs)
		require.Len(t, sc.Tools, 1)
		assert.Equal(t, "function", sc.Tools[0].Type)
		assert.Equal(t, "next_slide", sc.Tools[0].Name)
		assert.Equal(t, "auto", sc.ToolChoice)
	case <-time.After(5 * time.Second):
		t.Fatal("session.update not received")
	}
}

func TestDial_Errors(t *testing.T) {
	_, err := Dial(context.Background(), Config{})
	assert.Equal(t, types.ErrUnauthorized, types.GetErrorCode(err))

	srv := newFakeServer(t, func(context.Context, *websocket.Conn, clientEvent) {})
	cfg := testConfig(srv)
	cfg.APIKey = "wrong"
	_, err = Dial(waitCtx(t), cfg)
	require.Error(t, err)
	assert.Equal(t, types.ErrUnauthorized, types.GetErrorCode(err))
}

func TestGenerateReply_Completes(t *testing.T) {
	srv := newFakeServer(t, func(ctx context.Context, conn *websocket.Conn, ev clientEvent) {
		if ev.Type != evResponseCreate {
			return
		}
		assert.Equal(t, "Slide 1: Intro", ev.Response.Instructions)
		emit(ctx, conn, map[string]any{"type": evResponseCreated, "response": map[string]any{
			"id": "resp_1", "status": "in_progress", "metadata": ev.Response.Metadata,
		}})
		emit(ctx, conn, map[string]any{"type": evAudioDelta, "response_id": "resp_1",
			"delta": base64.StdEncoding.EncodeToString([]byte("pcm-bytes"))})
		emit(ctx, conn, map[string]any{"type": evAudioTranscriptDone, "response_id": "resp_1", "transcript": "Welcome everyone."})
		emit(ctx, conn, map[string]any{"type": evResponseDone, "response": map[string]any{"id": "resp_1", "status": "completed"}})
	})

	sink := &recordingSink{}
	var transcripts []types.Message
	var tmu sync.Mutex
	s, err := Dial(waitCtx(t), testConfig(srv), WithAudioSink(sink), WithTranscriptHandler(func(m types.Message) {
		tmu.Lock()
		transcripts = append(transcripts, m)
		tmu.Unlock()
	}))
	require.NoError(t, err)
	defer s.Close()

	h, err := s.GenerateReply(waitCtx(t), "Slide 1: Intro")
	require.NoError(t, err)
	require.NoError(t, h.WaitForPlayout(waitCtx(t)))

	assert.False(t, h.Interrupted())
	assert.Equal(t, "Welcome everyone.", h.Transcript())
	audio, flushes, _ := sink.snapshot()
	assert.Equal(t, "pcm-bytes", audio)
	assert.Equal(t, 1, flushes)

	tmu.Lock()
	defer tmu.Unlock()
	require.Len(t, transcripts, 1)
	assert.Equal(t, types.RoleAssistant, transcripts[0].Role)
}

func TestGenerateReply_ToolCallContinuesHandle(t *testing.T) {
	outputs := make(chan string, 1)
	var creates atomic.Int32
	srv := newFakeServer(t, func(ctx context.Context, conn *websocket.Conn, ev clientEvent) {
		switch ev.Type {
		case evResponseCreate:
			n := creates.Add(1)
			id := "resp_1"
			if n > 1 {
				id = "resp_2"
			}
			emit(ctx, conn, map[string]any{"type": evResponseCreated, "response": map[string]any{
				"id": id, "metadata": ev.Response.Metadata,
			}})
			if n == 1 {
				emit(ctx, conn, map[string]any{"type": evFunctionArgsDone, "response_id": id,
					"call_id": "call_1", "name": "next_slide", "arguments": "{}"})
			}
			emit(ctx, conn, map[string]any{"type": evResponseDone, "response": map[string]any{"id": id, "status": "completed"}})
		case evItemCreate:
			if ev.Item.Type == "function_call_output" {
				assert.Equal(t, "call_1", ev.Item.CallID)
				outputs <- ev.Item.Output
			}
		}
	})

	reg := tools.NewDefaultRegistry(nil)
	require.NoError(t, reg.Register("next_slide", func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return tools.Message("Now on slide 2 of 3. Agenda"), nil
	}, tools.Metadata{}))

	s, err := Dial(waitCtx(t), testConfig(srv), WithExecutor(tools.NewDefaultExecutor(reg, nil)))
	require.NoError(t, err)
	defer s.Close()

	h, err := s.GenerateReply(waitCtx(t), "go on")
	require.NoError(t, err)
	require.NoError(t, h.WaitForPlayout(waitCtx(t)))

	select {
	case out := <-outputs:
		assert.Equal(t, "Now on slide 2 of 3. Agenda", out)
	case <-time.After(5 * time.Second):
		t.Fatal("function_call_output not sent")
	}
	assert.Equal(t, int32(2), creates.Load())
}

func TestGenerateReply_Interrupted(t *testing.T) {
	srv := newFakeServer(t, func(ctx context.Context, conn *websocket.Conn, ev clientEvent) {
		if ev.Type != evResponseCreate {
			return
		}
		emit(ctx, conn, map[string]any{"type": evResponseCreated, "response": map[string]any{
			"id": "resp_1", "metadata": ev.Response.Metadata,
		}})
		emit(ctx, conn, map[string]any{"type": evSpeechStarted, "item_id": "item_1"})
		emit(ctx, conn, map[string]any{"type": evResponseDone, "response": map[string]any{
			"id": "resp_1", "status": "cancelled", "status_details": map[string]any{"type": "cancelled", "reason": "turn_detected"},
		}})
	})

	sink := &recordingSink{}
	s, err := Dial(waitCtx(t), testConfig(srv), WithAudioSink(sink))
	require.NoError(t, err)
	defer s.Close()

	h, err := s.GenerateReply(waitCtx(t), "Slide 2")
	require.NoError(t, err)
	require.NoError(t, h.WaitForPlayout(waitCtx(t)))
	assert.True(t, h.Interrupted())
	_, _, clears := sink.snapshot()
	assert.GreaterOrEqual(t, clears, 1)
}

// blockingSink 的 Flush 模拟数字人播放：直到 ClearBuffer 或超时才返回
type blockingSink struct {
	recordingSink
	flushing chan struct{}
	cleared  chan struct{}
	once     sync.Once
	clear    sync.Once
}

func newBlockingSink() *blockingSink {
	return &blockingSink{flushing: make(chan struct{}), cleared: make(chan struct{})}
}

func (s *blockingSink) Flush(ctx context.Context) error {
	_ = s.recordingSink.Flush(ctx)
	s.once.Do(func() { close(s.flushing) })
	select {
	case <-s.cleared:
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
	}
	return nil
}

func (s *blockingSink) ClearBuffer(ctx context.Context) error {
	_ = s.recordingSink.ClearBuffer(ctx)
	s.clear.Do(func() { close(s.cleared) })
	return nil
}

type serverConn struct {
	ctx  context.Context
	conn *websocket.Conn
}

// newPlayoutServer 对每次 response.create 回复一段音频后立即 completed，并记录取消请求
func newPlayoutServer(t *testing.T, cancels *atomic.Int32) (*httptest.Server, <-chan serverConn) {
	t.Helper()
	conns := make(chan serverConn, 1)
	srv := newFakeServer(t, func(ctx context.Context, conn *websocket.Conn, ev clientEvent) {
		switch ev.Type {
		case evResponseCancel:
			cancels.Add(1)
		case evResponseCreate:
			emit(ctx, conn, map[string]any{"type": evResponseCreated, "response": map[string]any{
				"id": "resp_1", "metadata": ev.Response.Metadata,
			}})
			emit(ctx, conn, map[string]any{"type": evAudioDelta, "response_id": "resp_1",
				"delta": base64.StdEncoding.EncodeToString([]byte("long-answer"))})
			emit(ctx, conn, map[string]any{"type": evResponseDone, "response": map[string]any{"id": "resp_1", "status": "completed"}})
			conns <- serverConn{ctx: ctx, conn: conn}
		}
	})
	return srv, conns
}

func waitFlushing(t *testing.T, sink *blockingSink) {
	t.Helper()
	select {
	case <-sink.flushing:
	case <-time.After(5 * time.Second):
		t.Fatal("playout never started")
	}
}

func TestSpeechStartedDuringPlayoutInterrupts(t *testing.T) {
	var cancels atomic.Int32
	srv, conns := newPlayoutServer(t, &cancels)
	sink := newBlockingSink()
	s, err := Dial(waitCtx(t), testConfig(srv), WithAudioSink(sink))
	require.NoError(t, err)
	defer s.Close()

	h, err := s.GenerateReply(waitCtx(t), "Slide 4")
	require.NoError(t, err)
	waitFlushing(t, sink)

	// 生成已结束，数字人仍在播放时观众开口
	sc := <-conns
	emit(sc.ctx, sc.conn, map[string]any{"type": evSpeechStarted, "item_id": "item_2"})

	start := time.Now()
	require.NoError(t, h.WaitForPlayout(waitCtx(t)))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, h.Interrupted())
	_, _, clears := sink.snapshot()
	assert.Equal(t, 1, clears)
}

func TestInterruptDuringPlayout(t *testing.T) {
	var cancels atomic.Int32
	srv, _ := newPlayoutServer(t, &cancels)
	sink := newBlockingSink()
	s, err := Dial(waitCtx(t), testConfig(srv), WithAudioSink(sink))
	require.NoError(t, err)
	defer s.Close()

	h, err := s.GenerateReply(waitCtx(t), "Slide 5")
	require.NoError(t, err)
	waitFlushing(t, sink)

	require.NoError(t, s.Interrupt(waitCtx(t)))
	require.NoError(t, h.WaitForPlayout(waitCtx(t)))
	assert.True(t, h.Interrupted())
	_, _, clears := sink.snapshot()
	assert.Equal(t, 1, clears)
	// 服务端已没有进行中的回复，不发送 response.cancel
	assert.Equal(t, int32(0), cancels.Load())
}

func TestGenerateReply_Failed(t *testing.T) {
	srv := newFakeServer(t, func(ctx context.Context, conn *websocket.Conn, ev clientEvent) {
		if ev.Type != evResponseCreate {
			return
		}
		emit(ctx, conn, map[string]any{"type": evResponseCreated, "response": map[string]any{
			"id": "resp_1", "metadata": ev.Response.Metadata,
		}})
		emit(ctx, conn, map[string]any{"type": evResponseDone, "response": map[string]any{
			"id": "resp_1", "status": "failed",
			"status_details": map[string]any{"type": "failed", "error": map[string]any{"message": "server overloaded"}},
		}})
	})

	s, err := Dial(waitCtx(t), testConfig(srv))
	require.NoError(t, err)
	defer s.Close()

	h, err := s.GenerateReply(waitCtx(t), "Slide 3")
	require.NoError(t, err)
	err = h.WaitForPlayout(waitCtx(t))
	require.Error(t, err)
	assert.Equal(t, types.ErrUpstreamError, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "server overloaded")
}

func TestGenerateReply_ErrorEventFailsHandle(t *testing.T) {
	srv := newFakeServer(t, func(ctx context.Context, conn *websocket.Conn, ev clientEvent) {
		if ev.Type == evResponseCreate {
			emit(ctx, conn, map[string]any{"type": evError, "error": map[string]any{
				"type": "invalid_request_error", "message": "Conversation already has an active response", "event_id": ev.EventID,
			}})
		}
	})

	s, err := Dial(waitCtx(t), testConfig(srv))
	require.NoError(t, err)
	defer s.Close()

	h, err := s.GenerateReply(waitCtx(t), "Slide 1")
	require.NoError(t, err)
	err = h.WaitForPlayout(waitCtx(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "active response")
}

func TestConnectionLossFailsHandles(t *testing.T) {
	srv := newFakeServer(t, func(ctx context.Context, conn *websocket.Conn, ev clientEvent) {
		if ev.Type == evResponseCreate {
			_ = conn.Close(websocket.StatusGoingAway, "bye")
		}
	})

	s, err := Dial(waitCtx(t), testConfig(srv))
	require.NoError(t, err)

	h, err := s.GenerateReply(waitCtx(t), "Slide 1")
	require.NoError(t, err)
	assert.ErrorIs(t, h.WaitForPlayout(waitCtx(t)), ErrSessionClosed)

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session not closed")
	}
	assert.ErrorIs(t, s.Err(), ErrSessionClosed)

	_, err = s.GenerateReply(context.Background(), "again")
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.NoError(t, s.Close())
}

func TestSendTextAndInterrupt(t *testing.T) {
	seen := make(chan string, 4)
	srv := newFakeServer(t, func(ctx context.Context, conn *websocket.Conn, ev clientEvent) {
		switch ev.Type {
		case evItemCreate:
			seen <- ev.Type + ":" + ev.Item.Content[0].Text
		case evResponseCreate, evInputAudioAppend:
			seen <- ev.Type
		}
	})

	var user []string
	s, err := Dial(waitCtx(t), testConfig(srv), WithTranscriptHandler(func(m types.Message) {
		if m.Role == types.RoleUser {
			user = append(user, m.Content)
		}
	}))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SendText(waitCtx(t), "Go to slide 3"))
	require.NoError(t, s.AppendAudio(waitCtx(t), []byte{1, 2}))
	require.NoError(t, s.AppendAudio(waitCtx(t), nil))
	// 没有进行中的回复时不发送取消
	require.NoError(t, s.Interrupt(waitCtx(t)))

	var got []string
	for i := 0; i < 3; i++ {
		select {
		case e := <-seen:
			got = append(got, e)
		case <-time.After(5 * time.Second):
			t.Fatalf("only received %v", got)
		}
	}
	assert.Equal(t, []string{evItemCreate + ":Go to slide 3", evResponseCreate, evInputAudioAppend}, got)
	assert.Equal(t, []string{"Go to slide 3"}, user)
}

func TestConfigEndpoint(t *testing.T) {
	u, err := Config{BaseURL: "https://api.openai.com/", Model: "gpt-4o-realtime-preview"}.endpoint()
	require.NoError(t, err)
	assert.Equal(t, "wss://api.openai.com/v1/realtime?model=gpt-4o-realtime-preview", u)

	u, err = Config{Model: "m"}.endpoint()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "wss://api.openai.com/v1/realtime"))
}
