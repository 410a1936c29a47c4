package presenter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/pptagent/config"
	"github.com/BaSui01/pptagent/internal/livekit"
	"github.com/BaSui01/pptagent/internal/slides"
	"github.com/BaSui01/pptagent/llm/realtime"
	"github.com/BaSui01/pptagent/llm/tokenizer"
)

// ---------------------------------------------------------------------------
// 测试辅助
// ---------------------------------------------------------------------------

func testDeck() []slides.Slide {
	return []slides.Slide{
		{ID: "p1-1", PresentationID: "p1", SlideNumber: 1, ImageURL: "https://cdn/1.png", ExtractedText: "Welcome to the quarterly review"},
		{ID: "p1-2", PresentationID: "p1", SlideNumber: 2, ImageURL: "", ExtractedText: "Agenda"},
		{ID: "p1-3", PresentationID: "p1", SlideNumber: 3, ImageURL: "https://cdn/3.png", ExtractedText: "Revenue grew 20%"},
	}
}

func testConfig() Config {
	pc := config.DefaultPresenterConfig()
	pc.MetadataInitialDelay = 0
	pc.MetadataPollInterval = 5 * time.Millisecond
	pc.MetadataTimeout = 200 * time.Millisecond
	pc.SpeechRetryDelay = time.Millisecond
	pc.SlidePause = 0
	pc.KeepAliveInterval = 10 * time.Millisecond

	return Config{
		Room:          "room-1",
		AgentIdentity: "ppt-presenter",
		AgentName:     "Dia",
		LiveKit:       config.LiveKitConfig{URL: "wss://demo.livekit.cloud", APIKey: "lk-key", APISecret: "lk-secret", TokenTTL: time.Hour},
		Realtime:      config.DefaultRealtimeConfig(),
		Presenter:     pc,
	}
}

var (
	audience = livekit.Participant{Identity: "user-1", Kind: livekit.KindStandard, Metadata: "p1"}
	agent    = livekit.Participant{Identity: "ppt-presenter", Kind: livekit.KindAgent}
)

type fixture struct {
	rooms    *testRooms
	conv     *testConversation
	avatar   *testAvatar
	observer *testObserver
	dialed   realtime.Config
	p        *Presenter
}

func newFixture(t *testing.T, cfg Config, deck []slides.Slide, replyFn func(f *fixture, instructions string) (Speech, error)) *fixture {
	t.Helper()
	f := &fixture{rooms: &testRooms{}, avatar: &testAvatar{}, observer: &testObserver{}}
	f.rooms.setParticipants(agent, audience)
	f.conv = newTestConversation(func(instructions string) (Speech, error) {
		if replyFn != nil {
			return replyFn(f, instructions)
		}
		return testSpeech{}, nil
	})
	f.p = New(cfg, Deps{
		Rooms: f.rooms,
		Slides: &testStore{loadFn: func(_ context.Context, id string) ([]slides.Slide, error) {
			if id != "p1" {
				return nil, slides.ErrDeckNotFound
			}
			return deck, nil
		}},
		Avatar:    f.avatar,
		Dial:      dialerFor(f.conv, &f.dialed),
		Tokenizer: tokenizer.NewEstimator(0),
		Observer:  f.observer,
	})
	return f
}

func runCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// 讲完结束语后观众离开
func leaveAfterThanks(f *fixture, instructions string) (Speech, error) {
	if instructions == ThankYouMessage {
		f.rooms.setParticipants(agent)
	}
	return testSpeech{}, nil
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

func TestRun_PresentsDeckAndEndsWhenRoomEmpties(t *testing.T) {
	f := newFixture(t, testConfig(), testDeck(), leaveAfterThanks)

	require.NoError(t, f.p.Run(runCtx(t)))

	sent := f.conv.sent()
	require.Len(t, sent, 3)
	assert.Equal(t, "Slide 1: Welcome to the quarterly review\n\nPresent this slide's key points clearly in 3-4 sentences.", sent[0])
	assert.True(t, strings.HasPrefix(sent[1], "Slide 3: Revenue grew 20%"))
	assert.Equal(t, ThankYouMessage, sent[2])

	// 第 2 页没有图片被跳过
	assert.Equal(t, []string{"1", "3"}, f.rooms.slideNumbers())

	assert.Contains(t, f.dialed.Instructions, "HERE IS THE FULL PRESENTATION CONTENT YOU ARE PRESENTING:")
	assert.Contains(t, f.dialed.Instructions, DefaultPersona)
	require.Len(t, f.dialed.Tools, 3)
	assert.Equal(t, 500*time.Millisecond, f.dialed.SilenceDuration)
	assert.Equal(t, "alloy", f.dialed.Voice)

	require.Len(t, f.avatar.requests, 1)
	req := f.avatar.requests[0]
	assert.Equal(t, "wss://demo.livekit.cloud", req.LiveKitURL)
	claims, err := livekit.ParseToken(req.Token, "lk-key", "lk-secret")
	require.NoError(t, err)
	assert.Equal(t, "ppt-presenter", claims.Subject)
	assert.True(t, strings.EqualFold(livekit.KindAgent, claims.Kind), claims.Kind)
	require.NotNil(t, claims.Video)
	assert.Equal(t, "room-1", claims.Video.Room)

	assert.True(t, f.conv.isClosed())
	assert.Equal(t, []string{"ppt-presenter"}, f.rooms.removed)

	snap := f.p.Snapshot()
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, "p1", snap.PresentationID)
	assert.Equal(t, 3, snap.TotalSlides)
	assert.Equal(t, 2, snap.SlidesPresented)
	assert.True(t, snap.Completed)
	assert.Equal(t, ModeFull, snap.ContextMode)
	assert.Empty(t, snap.Error)

	speeches, avatarStarts := f.observer.counts()
	assert.Equal(t, []string{"completed", "completed"}, speeches)
	assert.Equal(t, 1, avatarStarts)
}

func TestRun_InterruptionStopsAutoAdvance(t *testing.T) {
	deck := testDeck()
	deck[1].ImageURL = "https://cdn/2.png"

	f := newFixture(t, testConfig(), deck, func(f *fixture, instructions string) (Speech, error) {
		if strings.HasPrefix(instructions, "Slide 2:") {
			f.rooms.setParticipants(agent)
			return testSpeech{interrupted: true}, nil
		}
		return testSpeech{}, nil
	})

	require.NoError(t, f.p.Run(runCtx(t)))

	sent := f.conv.sent()
	require.Len(t, sent, 2)
	assert.NotContains(t, sent, ThankYouMessage)

	snap := f.p.Snapshot()
	assert.False(t, snap.Completed)
	assert.Equal(t, 1, snap.SlidesPresented)

	speeches, _ := f.observer.counts()
	assert.Equal(t, []string{"completed", "interrupted"}, speeches)
	assert.Equal(t, 2, snap.CurrentSlide)
}

func TestRun_RetriesColdStart(t *testing.T) {
	attempts := 0
	f := newFixture(t, testConfig(), testDeck(), func(f *fixture, instructions string) (Speech, error) {
		if strings.HasPrefix(instructions, "Slide 1:") {
			attempts++
			if attempts < 3 {
				return nil, errors.New("cold start")
			}
		}
		return leaveAfterThanks(f, instructions)
	})

	require.NoError(t, f.p.Run(runCtx(t)))
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 2, f.p.Snapshot().SlidesPresented)
}

func TestRun_SlideFailureAdvances(t *testing.T) {
	f := newFixture(t, testConfig(), testDeck(), func(f *fixture, instructions string) (Speech, error) {
		if strings.HasPrefix(instructions, "Slide 1:") {
			return testSpeech{err: errors.New("playout failed")}, nil
		}
		return leaveAfterThanks(f, instructions)
	})

	require.NoError(t, f.p.Run(runCtx(t)))

	sent := f.conv.sent()
	// 3 次尝试 + 第 3 页 + 结束语
	require.Len(t, sent, 5)
	assert.Equal(t, 1, f.p.Snapshot().SlidesPresented)
	assert.True(t, f.p.Snapshot().Completed)
}

func TestRun_SpeechTimeoutAdvances(t *testing.T) {
	cfg := testConfig()
	cfg.Presenter.SpeechTimeout = 30 * time.Millisecond
	f := newFixture(t, cfg, testDeck(), func(f *fixture, instructions string) (Speech, error) {
		if strings.HasPrefix(instructions, "Slide 1:") {
			return stalledSpeech{}, nil
		}
		return leaveAfterThanks(f, instructions)
	})

	require.NoError(t, f.p.Run(runCtx(t)))

	sent := f.conv.sent()
	// 超时不重试：第 1 页 + 第 3 页 + 结束语
	require.Len(t, sent, 3)
	assert.True(t, strings.HasPrefix(sent[1], "Slide 3:"))
	assert.Equal(t, 1, f.conv.interruptCount())

	speeches, _ := f.observer.counts()
	assert.Equal(t, []string{"timeout", "completed"}, speeches)
	assert.Equal(t, 1, f.p.Snapshot().SlidesPresented)
	assert.True(t, f.p.Snapshot().Completed)
}

func TestRun_ConversationLost(t *testing.T) {
	f := newFixture(t, testConfig(), testDeck(), func(*fixture, string) (Speech, error) {
		return nil, realtime.ErrSessionClosed
	})

	err := f.p.Run(runCtx(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, realtime.ErrSessionClosed)
	assert.Len(t, f.conv.sent(), 1)
	assert.NotEmpty(t, f.p.Snapshot().Error)
}

func TestRun_NoPresentationID(t *testing.T) {
	f := newFixture(t, testConfig(), testDeck(), nil)
	f.rooms.setParticipants(agent, livekit.Participant{Identity: "user-1"})

	err := f.p.Run(runCtx(t))
	assert.ErrorIs(t, err, ErrNoPresentationID)
	assert.Empty(t, f.avatar.requests)
	assert.Empty(t, f.rooms.removed)
	assert.Equal(t, StateClosed, f.p.Snapshot().State)
}

func TestRun_DeckNotFound(t *testing.T) {
	f := newFixture(t, testConfig(), testDeck(), nil)
	f.rooms.setParticipants(livekit.Participant{Identity: "user-1", Metadata: `{"presentation_id":"missing"}`})

	err := f.p.Run(runCtx(t))
	assert.ErrorIs(t, err, slides.ErrDeckNotFound)
	assert.Equal(t, "missing", f.p.Snapshot().PresentationID)
}

func TestRun_OverviewFallbackOnTokenBudget(t *testing.T) {
	cfg := testConfig()
	cfg.Presenter.MaxContextTokens = 10
	f := newFixture(t, cfg, testDeck(), leaveAfterThanks)

	require.NoError(t, f.p.Run(runCtx(t)))

	assert.Contains(t, f.dialed.Instructions, "You are presenting a 3-slide presentation.")
	sent := f.conv.sent()
	assert.Contains(t, sent[0], "===== CURRENT SLIDE 1 (PRESENT THIS) =====")
	assert.Contains(t, sent[0], "===== YOUR TASK =====")
	assert.Equal(t, ModeOverview, f.p.Snapshot().ContextMode)
}

func TestRun_CancelDuringQAAndExternalControl(t *testing.T) {
	f := newFixture(t, testConfig(), testDeck(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := f.p.Navigate(ctx, "next", 0)
	assert.ErrorIs(t, err, ErrNotReady)

	done := make(chan error, 1)
	go func() { done <- f.p.Run(ctx) }()

	require.Eventually(t, func() bool { return f.p.Snapshot().State == StateQA }, 5*time.Second, 5*time.Millisecond)

	msg, err := f.p.Navigate(ctx, "goto", 2)
	require.NoError(t, err)
	assert.Equal(t, "Now on slide 2 of 3. Agenda", msg)
	assert.Equal(t, 2, f.p.Snapshot().CurrentSlide)

	_, err = f.p.Navigate(ctx, "sideways", 0)
	assert.Error(t, err)

	require.NoError(t, f.p.SendText(ctx, "Explain revenue"))
	assert.Error(t, f.p.SendText(ctx, "  "))
	require.NoError(t, f.p.Interrupt(ctx))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, f.conv.isClosed())
	assert.ErrorIs(t, f.p.SendText(context.Background(), "late"), ErrNotReady)
}

func TestParsePresentationID(t *testing.T) {
	assert.Equal(t, "p1", ParsePresentationID(" p1 "))
	assert.Equal(t, "p2", ParsePresentationID(`{"presentation_id":"p2"}`))
	assert.Equal(t, "p3", ParsePresentationID(`{"presentationId":"p3"}`))
	assert.Equal(t, "", ParsePresentationID(""))
	assert.Equal(t, "{broken", ParsePresentationID("{broken"))
}
