package presenter

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/pptagent/agent/avatar"
	"github.com/BaSui01/pptagent/internal/livekit"
	"github.com/BaSui01/pptagent/internal/slides"
	"github.com/BaSui01/pptagent/llm/realtime"
)

// testRooms implements RoomService for testing
type testRooms struct {
	mu           sync.Mutex
	participants []livekit.Participant
	listErr      error
	updateErr    error
	updates      []map[string]string
	removed      []string
}

func (r *testRooms) ListParticipants(context.Context, string) ([]livekit.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	return append([]livekit.Participant(nil), r.participants...), nil
}

func (r *testRooms) UpdateAttributes(_ context.Context, _, _ string, attrs map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	r.updates = append(r.updates, attrs)
	return nil
}

func (r *testRooms) RemoveParticipant(_ context.Context, _, identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, identity)
	return nil
}

func (r *testRooms) setParticipants(ps ...livekit.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants = ps
}

func (r *testRooms) slideNumbers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.updates))
	for _, u := range r.updates {
		out = append(out, u[AttrSlideNumber])
	}
	return out
}

// testStore implements slides.Store for testing
type testStore struct {
	loadFn func(ctx context.Context, id string) ([]slides.Slide, error)
}

func (s *testStore) LoadDeck(ctx context.Context, id string) ([]slides.Slide, error) {
	return s.loadFn(ctx, id)
}

func (s *testStore) Ping(context.Context) error { return nil }

// testSpeech implements Speech for testing
type testSpeech struct {
	err         error
	interrupted bool
}

func (s testSpeech) WaitForPlayout(context.Context) error { return s.err }
func (s testSpeech) Interrupted() bool                    { return s.interrupted }

// stalledSpeech 一直不结束播放，直到 ctx 取消
type stalledSpeech struct{}

func (stalledSpeech) WaitForPlayout(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
func (stalledSpeech) Interrupted() bool { return false }

// testConversation implements Conversation for testing
type testConversation struct {
	replyFn func(instructions string) (Speech, error)

	mu           sync.Mutex
	instructions []string
	texts        []string
	interrupts   int
	closed       bool
	done         chan struct{}
}

func newTestConversation(replyFn func(string) (Speech, error)) *testConversation {
	return &testConversation{replyFn: replyFn, done: make(chan struct{})}
}

func (c *testConversation) GenerateReply(_ context.Context, instructions string) (Speech, error) {
	c.mu.Lock()
	c.instructions = append(c.instructions, instructions)
	c.mu.Unlock()
	if c.replyFn != nil {
		return c.replyFn(instructions)
	}
	return testSpeech{}, nil
}

func (c *testConversation) SendText(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return nil
}

func (c *testConversation) AppendAudio(context.Context, []byte) error { return nil }

func (c *testConversation) Interrupt(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interrupts++
	return nil
}

func (c *testConversation) Done() <-chan struct{} { return c.done }

func (c *testConversation) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *testConversation) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.instructions...)
}

func (c *testConversation) interruptCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interrupts
}

func (c *testConversation) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// testAvatar implements avatar.Provider for testing
type testAvatar struct {
	mu       sync.Mutex
	requests []avatar.StartRequest
	startErr error
}

func (a *testAvatar) Name() string { return "test" }

func (a *testAvatar) Start(ctx context.Context, req avatar.StartRequest) (avatar.Session, error) {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	a.mu.Unlock()
	if a.startErr != nil {
		return nil, a.startErr
	}
	return avatar.NewNone(nil).Start(ctx, req)
}

func dialerFor(conv *testConversation, got *realtime.Config) Dialer {
	return func(_ context.Context, cfg realtime.Config, _ ...realtime.Option) (Conversation, error) {
		if got != nil {
			*got = cfg
		}
		return conv, nil
	}
}

// testObserver implements Observer for testing
type testObserver struct {
	mu           sync.Mutex
	speeches     []string
	avatarStarts int
}

func (o *testObserver) RecordSpeech(status string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.speeches = append(o.speeches, status)
}

func (o *testObserver) RecordAvatarStart(string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.avatarStarts++
}

func (o *testObserver) counts() ([]string, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.speeches...), o.avatarStarts
}
