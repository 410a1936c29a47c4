package realtime

import (
	"context"
	"strings"
	"sync"
)

// SpeechHandle 一次 GenerateReply 的回复。
// 回复中包含函数调用时，句柄会延续到模型的后续回复结束。
type SpeechHandle struct {
	id   string
	done chan struct{}
	once sync.Once

	mu          sync.Mutex
	err         error
	interrupted bool
	transcript  []string
}

func newSpeechHandle(id string) *SpeechHandle {
	return &SpeechHandle{id: id, done: make(chan struct{})}
}

// ID 句柄标识
func (h *SpeechHandle) ID() string { return h.id }

// Done 回复结束（完成、被打断或失败）时关闭
func (h *SpeechHandle) Done() <-chan struct{} { return h.done }

// WaitForPlayout 等待回复结束且音频交付完毕，返回失败原因
func (h *SpeechHandle) WaitForPlayout(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Interrupted 是否被用户打断
func (h *SpeechHandle) Interrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interrupted
}

// Err 失败原因
func (h *SpeechHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Transcript 模型说出的文本
func (h *SpeechHandle) Transcript() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return strings.Join(h.transcript, " ")
}

func (h *SpeechHandle) markInterrupted() {
	h.mu.Lock()
	h.interrupted = true
	h.mu.Unlock()
}

func (h *SpeechHandle) appendTranscript(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	h.mu.Lock()
	h.transcript = append(h.transcript, strings.TrimSpace(text))
	h.mu.Unlock()
}

func (h *SpeechHandle) finish(err error) {
	h.once.Do(func() {
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
		close(h.done)
	})
}
