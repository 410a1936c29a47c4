// MockSession 演示会话的测试模拟实现。
//
// 支持固定回复、错误注入与调用记录，Run 阻塞到 ctx 取消或 Finish 被调用。
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/pptagent/agent/presenter"
)

// --- MockSession 结构 ---

// MockSession 实现 worker.Session
type MockSession struct {
	mu sync.RWMutex

	snapshot    presenter.Snapshot
	navigateMsg string
	errs        map[string]error
	runErr      error
	finish      chan struct{}
	finishOnce  sync.Once
	started     chan struct{}
	startOnce   sync.Once

	// 调用记录
	navigations []Navigation
	texts       []string
	interrupts  int
	audio       [][]byte
}

// Navigation 记录一次翻页调用
type Navigation struct {
	Action string
	Number int
}

// --- 构造函数和 Builder 方法 ---

// NewMockSession 创建处于 presenting 状态的会话
func NewMockSession(room string) *MockSession {
	return &MockSession{
		snapshot: presenter.Snapshot{
			Room:      room,
			State:     presenter.StatePresenting,
			StartedAt: time.Now(),
		},
		navigateMsg: "ok",
		errs:        make(map[string]error),
		finish:      make(chan struct{}),
		started:     make(chan struct{}),
	}
}

// WithSnapshot 设置 Snapshot 的返回值
func (m *MockSession) WithSnapshot(s presenter.Snapshot) *MockSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = s
	return m
}

// WithNavigateReply 设置 Navigate 的固定回复
func (m *MockSession) WithNavigateReply(reply string) *MockSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.navigateMsg = reply
	return m
}

// WithError 设置某个方法（Navigate、SendText、Interrupt、AppendAudio）的返回错误
func (m *MockSession) WithError(method string, err error) *MockSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[method] = err
	return m
}

// WithRunError 设置 Finish 后 Run 的返回值
func (m *MockSession) WithRunError(err error) *MockSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runErr = err
	return m
}

// --- worker.Session 实现 ---

// Run 阻塞到 ctx 取消或 Finish
func (m *MockSession) Run(ctx context.Context) error {
	m.startOnce.Do(func() { close(m.started) })
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.finish:
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.runErr
	}
}

// Snapshot 返回预设快照
func (m *MockSession) Snapshot() presenter.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Navigate 记录翻页并返回预设回复
func (m *MockSession) Navigate(_ context.Context, action string, number int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["Navigate"]; err != nil {
		return "", err
	}
	m.navigations = append(m.navigations, Navigation{Action: action, Number: number})
	return m.navigateMsg, nil
}

// SendText 记录文字
func (m *MockSession) SendText(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["SendText"]; err != nil {
		return err
	}
	m.texts = append(m.texts, text)
	return nil
}

// Interrupt 记录打断次数
func (m *MockSession) Interrupt(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["Interrupt"]; err != nil {
		return err
	}
	m.interrupts++
	return nil
}

// AppendAudio 记录音频帧
func (m *MockSession) AppendAudio(_ context.Context, pcm []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["AppendAudio"]; err != nil {
		return err
	}
	m.audio = append(m.audio, append([]byte(nil), pcm...))
	return nil
}

// --- 控制与查询 ---

// Finish 让 Run 返回
func (m *MockSession) Finish() {
	m.finishOnce.Do(func() { close(m.finish) })
}

// Started Run 开始后关闭
func (m *MockSession) Started() <-chan struct{} {
	return m.started
}

// Navigations 返回翻页调用记录
func (m *MockSession) Navigations() []Navigation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Navigation(nil), m.navigations...)
}

// Texts 返回收到的文字
func (m *MockSession) Texts() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.texts...)
}

// Interrupts 返回打断次数
func (m *MockSession) Interrupts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.interrupts
}

// AudioFrames 返回收到的音频帧
func (m *MockSession) AudioFrames() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([][]byte(nil), m.audio...)
}
