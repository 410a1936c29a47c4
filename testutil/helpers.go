package testutil

import (
	"context"
	"testing"
	"time"
)

// TestContextWithTimeout 返回带超时的测试上下文，测试结束时自动取消
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// =============================================================================
// ⏳ 异步等待
// =============================================================================

// SessionWaiter 可以等待房间会话结束，*worker.Worker 满足该接口
type SessionWaiter interface {
	Wait(ctx context.Context, room string) error
}

// WaitSessionEnd 等待房间会话结束，超时则测试立即失败
func WaitSessionEnd(t *testing.T, w SessionWaiter, room string, timeout time.Duration) {
	t.Helper()
	if err := w.Wait(TestContextWithTimeout(t, timeout), room); err != nil {
		t.Fatalf("session %q did not end within %v: %v", room, timeout, err)
	}
}

// AssertEventuallyTrue 断言条件在超时前变为真
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()
	if !WaitFor(condition, timeout) {
		t.Errorf("condition did not become true within %v", timeout)
	}
}

// WaitFor 每 10ms 轮询一次，直到条件为真或超时
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return condition()
}
