package avatar

import (
	"context"
	"sync"
	"time"
)

// playout 根据已推送的音频时长估算远端播放结束的时间。
// Flush 借此等待音频播完，ClearBuffer 会立即唤醒等待者。
type playout struct {
	bytesPerSecond int
	now            func() time.Time

	mu      sync.Mutex
	end     time.Time
	cleared chan struct{}
}

func newPlayout(sampleRate int, now func() time.Time) *playout {
	return &playout{
		bytesPerSecond: sampleRate * 2,
		now:            now,
		cleared:        make(chan struct{}),
	}
}

// add 记录 n 字节 PCM16 单声道音频
func (p *playout) add(n int) {
	if n <= 0 {
		return
	}
	d := time.Duration(n) * time.Second / time.Duration(p.bytesPerSecond)

	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if p.end.Before(now) {
		p.end = now
	}
	p.end = p.end.Add(d)
}

// remaining 距离播放结束的时长
func (p *playout) remaining() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.end.Sub(p.now())
}

func (p *playout) wait(ctx context.Context) error {
	p.mu.Lock()
	left := p.end.Sub(p.now())
	cleared := p.cleared
	p.mu.Unlock()

	if left <= 0 {
		return nil
	}
	timer := time.NewTimer(left)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-cleared:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *playout) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.end = time.Time{}
	close(p.cleared)
	p.cleared = make(chan struct{})
}
