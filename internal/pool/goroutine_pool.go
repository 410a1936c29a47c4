// Package pool 提供有上限、不排队的 goroutine 池。
//
// 每个任务独占一个槽位，槽位用尽时 Submit 立即返回 ErrPoolFull，
// 调用方据此向上游报告繁忙。
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	ErrPoolClosed = errors.New("pool is closed")
	ErrPoolFull   = errors.New("pool is full")
)

// Task 一个长时间运行的任务
type Task func(ctx context.Context) error

// GoroutinePoolConfig 池配置
type GoroutinePoolConfig struct {
	MaxWorkers   int       `json:"max_workers"`
	PanicHandler func(any) `json:"-"`
}

// GoroutinePool 固定槽位的 goroutine 池
type GoroutinePool struct {
	slots chan struct{}

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	active    atomic.Int32
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64

	panicHandler func(any)
}

// NewGoroutinePool 创建池，MaxWorkers 小于 1 时按 1 处理
func NewGoroutinePool(config GoroutinePoolConfig) *GoroutinePool {
	if config.MaxWorkers < 1 {
		config.MaxWorkers = 1
	}
	return &GoroutinePool{
		slots:        make(chan struct{}, config.MaxWorkers),
		panicHandler: config.PanicHandler,
	}
}

// Submit 占用一个槽位并在新 goroutine 中运行任务，不阻塞
func (p *GoroutinePool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.rejected.Add(1)
		return ErrPoolClosed
	}

	select {
	case p.slots <- struct{}{}:
	default:
		p.rejected.Add(1)
		return ErrPoolFull
	}

	p.submitted.Add(1)
	p.active.Add(1)
	p.wg.Add(1)
	go p.run(ctx, task)
	return nil
}

func (p *GoroutinePool) run(ctx context.Context, task Task) {
	defer func() {
		p.active.Add(-1)
		<-p.slots
		p.wg.Done()
	}()

	if err := p.execute(ctx, task); err != nil {
		p.failed.Add(1)
		return
	}
	p.completed.Add(1)
}

func (p *GoroutinePool) execute(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if p.panicHandler != nil {
				p.panicHandler(r)
			}
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}

// Close 停止接收新任务，已运行的任务不受影响
func (p *GoroutinePool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// Closed 是否已关闭
func (p *GoroutinePool) Closed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// Wait 等待所有任务结束。必须在 Close 之后调用
func (p *GoroutinePool) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Capacity 槽位总数
func (p *GoroutinePool) Capacity() int {
	return cap(p.slots)
}

// GoroutinePoolStats 池统计
type GoroutinePoolStats struct {
	Capacity  int   `json:"capacity"`
	Active    int32 `json:"active"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}

// Stats 返回统计信息
func (p *GoroutinePool) Stats() GoroutinePoolStats {
	return GoroutinePoolStats{
		Capacity:  cap(p.slots),
		Active:    p.active.Load(),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}
