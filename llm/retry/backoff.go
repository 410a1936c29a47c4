package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// ErrExhausted 所有尝试均失败
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy 重试策略
type Policy struct {
	MaxAttempts int           // 总尝试次数（含第一次），<=0 时按 1 处理
	Delay       time.Duration // 第一次重试前的等待
	Multiplier  float64       // 退避倍数，1 为固定间隔
	MaxDelay    time.Duration // 等待上限，0 为不限
	Jitter      float64       // 抖动比例（0.25 即 ±25%）

	// ShouldRetry 为空时所有错误都重试
	ShouldRetry func(err error) bool
	// OnRetry 每次重试等待前调用，attempt 从 1 开始
	OnRetry func(attempt int, err error, delay time.Duration)
}

// FixedPolicy 固定间隔的策略，用于幻灯片讲解的冷启动重试
func FixedPolicy(attempts int, delay time.Duration) Policy {
	return Policy{MaxAttempts: attempts, Delay: delay, Multiplier: 1}
}

// ExponentialPolicy 指数退避策略，用于连接上游服务
func ExponentialPolicy(attempts int, initial, max time.Duration) Policy {
	return Policy{MaxAttempts: attempts, Delay: initial, Multiplier: 2, MaxDelay: max, Jitter: 0.25}
}

// Retryer 按策略执行函数
type Retryer struct {
	policy Policy
	logger *zap.Logger
}

// New 创建重试器
func New(p Policy, logger *zap.Logger) *Retryer {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retryer{policy: p, logger: logger}
}

// Do 执行 fn，失败时按策略重试；fn 收到当前尝试序号（从 1 开始）
func (r *Retryer) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	_, err := Do(ctx, r, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, fn(ctx, attempt)
	})
	return err
}

// Do 泛型版本，返回最后一次成功的结果
func Do[T any](ctx context.Context, r *Retryer, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	p := r.policy

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := r.Backoff(attempt - 1)
			if p.OnRetry != nil {
				p.OnRetry(attempt-1, lastErr, delay)
			}
			r.logger.Debug("retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", p.MaxAttempts),
				zap.Duration("delay", delay),
				zap.Error(lastErr))

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-timer.C:
			}
		}

		res, err := fn(ctx, attempt)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if p.ShouldRetry != nil && !p.ShouldRetry(err) {
			return zero, err
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, p.MaxAttempts, lastErr)
}

// Backoff 第 n 次重试（n 从 1 开始）前的等待时间
func (r *Retryer) Backoff(n int) time.Duration {
	p := r.policy
	d := float64(p.Delay) * math.Pow(p.Multiplier, float64(n-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * p.Jitter
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
