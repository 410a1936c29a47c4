// Package idempotency 提供基于 Redis 或内存的一次性事件认领。
//
// LiveKit 在 webhook 投递失败或超时时会重发同一事件，Guard 以事件 ID
// 为键做原子认领，窗口期内重复到达的事件只会被处理一次。
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultTTL 未指定窗口时使用的认领有效期
const DefaultTTL = time.Hour

// Guard 幂等认领接口
type Guard interface {
	// Claim 原子地认领 key，首次认领返回 true，窗口期内再次认领返回 false
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release 释放认领，使同一 key 可以再次被处理
	Release(ctx context.Context, key string) error
}

// Key 根据输入生成稳定的幂等键（JSON 序列化后取 SHA256）
func Key(inputs ...any) (string, error) {
	if len(inputs) == 0 {
		return "", errors.New("at least one input is required")
	}
	data, err := json.Marshal(inputs)
	if err != nil {
		return "", fmt.Errorf("marshal inputs: %w", err)
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// =============================================================================
// 🔒 Redis 实现
// =============================================================================

type redisGuard struct {
	redis  redis.Cmdable
	prefix string
	logger *zap.Logger
}

// NewRedisGuard 创建基于 Redis SETNX 的 Guard，多个 worker 实例共享去重窗口
func NewRedisGuard(client redis.Cmdable, prefix string, logger *zap.Logger) Guard {
	if prefix == "" {
		prefix = "idempotency:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redisGuard{
		redis:  client,
		prefix: prefix,
		logger: logger.With(zap.String("component", "idempotency")),
	}
}

func (g *redisGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ok, err := g.redis.SetNX(ctx, g.prefix+key, time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		g.logger.Debug("duplicate claim", zap.String("key", key))
	}
	return ok, nil
}

func (g *redisGuard) Release(ctx context.Context, key string) error {
	if err := g.redis.Del(ctx, g.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// =============================================================================
// 🧠 内存实现
// =============================================================================

// MemoryGuard 进程内 Guard，单实例部署或未配置 Redis 时使用
type MemoryGuard struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
	logger  *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// NewMemoryGuard 创建内存 Guard，cleanupInterval>0 时后台定期清理过期条目
func NewMemoryGuard(cleanupInterval time.Duration, logger *zap.Logger) *MemoryGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &MemoryGuard{
		entries: make(map[string]time.Time),
		now:     time.Now,
		logger:  logger.With(zap.String("component", "idempotency")),
		stop:    make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go g.cleanupLoop(cleanupInterval)
	}
	return g
}

func (g *MemoryGuard) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if exp, ok := g.entries[key]; ok && now.Before(exp) {
		return false, nil
	}
	g.entries[key] = now.Add(ttl)
	return true, nil
}

func (g *MemoryGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	delete(g.entries, key)
	g.mu.Unlock()
	return nil
}

// Len 当前条目数（含尚未清理的过期条目）
func (g *MemoryGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

// Close 停止后台清理
func (g *MemoryGuard) Close() {
	g.stopOnce.Do(func() { close(g.stop) })
}

func (g *MemoryGuard) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			g.cleanup()
		case <-g.stop:
			return
		}
	}
}

func (g *MemoryGuard) cleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	expired := 0
	for key, exp := range g.entries {
		if !now.Before(exp) {
			delete(g.entries, key)
			expired++
		}
	}
	if expired > 0 {
		g.logger.Debug("cleaned up expired entries",
			zap.Int("expired", expired),
			zap.Int("remaining", len(g.entries)))
	}
}
