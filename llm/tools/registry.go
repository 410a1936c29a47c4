package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/pptagent/types"
)

// DefaultTimeout 工具默认执行超时
const DefaultTimeout = 30 * time.Second

// Func 工具函数签名
type Func func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// RateLimit 每 Window 最多 MaxCalls 次调用
type RateLimit struct {
	MaxCalls int
	Window   time.Duration
}

// Metadata 工具元数据
type Metadata struct {
	Schema    types.ToolSchema
	Timeout   time.Duration
	RateLimit *RateLimit
}

// Registry 工具注册表接口
type Registry interface {
	Register(name string, fn Func, meta Metadata) error
	Unregister(name string) error
	Get(name string) (Func, Metadata, error)
	List() []types.ToolSchema
	Has(name string) bool
}

// =============================================================================
// DefaultRegistry
// =============================================================================

type entry struct {
	fn      Func
	meta    Metadata
	limiter *rate.Limiter
}

// DefaultRegistry 并发安全的内存注册表
type DefaultRegistry struct {
	mu     sync.RWMutex
	tools  map[string]*entry
	logger *zap.Logger
}

// NewDefaultRegistry 创建注册表
func NewDefaultRegistry(logger *zap.Logger) *DefaultRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultRegistry{
		tools:  make(map[string]*entry),
		logger: logger.With(zap.String("component", "tool_registry")),
	}
}

// Register 注册工具；Schema.Name 为空时使用 name，不一致时报错
func (r *DefaultRegistry) Register(name string, fn Func, meta Metadata) error {
	if fn == nil {
		return fmt.Errorf("tool %s: function is nil", name)
	}
	if meta.Schema.Name == "" {
		meta.Schema.Name = name
	}
	if meta.Schema.Name != name {
		return fmt.Errorf("tool name mismatch: schema.Name=%s, register name=%s", meta.Schema.Name, name)
	}
	if len(meta.Schema.Parameters) > 0 && !json.Valid(meta.Schema.Parameters) {
		return fmt.Errorf("tool %s: parameters is not valid JSON", name)
	}
	if meta.Timeout <= 0 {
		meta.Timeout = DefaultTimeout
	}

	e := &entry{fn: fn, meta: meta}
	if rl := meta.RateLimit; rl != nil && rl.MaxCalls > 0 && rl.Window > 0 {
		e.limiter = rate.NewLimiter(rate.Every(rl.Window/time.Duration(rl.MaxCalls)), rl.MaxCalls)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = e

	r.logger.Debug("tool registered", zap.String("name", name), zap.Duration("timeout", meta.Timeout))
	return nil
}

// Unregister 注销工具
func (r *DefaultRegistry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		return fmt.Errorf("tool %s not found", name)
	}
	delete(r.tools, name)
	return nil
}

// Get 查询工具
func (r *DefaultRegistry) Get(name string) (Func, Metadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok {
		return nil, Metadata{}, fmt.Errorf("tool %s not found", name)
	}
	return e.fn, e.meta, nil
}

// List 按名称排序返回全部 Schema
func (r *DefaultRegistry) List() []types.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ToolSchema, 0, len(r.tools))
	for _, e := range r.tools {
		out = append(out, e.meta.Schema)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Has 是否已注册
func (r *DefaultRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// allow 检查调用频率，未配置限流的工具总是允许
func (r *DefaultRegistry) allow(name string) bool {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok || e.limiter == nil {
		return true
	}
	return e.limiter.Allow()
}
