package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/pptagent/types"
)

// Executor 工具执行器接口
type Executor interface {
	Execute(ctx context.Context, calls []types.ToolCall) []types.ToolResult
	ExecuteOne(ctx context.Context, call types.ToolCall) types.ToolResult
}

// DefaultExecutor 基于 Registry 的执行器
type DefaultExecutor struct {
	registry Registry
	logger   *zap.Logger
}

// NewDefaultExecutor 创建执行器
func NewDefaultExecutor(registry Registry, logger *zap.Logger) *DefaultExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultExecutor{
		registry: registry,
		logger:   logger.With(zap.String("component", "tool_executor")),
	}
}

// Execute 并发执行多个调用，结果顺序与 calls 一致
func (e *DefaultExecutor) Execute(ctx context.Context, calls []types.ToolCall) []types.ToolResult {
	results := make([]types.ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, c types.ToolCall) {
			defer wg.Done()
			results[idx] = e.ExecuteOne(ctx, c)
		}(i, call)
	}
	wg.Wait()
	return results
}

type outcome struct {
	res json.RawMessage
	err error
}

// ExecuteOne 执行单个调用。错误写入 ToolResult.Error，不返回 error
func (e *DefaultExecutor) ExecuteOne(ctx context.Context, call types.ToolCall) types.ToolResult {
	start := time.Now()
	result := types.ToolResult{ToolCallID: call.ID, Name: call.Name}
	fail := func(msg string) types.ToolResult {
		result.Error = msg
		result.Duration = time.Since(start)
		return result
	}

	fn, meta, err := e.registry.Get(call.Name)
	if err != nil {
		e.logger.Warn("tool not found", zap.String("name", call.Name))
		return fail(fmt.Sprintf("tool not found: %s", call.Name))
	}

	if reg, ok := e.registry.(*DefaultRegistry); ok && !reg.allow(call.Name) {
		e.logger.Warn("tool rate limit exceeded", zap.String("name", call.Name))
		return fail("rate limit exceeded")
	}

	if len(call.Arguments) > 0 && !json.Valid(call.Arguments) {
		e.logger.Warn("invalid tool arguments", zap.String("name", call.Name), zap.ByteString("arguments", call.Arguments))
		return fail("invalid arguments: not valid JSON")
	}

	execCtx, cancel := context.WithTimeout(ctx, meta.Timeout)
	defer cancel()

	// 缓冲为 1，超时后工具 goroutine 仍可写入并退出
	done := make(chan outcome, 1)
	go func() {
		res, err := fn(execCtx, call.Arguments)
		done <- outcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		result.Duration = time.Since(start)
		if out.err != nil {
			result.Error = out.err.Error()
			e.logger.Warn("tool execution failed",
				zap.String("name", call.Name),
				zap.Error(out.err),
				zap.Duration("duration", result.Duration))
			return result
		}
		result.Result = out.res
		e.logger.Debug("tool executed",
			zap.String("name", call.Name),
			zap.Duration("duration", result.Duration))
		return result

	case <-execCtx.Done():
		e.logger.Warn("tool execution timeout",
			zap.String("name", call.Name),
			zap.Duration("timeout", meta.Timeout))
		return fail(fmt.Sprintf("execution timeout after %s", meta.Timeout))
	}
}

// Message 把文本包装为 {"result": text}
func Message(text string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"result": text})
	return b
}
