package types

import (
	"encoding/json"
	"time"
)

// ToolSchema 描述一个可由模型调用的函数
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall 模型发起的一次函数调用
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult 函数执行结果
type ToolResult struct {
	ToolCallID string          `json:"tool_call_id"`
	Name       string          `json:"name"`
	Result     json.RawMessage `json:"result"`
	Error      string          `json:"error,omitempty"`
	Duration   time.Duration   `json:"duration"`
}

// IsError 执行是否失败
func (tr ToolResult) IsError() bool {
	return tr.Error != ""
}

// Output 返回回传给模型的文本。
// 结果为 {"result": "..."} 时取其中的字符串，否则原样返回 JSON。
func (tr ToolResult) Output() string {
	if tr.Error != "" {
		return "Error: " + tr.Error
	}
	var wrapped struct {
		Result *string `json:"result"`
	}
	if err := json.Unmarshal(tr.Result, &wrapped); err == nil && wrapped.Result != nil {
		return *wrapped.Result
	}
	return string(tr.Result)
}
