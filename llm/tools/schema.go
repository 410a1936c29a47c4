package tools

import "encoding/json"

// Param JSON Schema 中的单个属性
type Param struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Minimum     *int   `json:"minimum,omitempty"`
}

// ObjectSchema 构造 {"type":"object"} 形式的参数 Schema
func ObjectSchema(props map[string]Param, required ...string) json.RawMessage {
	if props == nil {
		props = map[string]Param{}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	b, _ := json.Marshal(schema)
	return b
}

// IntMin 返回指向 n 的指针，用于 Param.Minimum
func IntMin(n int) *int { return &n }
