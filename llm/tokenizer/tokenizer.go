package tokenizer

import (
	"strings"
	"sync"
)

// Tokenizer token 计数接口
type Tokenizer interface {
	// CountTokens 返回文本的 token 数
	CountTokens(text string) (int, error)
	// MaxTokens 模型上下文长度
	MaxTokens() int
	// Name 分词器名称
	Name() string
}

var (
	registry   = make(map[string]Tokenizer)
	registryMu sync.RWMutex
)

// Register 为模型注册分词器
func Register(model string, t Tokenizer) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[model] = t
}

// lookup 精确匹配优先，否则取最长的前缀匹配
func lookup(model string) (Tokenizer, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if t, ok := registry[model]; ok {
		return t, true
	}
	var (
		best    Tokenizer
		bestLen int
	)
	for prefix, t := range registry {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best, bestLen = t, len(prefix)
		}
	}
	return best, best != nil
}

// ForModel 返回模型对应的分词器：已注册的优先，其次 tiktoken，最后估算器
func ForModel(model string) Tokenizer {
	if t, ok := lookup(model); ok {
		return t
	}
	if _, ok := encodingFor(model); ok {
		t := NewTiktoken(model)
		Register(model, t)
		return t
	}
	return NewEstimator(0)
}

// Count 计数失败时退回估算，调用方只需要一个近似值
func Count(t Tokenizer, text string) int {
	n, err := t.CountTokens(text)
	if err != nil {
		n, _ = NewEstimator(0).CountTokens(text)
	}
	return n
}

// Fits 判断文本是否在预算之内，同时返回 token 数
func Fits(t Tokenizer, text string, budget int) (int, bool) {
	n := Count(t, text)
	return n, budget <= 0 || n <= budget
}
