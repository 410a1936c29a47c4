package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

type encodingInfo struct {
	encoding  string
	maxTokens int
}

// 实时模型与 gpt-4o 共用 o200k_base
var modelEncodings = map[string]encodingInfo{
	"gpt-4o-realtime":      {encoding: "o200k_base", maxTokens: 128000},
	"gpt-4o-mini-realtime": {encoding: "o200k_base", maxTokens: 128000},
	"gpt-realtime":         {encoding: "o200k_base", maxTokens: 32000},
	"gpt-4o":               {encoding: "o200k_base", maxTokens: 128000},
	"gpt-4.1":              {encoding: "o200k_base", maxTokens: 1047576},
	"gpt-4":                {encoding: "cl100k_base", maxTokens: 8192},
	"gpt-3.5-turbo":        {encoding: "cl100k_base", maxTokens: 16385},
}

func encodingFor(model string) (encodingInfo, bool) {
	if info, ok := modelEncodings[model]; ok {
		return info, true
	}
	var (
		best    encodingInfo
		bestLen int
	)
	for prefix, info := range modelEncodings {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best, bestLen = info, len(prefix)
		}
	}
	return best, bestLen > 0
}

// Tiktoken 基于 tiktoken-go 的精确计数，编码延迟加载
type Tiktoken struct {
	model string
	info  encodingInfo

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

// NewTiktoken 创建分词器，未知模型使用 cl100k_base
func NewTiktoken(model string) *Tiktoken {
	info, ok := encodingFor(model)
	if !ok {
		info = encodingInfo{encoding: "cl100k_base", maxTokens: 8192}
	}
	return &Tiktoken{model: model, info: info}
}

func (t *Tiktoken) load() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.info.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("load tiktoken encoding %s: %w", t.info.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// CountTokens 返回文本的 token 数
func (t *Tiktoken) CountTokens(text string) (int, error) {
	if err := t.load(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

// MaxTokens 模型上下文长度
func (t *Tiktoken) MaxTokens() int { return t.info.maxTokens }

// Name 分词器名称
func (t *Tiktoken) Name() string { return "tiktoken[" + t.info.encoding + "]" }

// Encoding 使用的编码名
func (t *Tiktoken) Encoding() string { return t.info.encoding }

// Warm 预加载模型所需的编码（触发下载并写入缓存目录），返回已加载的编码名
func Warm(models []string) ([]string, error) {
	seen := make(map[string]struct{})
	var loaded []string
	for _, m := range models {
		t := NewTiktoken(m)
		if _, ok := seen[t.info.encoding]; ok {
			continue
		}
		seen[t.info.encoding] = struct{}{}
		if err := t.load(); err != nil {
			return loaded, err
		}
		loaded = append(loaded, t.info.encoding)
	}
	return loaded, nil
}
