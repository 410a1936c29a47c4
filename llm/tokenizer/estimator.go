package tokenizer

import "unicode/utf8"

// Estimator 按字符数估算 token：CJK 约 1.5 字符一个 token，其余约 4 字符
type Estimator struct {
	maxTokens int
}

// NewEstimator 创建估算器，maxTokens<=0 时取 8192
func NewEstimator(maxTokens int) *Estimator {
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	return &Estimator{maxTokens: maxTokens}
}

// CountTokens 估算 token 数，非空文本至少为 1
func (e *Estimator) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	total := utf8.RuneCountInString(text)
	cjk := 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
		}
	}
	n := int(float64(cjk)/1.5 + float64(total-cjk)/4.0)
	if n == 0 {
		n = 1
	}
	return n, nil
}

// MaxTokens 上下文长度
func (e *Estimator) MaxTokens() int { return e.maxTokens }

// Name 分词器名称
func (e *Estimator) Name() string { return "estimator" }

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0xF900 && r <= 0xFAFF) ||
		(r >= 0x3000 && r <= 0x303F) ||
		(r >= 0xFF00 && r <= 0xFFEF)
}
