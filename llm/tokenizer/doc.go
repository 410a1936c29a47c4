// Package tokenizer 为演示上下文预算提供 token 计数。
//
// OpenAI 系列模型使用 tiktoken 精确计数，编码文件首次使用时下载
// （download-files 命令会提前预热到 TIKTOKEN_CACHE_DIR）。
// 编码不可用时退回到按字符估算的 Estimator。
package tokenizer
