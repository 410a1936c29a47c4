// Package config 提供 pptagent 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → PPTAGENT_ 前缀环境变量 → 兼容环境变量
// (LIVEKIT_URL、OPENAI_API_KEY、SIMLI_API_KEY 等) 的顺序叠加。
// dev 模式下通过 Reloader 轮询配置文件并热更新日志级别与演示参数。
package config
