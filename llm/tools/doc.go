// Package tools 提供函数调用的注册与执行。
//
// Registry 保存工具函数、JSON Schema 与执行约束（超时、调用频率），
// Executor 负责参数校验、限流与超时控制。实时会话收到模型的函数调用后
// 交给 Executor 执行，并把结果回传给模型。
package tools
