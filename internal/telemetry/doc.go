// Package telemetry 初始化 OpenTelemetry SDK，为演示会话与 HTTP 请求提供
// TracerProvider 和 MeterProvider。禁用时保留全局 noop 实现，不连接任何外部服务。
package telemetry
