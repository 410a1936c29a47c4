// Package tlsutil 为访问 LiveKit、Supabase 与数字人服务的 HTTP 客户端提供统一的 TLS 配置。
package tlsutil
