package main

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/pptagent/api/handlers"
)

// probePaths 与 webhook 不需要 API Key
var authSkipPaths = []string{"/health", "/healthz", "/ready", "/version", "/webhook/"}

// routeSet 注册到 worker HTTP 服务器的处理器，可选项为 nil 时对应路由不存在
type routeSet struct {
	Health   *handlers.HealthHandler
	Sessions *handlers.SessionHandler
	Webhook  *handlers.WebhookHandler
	History  *handlers.HistoryHandler
	Config   *handlers.ConfigHandler

	Version   string
	BuildTime string
	GitCommit string
}

// buildMux 注册所有路由
func buildMux(rs routeSet) *http.ServeMux {
	mux := http.NewServeMux()

	if rs.Health != nil {
		mux.HandleFunc("GET /health", rs.Health.HandleHealthz)
		mux.HandleFunc("GET /healthz", rs.Health.HandleHealthz)
		mux.HandleFunc("GET /ready", rs.Health.HandleReady)
		mux.HandleFunc("GET /version", rs.Health.HandleVersion(rs.Version, rs.BuildTime, rs.GitCommit))
	}
	if rs.Webhook != nil {
		mux.HandleFunc("POST /webhook/livekit", rs.Webhook.HandleLiveKit)
	}
	if rs.Sessions != nil {
		rs.Sessions.Register(mux)
	}
	if rs.History != nil {
		rs.History.Register(mux)
	}
	if rs.Config != nil {
		rs.Config.Register(mux)
	}
	return mux
}

// handlerOptions 中间件依赖
type handlerOptions struct {
	Metrics HTTPRecorder
	Limiter *RateLimiter
	APIKeys []string
}

// buildHandler 按固定顺序包装中间件，Recovery 位于最外层
func buildHandler(mux http.Handler, opts handlerOptions, logger *zap.Logger) http.Handler {
	middlewares := []Middleware{
		Recovery(logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(logger),
	}
	if opts.Metrics != nil {
		middlewares = append(middlewares, MetricsMiddleware(opts.Metrics))
	}
	middlewares = append(middlewares, OTelTracing())
	if opts.Limiter != nil {
		middlewares = append(middlewares, opts.Limiter.Middleware())
	}
	middlewares = append(middlewares, APIKeyAuth(opts.APIKeys, authSkipPaths, logger))

	return Chain(mux, middlewares...)
}

// newLimiter 按配置创建限流器，ctx 结束时停止清理
func newLimiter(ctx context.Context, rps, burst int, logger *zap.Logger) *RateLimiter {
	if burst <= 0 {
		burst = rps
	}
	return NewRateLimiter(ctx, float64(rps), burst, logger)
}
