package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/pptagent/agent/avatar"
	"github.com/BaSui01/pptagent/agent/presenter"
	"github.com/BaSui01/pptagent/agent/worker"
	"github.com/BaSui01/pptagent/api/handlers"
	"github.com/BaSui01/pptagent/config"
	"github.com/BaSui01/pptagent/internal/cache"
	"github.com/BaSui01/pptagent/internal/database"
	"github.com/BaSui01/pptagent/internal/history"
	"github.com/BaSui01/pptagent/internal/idempotency"
	"github.com/BaSui01/pptagent/internal/livekit"
	"github.com/BaSui01/pptagent/internal/metrics"
	"github.com/BaSui01/pptagent/internal/server"
	"github.com/BaSui01/pptagent/internal/slides"
	"github.com/BaSui01/pptagent/internal/telemetry"
	"github.com/BaSui01/pptagent/llm/tokenizer"
)

const (
	metricsNamespace = "pptagent"
)

// AppOptions 构建 App 所需的输入
type AppOptions struct {
	Mode     string
	Config   *config.Config
	Loader   *config.Loader
	LogLevel zap.AtomicLevel
}

// App 组装后的 Worker 进程：HTTP 服务、Metrics 服务、会话调度与外部依赖
type App struct {
	mode     string
	cfg      *config.Config
	logger   *zap.Logger
	logLevel zap.AtomicLevel

	collector *metrics.Collector
	telemetry *telemetry.Providers
	reloader  *config.Reloader
	limiter   *RateLimiter
	worker    *worker.Worker

	db       *database.PoolManager
	cache    *cache.Manager
	memGuard *idempotency.MemoryGuard

	httpServer    *server.Manager
	metricsServer *server.Manager
}

// NewApp 按配置创建全部依赖。ctx 控制后台协程的生命周期
func NewApp(ctx context.Context, opts AppOptions, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := opts.Config

	app := &App{
		mode:      opts.Mode,
		cfg:       cfg,
		logger:    logger,
		logLevel:  opts.LogLevel,
		collector: metrics.NewCollector(metricsNamespace, logger),
	}

	providers, err := telemetry.Init(cfg.Telemetry, Version, logger)
	if err != nil {
		logger.Warn("telemetry unavailable, continuing without export", zap.Error(err))
		providers = &telemetry.Providers{}
	}
	app.telemetry = providers

	if err := app.build(ctx, opts.Loader); err != nil {
		app.closeResources()
		_ = providers.Shutdown(context.Background())
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context, loader *config.Loader) error {
	cfg := a.cfg

	rooms := livekit.NewRoomClient(livekit.ClientConfig{
		URL:       cfg.LiveKit.URL,
		APIKey:    cfg.LiveKit.APIKey,
		APISecret: cfg.LiveKit.APISecret,
		Timeout:   cfg.LiveKit.Timeout,
	}, a.logger)

	// 数据库：direct 幻灯片源或历史记录需要
	if cfg.Slides.Source == "database" || cfg.Database.RecordHistory {
		db, err := database.Open(cfg.Database, a.logger)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		a.db = db.WithObserver(a.collector)
	}

	store, err := a.slideStore()
	if err != nil {
		return err
	}

	avatarProvider, err := avatar.New(cfg.Avatar, a.logger)
	if err != nil {
		return fmt.Errorf("create avatar provider: %w", err)
	}

	persona, err := presenter.LoadPersona(cfg.Presenter)
	if err != nil {
		return fmt.Errorf("load persona: %w", err)
	}

	a.reloader = config.NewReloader(loader, cfg, a.logger)
	deps := presenter.Deps{
		Rooms:     rooms,
		Slides:    store,
		Avatar:    avatarProvider,
		Tokenizer: tokenizer.ForModel(cfg.Realtime.Model),
		Observer:  a.collector,
		Logger:    a.logger,
	}
	// 每个会话使用当时生效的配置，Presenter.* 的热重载对新会话生效
	factory := func(job worker.Job) worker.Session {
		return worker.PresenterFactory(a.reloader.Current(), persona, deps)(job)
	}

	workerOpts := []worker.Option{
		worker.WithMetrics(a.collector),
		worker.WithLogger(a.logger),
	}
	var historyStore *history.Store
	if a.db != nil && cfg.Database.RecordHistory {
		historyStore = history.NewStore(a.db.DB())
		workerOpts = append(workerOpts, worker.WithRecorder(historyStore))
	}
	a.worker = worker.New(worker.Config{
		MaxSessions:  cfg.Worker.MaxSessions,
		DrainTimeout: cfg.Worker.DrainTimeout,
	}, factory, workerOpts...)

	// 健康检查
	health := handlers.NewHealthHandler(a.worker, a.logger)
	health.RegisterCheck(handlers.NewPingCheck("slides", store.Ping))
	health.RegisterCheck(handlers.NewPingCheck("livekit", rooms.Ping))
	if a.cache != nil {
		health.RegisterCheck(handlers.NewPingCheck("redis", a.cache.Ping))
	}
	if a.db != nil {
		health.RegisterCheck(handlers.NewPingCheck("database", a.db.Ping))
	}

	rs := routeSet{
		Health:   health,
		Sessions: handlers.NewSessionHandler(a.worker, a.logger),
		Webhook: handlers.NewWebhookHandler(
			livekit.NewWebhookReceiver(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret),
			a.worker,
			handlers.WebhookConfig{
				AutoDispatch:  cfg.Worker.AutoDispatch,
				AgentIdentity: cfg.Worker.AgentIdentity,
			},
			a.collector,
			a.logger,
		).WithEventGuard(a.webhookGuard(), cfg.Worker.WebhookDedupeTTL),
		Config:    handlers.NewConfigHandler(a.reloader, a.logger),
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}
	if historyStore != nil {
		rs.History = handlers.NewHistoryHandler(historyStore, a.logger)
	}

	a.limiter = newLimiter(ctx, cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, a.logger)
	a.reloader.OnReload(a.applyReload)

	handler := buildHandler(buildMux(rs), handlerOptions{
		Metrics: a.collector,
		Limiter: a.limiter,
		APIKeys: cfg.Server.APIKeys,
	}, a.logger)

	a.httpServer = server.NewManager("worker", handler, server.Config{
		Addr:            fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		MaxHeaderBytes:  1 << 20,
		MaxConnections:  cfg.Server.MaxConnections,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, a.logger)

	if cfg.Server.MetricsPort > 0 {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("GET /metrics", promhttp.Handler())
		a.metricsServer = server.NewManager("metrics", metricsMux, server.Config{
			Addr:            fmt.Sprintf(":%d", cfg.Server.MetricsPort),
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		}, a.logger)
	}
	return nil
}

// slideStore 按 slides.source 选择数据源，启用缓存时外包一层 Redis
func (a *App) slideStore() (slides.Store, error) {
	cfg := a.cfg

	var store slides.Store
	switch cfg.Slides.Source {
	case "database":
		store = slides.NewSQLStore(a.db.DB(), slides.ImageResolver{
			SupabaseURL: cfg.Supabase.URL,
			Bucket:      cfg.Supabase.BucketImages,
		})
	default:
		store = slides.NewSupabaseStore(slides.SupabaseConfig{
			URL:        cfg.Supabase.URL,
			ServiceKey: cfg.Supabase.ServiceKey,
			Bucket:     cfg.Supabase.BucketImages,
			Table:      cfg.Supabase.SlidesTable,
			Timeout:    cfg.Supabase.Timeout,
		}, a.logger)
	}

	if !cfg.Slides.CacheEnabled {
		return store, nil
	}

	cacheCfg := cache.DefaultConfig()
	cacheCfg.Addr = cfg.Redis.Addr
	cacheCfg.Password = cfg.Redis.Password
	cacheCfg.DB = cfg.Redis.DB
	cacheCfg.DefaultTTL = cfg.Slides.CacheTTL
	if cfg.Redis.PoolSize > 0 {
		cacheCfg.PoolSize = cfg.Redis.PoolSize
	}
	if cfg.Redis.MinIdleConns > 0 {
		cacheCfg.MinIdleConns = cfg.Redis.MinIdleConns
	}

	mgr, err := cache.NewManager(cacheCfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect slide cache: %w", err)
	}
	a.cache = mgr
	return slides.NewCachedStore(store, mgr, cfg.Slides.CacheTTL, a.logger).WithObserver(a.collector), nil
}

// applyReload 应用可热更新的字段
func (a *App) applyReload(oldCfg, newCfg *config.Config, changes []config.ConfigChange) {
	if oldCfg.Log.Level != newCfg.Log.Level {
		a.logLevel.SetLevel(parseLevel(newCfg.Log.Level))
		a.logger.Info("log level updated", zap.String("level", newCfg.Log.Level))
	}
	if oldCfg.Server.RateLimitRPS != newCfg.Server.RateLimitRPS ||
		oldCfg.Server.RateLimitBurst != newCfg.Server.RateLimitBurst {
		burst := newCfg.Server.RateLimitBurst
		if burst <= 0 {
			burst = newCfg.Server.RateLimitRPS
		}
		a.limiter.SetLimit(float64(newCfg.Server.RateLimitRPS), burst)
	}

	restart := 0
	for _, c := range changes {
		if c.RequiresRestart {
			restart++
		}
	}
	if restart > 0 {
		a.logger.Warn("some configuration changes take effect after restart", zap.Int("fields", restart))
	}
}

// Start 启动 HTTP 与 Metrics 服务器，dev 模式下同时监听配置文件
func (a *App) Start(ctx context.Context) error {
	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("start worker server: %w", err)
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
	}

	if a.mode == modeDev {
		if err := a.reloader.Start(ctx); err != nil {
			a.logger.Warn("config hot reload unavailable", zap.Error(err))
		}
	}

	a.logger.Info("worker ready",
		zap.String("addr", a.httpServer.Addr()),
		zap.Int("max_sessions", a.cfg.Worker.MaxSessions),
		zap.Bool("auto_dispatch", a.cfg.Worker.AutoDispatch),
		zap.String("slides_source", a.cfg.Slides.Source),
	)
	return nil
}

// Wait 阻塞到收到退出信号或服务器异常退出
func (a *App) Wait(ctx context.Context) error {
	var metricsErrs <-chan error
	if a.metricsServer != nil {
		metricsErrs = a.metricsServer.Errors()
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
		return nil
	case err := <-a.httpServer.Errors():
		return err
	case err := <-metricsErrs:
		return err
	}
}

// Shutdown 优雅关闭：停止派发并等待会话 → 关闭 HTTP → 关闭 Metrics → 释放外部资源
func (a *App) Shutdown() {
	if a.reloader != nil {
		_ = a.reloader.Stop()
	}

	// Drain 自身受 drain_timeout 约束
	if a.worker != nil {
		if err := a.worker.Drain(context.Background()); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			a.logger.Warn("drain finished with error", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.logger.Error("worker server shutdown error", zap.Error(err))
		}
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown error", zap.Error(err))
	}

	a.closeResources()
}

// webhookGuard 有 Redis 时跨实例去重，否则退化为进程内去重；TTL 为 0 时关闭
func (a *App) webhookGuard() handlers.EventGuard {
	ttl := a.cfg.Worker.WebhookDedupeTTL
	if ttl <= 0 {
		return nil
	}
	if a.cache != nil {
		return idempotency.NewRedisGuard(a.cache.Client(), a.cache.Prefix()+"idempotency:", a.logger)
	}
	a.memGuard = idempotency.NewMemoryGuard(ttl, a.logger)
	return a.memGuard
}

func (a *App) closeResources() {
	if a.memGuard != nil {
		a.memGuard.Close()
		a.memGuard = nil
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("cache close error", zap.Error(err))
		}
		a.cache = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("database close error", zap.Error(err))
		}
		a.db = nil
	}
}
