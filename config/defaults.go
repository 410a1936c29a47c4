// =============================================================================
// 📦 pptagent 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Worker:    DefaultWorkerConfig(),
		LiveKit:   DefaultLiveKitConfig(),
		Realtime:  DefaultRealtimeConfig(),
		Avatar:    DefaultAvatarConfig(),
		Supabase:  DefaultSupabaseConfig(),
		Slides:    DefaultSlidesConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		Presenter: DefaultPresenterConfig(),
		Assets:    DefaultAssetsConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8081,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		MaxConnections:  1024,
		RateLimitRPS:    50,
		RateLimitBurst:  100,
	}
}

// DefaultWorkerConfig 返回默认 Worker 配置
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		MaxSessions:   8,
		DrainTimeout:  30 * time.Minute,
		AgentIdentity: "ppt-presenter",
		AgentName:     "Dia",
		AutoDispatch:  true,

		WebhookDedupeTTL: 10 * time.Minute,
	}
}

// DefaultLiveKitConfig 返回默认 LiveKit 配置
func DefaultLiveKitConfig() LiveKitConfig {
	return LiveKitConfig{
		Timeout:  10 * time.Second,
		TokenTTL: 2 * time.Hour,
	}
}

// DefaultRealtimeConfig 返回默认实时模型配置
func DefaultRealtimeConfig() RealtimeConfig {
	return RealtimeConfig{
		Provider:         "openai",
		BaseURL:          "wss://api.openai.com",
		Model:            "gpt-4o-realtime-preview",
		Voice:            "alloy",
		Temperature:      0.8,
		EndpointingDelay: 500 * time.Millisecond,
		DialTimeout:      15 * time.Second,
	}
}

// DefaultAvatarConfig 返回默认数字人配置
func DefaultAvatarConfig() AvatarConfig {
	return AvatarConfig{
		Provider: "simli",
		Simli: SimliConfig{
			BaseURL:          "https://api.simli.ai",
			MaxSessionLength: 30 * time.Minute,
			MaxIdleTime:      5 * time.Minute,
		},
		Anam: AnamConfig{
			Name:    "Dia",
			BaseURL: "https://api.anam.ai",
		},
		Timeout: 20 * time.Second,
	}
}

// DefaultSupabaseConfig 返回默认 Supabase 配置
func DefaultSupabaseConfig() SupabaseConfig {
	return SupabaseConfig{
		BucketImages: "slide-images",
		SlidesTable:  "slides",
		Timeout:      10 * time.Second,
	}
}

// DefaultSlidesConfig 返回默认幻灯片存储配置
func DefaultSlidesConfig() SlidesConfig {
	return SlidesConfig{
		Source:       "supabase",
		CacheEnabled: false,
		CacheTTL:     5 * time.Minute,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Password:        "",
		Name:            "postgres",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultPresenterConfig 返回默认演示配置
func DefaultPresenterConfig() PresenterConfig {
	return PresenterConfig{
		ContextMode:          "full",
		MaxContextTokens:     12000,
		ContextWindow:        2,
		MetadataInitialDelay: 2500 * time.Millisecond,
		MetadataPollInterval: 500 * time.Millisecond,
		MetadataTimeout:      15 * time.Second,
		SpeechMaxAttempts:    3,
		SpeechRetryDelay:     time.Second,
		SpeechTimeout:        25 * time.Second,
		SlidePause:           2 * time.Second,
		KeepAliveInterval:    60 * time.Second,
	}
}

// DefaultAssetsConfig 返回默认资源下载配置
func DefaultAssetsConfig() AssetsConfig {
	return AssetsConfig{
		Dir:             "./assets",
		TokenizerModels: []string{"gpt-4o"},
		Concurrency:     4,
		Timeout:         2 * time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "pptagent",
		SampleRate:   0.1,
	}
}

// DevOverrides 将配置调整为 dev 子命令使用的开发模式
func DevOverrides(cfg *Config) {
	cfg.Log.Level = "debug"
	cfg.Log.Format = "console"
	cfg.Worker.DrainTimeout = 5 * time.Second
}
