// =============================================================================
// 📦 pptagent 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("PPTAGENT").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 前缀环境变量 → 兼容环境变量（LIVEKIT_URL 等）
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 pptagent 的完整配置结构
type Config struct {
	// Server Worker HTTP 服务配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Worker 任务调度配置
	Worker WorkerConfig `yaml:"worker" env:"WORKER"`

	// LiveKit 房间服务配置
	LiveKit LiveKitConfig `yaml:"livekit" env:"LIVEKIT"`

	// Realtime 实时语音模型配置
	Realtime RealtimeConfig `yaml:"realtime" env:"REALTIME"`

	// Avatar 数字人配置
	Avatar AvatarConfig `yaml:"avatar" env:"AVATAR"`

	// Supabase 幻灯片数据源
	Supabase SupabaseConfig `yaml:"supabase" env:"SUPABASE"`

	// Slides 幻灯片存储选择与缓存
	Slides SlidesConfig `yaml:"slides" env:"SLIDES"`

	// Database 直连数据库配置（slides.source=database 时使用）
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Redis 缓存配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Presenter 演示流程配置
	Presenter PresenterConfig `yaml:"presenter" env:"PRESENTER"`

	// Assets download-files 预下载配置
	Assets AssetsConfig `yaml:"assets" env:"ASSETS"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口（webhook + 控制 API）
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 最大并发连接数（0 表示不限制）
	MaxConnections int `yaml:"max_connections" env:"MAX_CONNECTIONS"`
	// API Keys（为空时控制 API 不鉴权）
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// 每个 IP 的限流
	RateLimitRPS   int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// WorkerConfig 任务调度配置
type WorkerConfig struct {
	// 同时运行的最大演示会话数
	MaxSessions int `yaml:"max_sessions" env:"MAX_SESSIONS"`
	// 关闭时等待会话结束的最长时间
	DrainTimeout time.Duration `yaml:"drain_timeout" env:"DRAIN_TIMEOUT"`
	// Agent 在房间中的身份
	AgentIdentity string `yaml:"agent_identity" env:"AGENT_IDENTITY"`
	// Agent 在房间中显示的名称
	AgentName string `yaml:"agent_name" env:"AGENT_NAME"`
	// 是否根据 webhook 自动派发任务
	AutoDispatch bool `yaml:"auto_dispatch" env:"AUTO_DISPATCH"`
	// webhook 事件去重窗口，0 表示不去重
	WebhookDedupeTTL time.Duration `yaml:"webhook_dedupe_ttl" env:"WEBHOOK_DEDUPE_TTL"`
}

// LiveKitConfig LiveKit 配置
type LiveKitConfig struct {
	URL       string `yaml:"url" env:"URL"`
	APIKey    string `yaml:"api_key" env:"API_KEY"`
	APISecret string `yaml:"api_secret" env:"API_SECRET"`
	// RoomService 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 下发给数字人的入房 token 有效期
	TokenTTL time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
}

// RealtimeConfig 实时语音模型配置
type RealtimeConfig struct {
	// 提供者: openai
	Provider string `yaml:"provider" env:"PROVIDER"`
	// OpenAI API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// Gemini API Key（保留，当前不支持 gemini 实时会话）
	GeminiAPIKey string `yaml:"gemini_api_key" env:"GEMINI_API_KEY"`
	// 基础 URL（wss://api.openai.com）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 模型
	Model string `yaml:"model" env:"MODEL"`
	// 音色
	Voice string `yaml:"voice" env:"VOICE"`
	// 温度
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 判定用户说完的静音时长
	EndpointingDelay time.Duration `yaml:"endpointing_delay" env:"ENDPOINTING_DELAY"`
	// 建立连接超时
	DialTimeout time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
}

// AvatarConfig 数字人配置
type AvatarConfig struct {
	// 提供者: simli, anam, none
	Provider string      `yaml:"provider" env:"PROVIDER"`
	Simli    SimliConfig `yaml:"simli" env:"SIMLI"`
	Anam     AnamConfig  `yaml:"anam" env:"ANAM"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// SimliConfig Simli 配置
type SimliConfig struct {
	APIKey  string `yaml:"api_key" env:"API_KEY"`
	FaceID  string `yaml:"face_id" env:"FACE_ID"`
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 单次会话最长时长
	MaxSessionLength time.Duration `yaml:"max_session_length" env:"MAX_SESSION_LENGTH"`
	// 空闲断开时长
	MaxIdleTime time.Duration `yaml:"max_idle_time" env:"MAX_IDLE_TIME"`
}

// AnamConfig Anam 配置
type AnamConfig struct {
	APIKey   string `yaml:"api_key" env:"API_KEY"`
	AvatarID string `yaml:"avatar_id" env:"AVATAR_ID"`
	Name     string `yaml:"name" env:"NAME"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL"`
}

// SupabaseConfig Supabase 配置
type SupabaseConfig struct {
	URL          string        `yaml:"url" env:"URL"`
	ServiceKey   string        `yaml:"service_key" env:"SERVICE_KEY"`
	BucketImages string        `yaml:"bucket_images" env:"BUCKET_IMAGES"`
	SlidesTable  string        `yaml:"slides_table" env:"SLIDES_TABLE"`
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// SlidesConfig 幻灯片存储配置
type SlidesConfig struct {
	// 数据源: supabase, database
	Source string `yaml:"source" env:"SOURCE"`
	// 是否启用 Redis 缓存
	CacheEnabled bool `yaml:"cache_enabled" env:"CACHE_ENABLED"`
	// 缓存过期时间
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
	// ConvertAPI Key，由上游 PPT 转换流程使用，worker 仅透传
	ConvertAPIKey string `yaml:"convert_api_key" env:"CONVERT_API_KEY"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 是否记录会话历史（slides.source=database 时数据库总会打开）
	RecordHistory bool `yaml:"record_history" env:"RECORD_HISTORY"`
	// 驱动类型: postgres, mysql
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 时为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// PresenterConfig 演示流程配置
type PresenterConfig struct {
	// 人设（系统指令）
	Persona string `yaml:"persona" env:"PERSONA"`
	// 人设文件，优先于 Persona
	PersonaFile string `yaml:"persona_file" env:"PERSONA_FILE"`
	// 上下文模式: full, overview
	ContextMode string `yaml:"context_mode" env:"CONTEXT_MODE"`
	// full 模式允许的最大 token 数，超出时退化为 overview
	MaxContextTokens int `yaml:"max_context_tokens" env:"MAX_CONTEXT_TOKENS"`
	// overview 模式下当前页前后附带的页数
	ContextWindow int `yaml:"context_window" env:"CONTEXT_WINDOW"`
	// 工具返回简短格式 "Slide n/total"
	CompactToolReplies bool `yaml:"compact_tool_replies" env:"COMPACT_TOOL_REPLIES"`
	// 等待参会者元数据
	MetadataInitialDelay time.Duration `yaml:"metadata_initial_delay" env:"METADATA_INITIAL_DELAY"`
	MetadataPollInterval time.Duration `yaml:"metadata_poll_interval" env:"METADATA_POLL_INTERVAL"`
	MetadataTimeout      time.Duration `yaml:"metadata_timeout" env:"METADATA_TIMEOUT"`
	// 单页讲解的最大尝试次数与间隔
	SpeechMaxAttempts int           `yaml:"speech_max_attempts" env:"SPEECH_MAX_ATTEMPTS"`
	SpeechRetryDelay  time.Duration `yaml:"speech_retry_delay" env:"SPEECH_RETRY_DELAY"`
	// 单页讲解（生成加播放）的最长时间，超时后打断并翻到下一页
	SpeechTimeout time.Duration `yaml:"speech_timeout" env:"SPEECH_TIMEOUT"`
	// 翻页间隔
	SlidePause time.Duration `yaml:"slide_pause" env:"SLIDE_PAUSE"`
	// 问答阶段检查房间是否为空的间隔
	KeepAliveInterval time.Duration `yaml:"keepalive_interval" env:"KEEPALIVE_INTERVAL"`
}

// AssetsConfig download-files 配置
type AssetsConfig struct {
	// 下载目录
	Dir string `yaml:"dir" env:"DIR"`
	// 需要预热的 tokenizer 模型
	TokenizerModels []string `yaml:"tokenizer_models" env:"TOKENIZER_MODELS"`
	// 额外文件
	Files []AssetFile `yaml:"files" env:"-"`
	// 并发数
	Concurrency int `yaml:"concurrency" env:"CONCURRENCY"`
	// 单文件下载超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// AssetFile 需要下载的单个文件
type AssetFile struct {
	URL    string `yaml:"url"`
	Path   string `yaml:"path"`
	SHA256 string `yaml:"sha256"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	legacyEnv  bool
	lookupEnv  func(string) (string, bool)
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "PPTAGENT",
		legacyEnv:  true,
		lookupEnv:  os.LookupEnv,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithLegacyEnv 控制是否读取 LIVEKIT_URL、OPENAI_API_KEY 等无前缀变量
func (l *Loader) WithLegacyEnv(enabled bool) *Loader {
	l.legacyEnv = enabled
	return l
}

// WithEnvLookup 替换环境变量读取函数（测试使用）
func (l *Loader) WithEnvLookup(fn func(string) (string, bool)) *Loader {
	if fn != nil {
		l.lookupEnv = fn
	}
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// ConfigPath 返回配置文件路径
func (l *Loader) ConfigPath() string {
	return l.configPath
}

// Load 加载配置
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 前缀环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 兼容环境变量
	if l.legacyEnv {
		l.loadLegacyEnv(cfg)
	}

	// 5. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// time.Duration 之外的结构体递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := l.lookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			field.Set(reflect.ValueOf(out))
		}
	}

	return nil
}

// =============================================================================
// 🔁 兼容环境变量
// =============================================================================

// legacyEnvBindings 与 .env 文件中的变量名保持一致
var legacyEnvBindings = map[string]func(*Config, string){
	"LIVEKIT_URL":          func(c *Config, v string) { c.LiveKit.URL = v },
	"LIVEKIT_API_KEY":      func(c *Config, v string) { c.LiveKit.APIKey = v },
	"LIVEKIT_API_SECRET":   func(c *Config, v string) { c.LiveKit.APISecret = v },
	"OPENAI_API_KEY":       func(c *Config, v string) { c.Realtime.APIKey = v },
	"GEMINI_API_KEY":       func(c *Config, v string) { c.Realtime.GeminiAPIKey = v },
	"SIMLI_API_KEY":        func(c *Config, v string) { c.Avatar.Simli.APIKey = v },
	"SIMLI_FACE_ID":        func(c *Config, v string) { c.Avatar.Simli.FaceID = v },
	"ANAM_API_KEY":         func(c *Config, v string) { c.Avatar.Anam.APIKey = v },
	"ANAM_AVATAR_ID":       func(c *Config, v string) { c.Avatar.Anam.AvatarID = v },
	"SUPABASE_URL":         func(c *Config, v string) { c.Supabase.URL = v },
	"SUPABASE_SERVICE_KEY": func(c *Config, v string) { c.Supabase.ServiceKey = v },
	"BUCKET_IMAGES":        func(c *Config, v string) { c.Supabase.BucketImages = v },
	"CONVERTAPI_KEY":       func(c *Config, v string) { c.Slides.ConvertAPIKey = v },
}

// loadLegacyEnv 只填充尚未设置的字段，前缀变量优先
func (l *Loader) loadLegacyEnv(cfg *Config) {
	for key, set := range legacyEnvBindings {
		v, ok := l.lookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		prefixed, hasPrefixed := l.lookupEnv(l.envPrefix + "_" + legacyToPrefixed(key))
		if hasPrefixed && prefixed != "" {
			continue
		}
		set(cfg, strings.TrimSpace(v))
	}
}

// legacyToPrefixed 返回兼容变量对应的前缀变量后缀，用于判断是否被显式覆盖
func legacyToPrefixed(key string) string {
	switch key {
	case "OPENAI_API_KEY":
		return "REALTIME_API_KEY"
	case "GEMINI_API_KEY":
		return "REALTIME_GEMINI_API_KEY"
	case "SIMLI_API_KEY":
		return "AVATAR_SIMLI_API_KEY"
	case "SIMLI_FACE_ID":
		return "AVATAR_SIMLI_FACE_ID"
	case "ANAM_API_KEY":
		return "AVATAR_ANAM_API_KEY"
	case "ANAM_AVATAR_ID":
		return "AVATAR_ANAM_AVATAR_ID"
	case "BUCKET_IMAGES":
		return "SUPABASE_BUCKET_IMAGES"
	case "CONVERTAPI_KEY":
		return "SLIDES_CONVERT_API_KEY"
	default:
		return key
	}
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}
