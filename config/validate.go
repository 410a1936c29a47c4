package config

import (
	"fmt"
	"strings"
)

// MissingKeysError 列出所有缺失的必填配置项（使用兼容环境变量名）
type MissingKeysError struct {
	Keys []string
}

func (e *MissingKeysError) Error() string {
	return "missing required configuration: " + strings.Join(e.Keys, ", ")
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	// 验证服务器配置
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}

	// 验证 Worker 配置
	if c.Worker.MaxSessions <= 0 {
		errs = append(errs, "worker.max_sessions must be positive")
	}
	if c.Worker.AgentIdentity == "" {
		errs = append(errs, "worker.agent_identity must not be empty")
	}

	// 验证实时模型配置
	switch c.Realtime.Provider {
	case "openai":
	case "gemini":
		errs = append(errs, "realtime.provider gemini is not supported")
	default:
		errs = append(errs, fmt.Sprintf("unknown realtime.provider %q", c.Realtime.Provider))
	}
	if c.Realtime.Temperature < 0.6 || c.Realtime.Temperature > 1.2 {
		errs = append(errs, "realtime.temperature must be between 0.6 and 1.2")
	}

	switch c.Avatar.Provider {
	case "simli", "anam", "none":
	default:
		errs = append(errs, fmt.Sprintf("unknown avatar.provider %q", c.Avatar.Provider))
	}

	switch c.Slides.Source {
	case "supabase", "database":
	default:
		errs = append(errs, fmt.Sprintf("unknown slides.source %q", c.Slides.Source))
	}

	// 验证演示配置
	switch c.Presenter.ContextMode {
	case "full", "overview":
	default:
		errs = append(errs, fmt.Sprintf("unknown presenter.context_mode %q", c.Presenter.ContextMode))
	}
	if c.Presenter.SpeechMaxAttempts <= 0 {
		errs = append(errs, "presenter.speech_max_attempts must be positive")
	}
	if c.Presenter.SpeechTimeout <= 0 {
		errs = append(errs, "presenter.speech_timeout must be positive")
	}
	if c.Presenter.MetadataPollInterval <= 0 {
		errs = append(errs, "presenter.metadata_poll_interval must be positive")
	}
	if c.Presenter.KeepAliveInterval <= 0 {
		errs = append(errs, "presenter.keepalive_interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// RequiredKeys 检查所选提供者需要的凭据，一次返回全部缺失项。
// start / dev 在启动前调用，download-files 与 migrate 不需要这些凭据。
func (c *Config) RequiredKeys() error {
	var missing []string
	need := func(value, name string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}

	need(c.LiveKit.URL, "LIVEKIT_URL")
	need(c.LiveKit.APIKey, "LIVEKIT_API_KEY")
	need(c.LiveKit.APISecret, "LIVEKIT_API_SECRET")

	if c.Realtime.Provider == "openai" {
		need(c.Realtime.APIKey, "OPENAI_API_KEY")
	}

	switch c.Avatar.Provider {
	case "simli":
		need(c.Avatar.Simli.APIKey, "SIMLI_API_KEY")
		need(c.Avatar.Simli.FaceID, "SIMLI_FACE_ID")
	case "anam":
		need(c.Avatar.Anam.APIKey, "ANAM_API_KEY")
		need(c.Avatar.Anam.AvatarID, "ANAM_AVATAR_ID")
	}

	switch c.Slides.Source {
	case "supabase":
		need(c.Supabase.URL, "SUPABASE_URL")
		need(c.Supabase.ServiceKey, "SUPABASE_SERVICE_KEY")
	case "database":
		need(c.Database.Host, "PPTAGENT_DATABASE_HOST")
		need(c.Database.Name, "PPTAGENT_DATABASE_NAME")
	}

	if len(missing) > 0 {
		return &MissingKeysError{Keys: missing}
	}
	return nil
}
