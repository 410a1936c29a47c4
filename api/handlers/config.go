package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/pptagent/config"
	"github.com/BaSui01/pptagent/types"
)

// ConfigSource 当前生效的配置，*config.Reloader 实现了该接口
type ConfigSource interface {
	Current() *config.Config
	Version() int
	Reload() error
}

// ConfigView 配置响应
type ConfigView struct {
	Version int            `json:"version"`
	Config  map[string]any `json:"config"`
}

// ConfigHandler 配置查看与重载 API
type ConfigHandler struct {
	source ConfigSource
	logger *zap.Logger
}

// NewConfigHandler 创建配置处理器
func NewConfigHandler(source ConfigSource, logger *zap.Logger) *ConfigHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfigHandler{source: source, logger: logger.With(zap.String("component", "config_handler"))}
}

// Register 注册路由
func (h *ConfigHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/config", h.HandleGet)
	mux.HandleFunc("POST /api/v1/config/reload", h.HandleReload)
}

// HandleGet 返回脱敏后的配置
func (h *ConfigHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, h.view())
}

// HandleReload 重新读取配置文件，仅热更新字段生效
func (h *ConfigHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	if err := h.source.Reload(); err != nil {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "config reload failed: "+err.Error()).
			WithCause(err).
			WithHTTPStatus(http.StatusUnprocessableEntity), h.logger)
		return
	}
	h.logger.Info("config reloaded via API", zap.Int("version", h.source.Version()))
	WriteSuccess(w, r, h.view())
}

func (h *ConfigHandler) view() ConfigView {
	return ConfigView{Version: h.source.Version(), Config: h.source.Current().Sanitized()}
}
