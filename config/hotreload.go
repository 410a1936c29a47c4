// 配置热重载（dev 模式）。
//
// 配置文件变化后重新加载、校验并与当前配置比较，通知订阅者。
// 只有日志级别与 presenter 参数会在运行中生效，其余变更记录为需要重启。
package config

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ConfigChange 单个字段的变更
type ConfigChange struct {
	Path            string `json:"path"`
	OldValue        any    `json:"old_value,omitempty"`
	NewValue        any    `json:"new_value,omitempty"`
	RequiresRestart bool   `json:"requires_restart"`
}

// ReloadCallback 新配置生效后调用
type ReloadCallback func(oldConfig, newConfig *Config, changes []ConfigChange)

// hotReloadablePrefixes 运行中可以生效的字段前缀（按 Go 字段路径）
var hotReloadablePrefixes = []string{
	"Log.Level",
	"Presenter.",
	"Slides.CacheTTL",
	"Server.RateLimitRPS",
	"Server.RateLimitBurst",
}

// IsHotReloadable 判断字段路径是否可以热重载
func IsHotReloadable(path string) bool {
	for _, p := range hotReloadablePrefixes {
		if path == p || (strings.HasSuffix(p, ".") && strings.HasPrefix(path, p)) {
			return true
		}
	}
	return false
}

// Reloader 监听配置文件并重新加载
type Reloader struct {
	mu sync.RWMutex

	loader    *Loader
	current   *Config
	watcher   *FileWatcher
	callbacks []ReloadCallback
	logger    *zap.Logger
	version   int
	loadedAt  time.Time
}

// NewReloader 创建重载器，initial 为已经加载好的配置
func NewReloader(loader *Loader, initial *Config, logger *zap.Logger) *Reloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reloader{
		loader:   loader,
		current:  initial,
		logger:   logger.With(zap.String("component", "config_reloader")),
		version:  1,
		loadedAt: time.Now(),
	}
}

// OnReload 注册重载回调
func (r *Reloader) OnReload(cb ReloadCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

// Current 返回当前配置
func (r *Reloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Version 返回配置版本号，每次成功重载加一
func (r *Reloader) Version() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Start 开始监听配置文件，未指定配置文件时直接返回
func (r *Reloader) Start(ctx context.Context, opts ...WatcherOption) error {
	path := r.loader.ConfigPath()
	if path == "" {
		r.logger.Debug("no config file, hot reload disabled")
		return nil
	}

	opts = append([]WatcherOption{WithWatcherLogger(r.logger)}, opts...)
	w, err := NewFileWatcher(path, opts...)
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	w.OnChange(func(evt FileEvent) {
		if evt.Removed {
			r.logger.Warn("config file removed, keeping current configuration",
				zap.String("path", evt.Path))
			return
		}
		if err := r.Reload(); err != nil {
			r.logger.Error("config reload failed", zap.Error(err))
		}
	})

	r.mu.Lock()
	r.watcher = w
	r.mu.Unlock()

	return w.Start(ctx)
}

// Stop 停止监听
func (r *Reloader) Stop() error {
	r.mu.RLock()
	w := r.watcher
	r.mu.RUnlock()
	if w == nil {
		return nil
	}
	return w.Stop()
}

// Reload 重新加载配置。校验失败时保留当前配置并返回错误
func (r *Reloader) Reload() error {
	next, err := r.loader.Load()
	if err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	old := r.current
	changes := DetectChanges(old, next)
	if len(changes) == 0 {
		r.mu.Unlock()
		r.logger.Debug("config file touched without changes")
		return nil
	}
	r.current = next
	r.version++
	r.loadedAt = time.Now()
	callbacks := make([]ReloadCallback, len(r.callbacks))
	copy(callbacks, r.callbacks)
	version := r.version
	r.mu.Unlock()

	for _, c := range changes {
		fields := []zap.Field{
			zap.String("path", c.Path),
			zap.Bool("requires_restart", c.RequiresRestart),
		}
		if !isSensitivePath(c.Path) {
			fields = append(fields, zap.Any("old_value", c.OldValue), zap.Any("new_value", c.NewValue))
		}
		r.logger.Info("configuration changed", fields...)
	}
	r.logger.Info("configuration reloaded",
		zap.Int("version", version),
		zap.Int("changes", len(changes)))

	for _, cb := range callbacks {
		cb(old, next, changes)
	}
	return nil
}

// DetectChanges 递归比较两个配置，返回变化的叶子字段
func DetectChanges(oldConfig, newConfig *Config) []ConfigChange {
	var changes []ConfigChange
	compareStructs("", reflect.ValueOf(oldConfig).Elem(), reflect.ValueOf(newConfig).Elem(), &changes)
	return changes
}

func compareStructs(prefix string, oldVal, newVal reflect.Value, changes *[]ConfigChange) {
	t := oldVal.Type()
	for i := 0; i < oldVal.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		path := field.Name
		if prefix != "" {
			path = prefix + "." + field.Name
		}

		oldField, newField := oldVal.Field(i), newVal.Field(i)
		if oldField.Kind() == reflect.Struct {
			compareStructs(path, oldField, newField, changes)
			continue
		}
		if !reflect.DeepEqual(oldField.Interface(), newField.Interface()) {
			*changes = append(*changes, ConfigChange{
				Path:            path,
				OldValue:        oldField.Interface(),
				NewValue:        newField.Interface(),
				RequiresRestart: !IsHotReloadable(path),
			})
		}
	}
}

// --- 脱敏视图 ---

var sensitiveKeys = []string{"password", "api_key", "secret", "service_key", "token"}

func isSensitivePath(path string) bool {
	lower := strings.ToLower(path)
	for _, k := range []string{"password", "apikey", "secret", "servicekey", "token"} {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// Sanitized 返回脱敏后的配置视图（yaml 字段名），供 API 与日志输出
func (c *Config) Sanitized() map[string]any {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil
	}
	redactSensitiveFields(out)
	return out
}

func redactSensitiveFields(data map[string]any) {
	for key, value := range data {
		lower := strings.ToLower(key)
		for _, s := range sensitiveKeys {
			if strings.Contains(lower, s) {
				switch v := value.(type) {
				case string:
					if v != "" {
						data[key] = "[REDACTED]"
					}
				case []any:
					redacted := make([]any, len(v))
					for i := range v {
						redacted[i] = "[REDACTED]"
					}
					data[key] = redacted
				}
				break
			}
		}
		if nested, ok := value.(map[string]any); ok {
			redactSensitiveFields(nested)
		}
	}
}
