// 配置文件变更监听器实现。
//
// 轮询文件的修改时间与内容摘要，防抖后触发回调。
package config

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// --- 文件监听器类型定义 ---

// FileWatcher 轮询单个配置文件，内容变化时通知订阅者
type FileWatcher struct {
	mu sync.Mutex

	path          string
	pollInterval  time.Duration
	debounceDelay time.Duration

	running  bool
	stopChan chan struct{}
	done     chan struct{}

	callbacks []func(FileEvent)
	logger    *zap.Logger

	lastMod  time.Time
	lastSum  [sha256.Size]byte
	existing bool
}

// FileEvent 文件变更事件
type FileEvent struct {
	Path      string    `json:"path"`
	Removed   bool      `json:"removed"`
	Timestamp time.Time `json:"timestamp"`
}

// --- 文件监听器选项 ---

// WatcherOption 配置 FileWatcher
type WatcherOption func(*FileWatcher)

// WithDebounceDelay 设置防抖延迟
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		w.debounceDelay = d
	}
}

// WithPollInterval 设置轮询间隔
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithWatcherLogger 设置日志记录器
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// --- 文件监听器实现 ---

// NewFileWatcher 创建文件监听器，文件不存在时会等待其被创建
func NewFileWatcher(path string, opts ...WatcherOption) (*FileWatcher, error) {
	if path == "" {
		return nil, errors.New("watch path is empty")
	}

	w := &FileWatcher{
		path:          path,
		pollInterval:  time.Second,
		debounceDelay: 200 * time.Millisecond,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat path %s: %w", path, err)
		}
		w.logger.Warn("config file does not exist, will watch for creation",
			zap.String("path", path))
	}

	return w, nil
}

// OnChange 注册变更回调
func (w *FileWatcher) OnChange(callback func(FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start 开始轮询，ctx 取消或调用 Stop 后退出
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("watcher already running")
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.done = make(chan struct{})
	w.lastMod, w.lastSum, w.existing = w.snapshot()
	w.mu.Unlock()

	go w.loop(ctx)

	w.logger.Info("file watcher started",
		zap.String("path", w.path),
		zap.Duration("poll_interval", w.pollInterval))
	return nil
}

// Stop 停止轮询并等待后台 goroutine 退出
func (w *FileWatcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.stopChan)
	done := w.done
	w.mu.Unlock()

	<-done
	w.logger.Info("file watcher stopped")
	return nil
}

// IsRunning 返回监听器是否在运行
func (w *FileWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Path 返回监听的文件路径
func (w *FileWatcher) Path() string {
	return w.path
}

func (w *FileWatcher) loop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	var (
		pending  *FileEvent
		debounce <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			if evt, changed := w.check(); changed {
				// 连续变更合并为一次回调
				pending = &evt
				debounce = time.After(w.debounceDelay)
			}
		case <-debounce:
			debounce = nil
			if pending != nil {
				w.dispatch(*pending)
				pending = nil
			}
		}
	}
}

// check 对比修改时间，修改时间变化但内容未变时不触发
func (w *FileWatcher) check() (FileEvent, bool) {
	mod, sum, exists := w.snapshot()

	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case !exists && w.existing:
		w.existing = false
		return FileEvent{Path: w.path, Removed: true, Timestamp: time.Now()}, true
	case !exists:
		return FileEvent{}, false
	case !w.existing || (mod.After(w.lastMod) && sum != w.lastSum):
		w.existing, w.lastMod, w.lastSum = true, mod, sum
		return FileEvent{Path: w.path, Timestamp: time.Now()}, true
	default:
		w.lastMod = mod
		return FileEvent{}, false
	}
}

func (w *FileWatcher) snapshot() (time.Time, [sha256.Size]byte, bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		return time.Time{}, [sha256.Size]byte{}, false
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return info.ModTime(), [sha256.Size]byte{}, true
	}
	return info.ModTime(), sha256.Sum256(data), true
}

func (w *FileWatcher) dispatch(evt FileEvent) {
	w.mu.Lock()
	callbacks := make([]func(FileEvent), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.logger.Debug("dispatching file event",
		zap.String("path", evt.Path),
		zap.Bool("removed", evt.Removed))

	for _, cb := range callbacks {
		cb(evt)
	}
}
