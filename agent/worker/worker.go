package worker

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/pptagent/agent/presenter"
	"github.com/BaSui01/pptagent/internal/history"
	"github.com/BaSui01/pptagent/internal/pool"
	"github.com/BaSui01/pptagent/types"
)

var (
	ErrSessionExists   = errors.New("session already running for room")
	ErrSessionNotFound = errors.New("session not found")
	ErrWorkerBusy      = errors.New("worker is at capacity")
	ErrDraining        = errors.New("worker is draining")
)

const (
	recordTimeout      = 5 * time.Second
	cancelWaitTimeout  = 15 * time.Second
	defaultMaxSessions = 8
)

// Job 一次派发请求
type Job struct {
	ID   string `json:"id"`
	Room string `json:"room"`
}

// Session 一个正在运行的会话，*presenter.Presenter 实现了该接口
type Session interface {
	Run(ctx context.Context) error
	Snapshot() presenter.Snapshot
	Navigate(ctx context.Context, action string, number int) (string, error)
	SendText(ctx context.Context, text string) error
	Interrupt(ctx context.Context) error
	AppendAudio(ctx context.Context, pcm []byte) error
}

// Factory 为任务创建会话
type Factory func(job Job) Session

// Recorder 持久化结束的会话，*history.Store 实现了该接口
type Recorder interface {
	Save(ctx context.Context, rec *history.Record) error
}

// Metrics 会话生命周期指标，*metrics.Collector 实现了该接口
type Metrics interface {
	SessionStarted()
	SessionEnded(outcome string, duration time.Duration, slides int)
	SessionRejected(reason string)
}

// Config Worker 配置
type Config struct {
	MaxSessions  int
	DrainTimeout time.Duration
}

// SessionInfo 会话快照及其任务 ID
type SessionInfo struct {
	JobID string `json:"job_id"`
	presenter.Snapshot
}

type entry struct {
	job       Job
	session   Session
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time
}

// Worker 演示会话调度器
type Worker struct {
	cfg      Config
	factory  Factory
	pool     *pool.GoroutinePool
	recorder Recorder
	metrics  Metrics
	logger   *zap.Logger

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*entry
	draining bool
}

// Option Worker 选项
type Option func(*Worker)

// WithRecorder 会话结束时写入历史记录
func WithRecorder(r Recorder) Option {
	return func(w *Worker) { w.recorder = r }
}

// WithMetrics 设置指标收集器
func WithMetrics(m Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// New 创建 Worker
func New(cfg Config, factory Factory, opts ...Option) *Worker {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = defaultMaxSessions
	}
	w := &Worker{
		cfg:      cfg,
		factory:  factory,
		logger:   zap.NewNop(),
		sessions: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "worker"))
	w.baseCtx, w.cancelBase = context.WithCancel(context.Background())
	w.pool = pool.NewGoroutinePool(pool.GoroutinePoolConfig{
		MaxWorkers: cfg.MaxSessions,
		PanicHandler: func(r any) {
			w.logger.Error("session panicked", zap.Any("panic", r))
		},
	})
	return w
}

// =============================================================================
// 🚀 派发
// =============================================================================

// Dispatch 为房间启动会话。会话的生命周期不受 ctx 影响
func (w *Worker) Dispatch(ctx context.Context, job Job) (Job, error) {
	job.Room = strings.TrimSpace(job.Room)
	if job.Room == "" {
		return job, types.NewError(types.ErrInvalidRequest, "room is required").
			WithHTTPStatus(http.StatusBadRequest)
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	w.mu.Lock()
	if w.draining {
		w.mu.Unlock()
		w.rejected("draining")
		return job, drainingError()
	}
	if _, ok := w.sessions[job.Room]; ok {
		w.mu.Unlock()
		w.rejected("exists")
		return job, types.NewError(types.ErrSessionExists, "a session is already running in room "+job.Room).
			WithCause(ErrSessionExists).
			WithHTTPStatus(http.StatusConflict)
	}

	sctx, cancel := context.WithCancel(w.baseCtx)
	e := &entry{
		job:       job,
		session:   w.factory(job),
		cancel:    cancel,
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}
	w.sessions[job.Room] = e
	w.mu.Unlock()

	if err := w.pool.Submit(sctx, func(ctx context.Context) error {
		return w.run(ctx, e)
	}); err != nil {
		cancel()
		w.mu.Lock()
		delete(w.sessions, job.Room)
		w.mu.Unlock()

		if errors.Is(err, pool.ErrPoolClosed) {
			w.rejected("draining")
			return job, drainingError()
		}
		w.rejected("busy")
		w.logger.Warn("worker at capacity, rejecting job",
			zap.String("room", job.Room), zap.Int("max_sessions", w.cfg.MaxSessions))
		return job, types.NewError(types.ErrWorkerBusy, "worker is at capacity").
			WithCause(ErrWorkerBusy).
			WithHTTPStatus(http.StatusServiceUnavailable).
			WithRetryable(true)
	}

	if w.metrics != nil {
		w.metrics.SessionStarted()
	}
	w.logger.Info("job dispatched", zap.String("room", job.Room), zap.String("job_id", job.ID))
	return job, nil
}

func (w *Worker) run(ctx context.Context, e *entry) error {
	defer close(e.done)
	defer func() {
		e.cancel()
		w.mu.Lock()
		if cur, ok := w.sessions[e.job.Room]; ok && cur == e {
			delete(w.sessions, e.job.Room)
		}
		w.mu.Unlock()
	}()

	err := e.session.Run(ctx)
	snap := e.session.Snapshot()
	outcome := classify(err)
	elapsed := time.Since(e.startedAt)

	if w.metrics != nil {
		w.metrics.SessionEnded(outcome, elapsed, snap.SlidesPresented)
	}
	w.record(e, snap, outcome, err)

	fields := []zap.Field{
		zap.String("room", e.job.Room),
		zap.String("job_id", e.job.ID),
		zap.String("outcome", outcome),
		zap.Duration("duration", elapsed),
		zap.Int("slides_presented", snap.SlidesPresented),
	}
	if outcome == history.OutcomeFailed {
		w.logger.Error("session failed", append(fields, zap.Error(err))...)
	} else {
		w.logger.Info("session ended", fields...)
	}

	if outcome == history.OutcomeCancelled {
		return nil
	}
	return err
}

func (w *Worker) record(e *entry, snap presenter.Snapshot, outcome string, runErr error) {
	if w.recorder == nil {
		return
	}
	ended := time.Now()
	rec := &history.Record{
		ID:              e.job.ID,
		Room:            e.job.Room,
		PresentationID:  snap.PresentationID,
		TotalSlides:     snap.TotalSlides,
		SlidesPresented: snap.SlidesPresented,
		Outcome:         outcome,
		StartedAt:       e.startedAt,
		EndedAt:         &ended,
	}
	if outcome == history.OutcomeFailed && runErr != nil {
		rec.ErrorMessage = runErr.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := w.recorder.Save(ctx, rec); err != nil {
		w.logger.Error("failed to record session history", zap.String("room", e.job.Room), zap.Error(err))
	}
}

// =============================================================================
// 🔍 查询与控制
// =============================================================================

// Session 返回房间的会话
func (w *Worker) Session(room string) (Session, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.sessions[room]
	if !ok {
		return nil, notFoundError(room)
	}
	return e.session, nil
}

// Info 返回房间的会话快照
func (w *Worker) Info(room string) (SessionInfo, error) {
	w.mu.RLock()
	e, ok := w.sessions[room]
	w.mu.RUnlock()
	if !ok {
		return SessionInfo{}, notFoundError(room)
	}
	return SessionInfo{JobID: e.job.ID, Snapshot: e.session.Snapshot()}, nil
}

// Sessions 所有运行中会话的快照，按房间名排序
func (w *Worker) Sessions() []SessionInfo {
	w.mu.RLock()
	entries := make([]*entry, 0, len(w.sessions))
	for _, e := range w.sessions {
		entries = append(entries, e)
	}
	w.mu.RUnlock()

	out := make([]SessionInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, SessionInfo{JobID: e.job.ID, Snapshot: e.session.Snapshot()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Room < out[j].Room })
	return out
}

// Cancel 取消房间的会话，不等待其结束
func (w *Worker) Cancel(room string) error {
	w.mu.RLock()
	e, ok := w.sessions[room]
	w.mu.RUnlock()
	if !ok {
		return notFoundError(room)
	}
	w.logger.Info("cancelling session", zap.String("room", room))
	e.cancel()
	return nil
}

// Wait 等待房间的会话结束，会话不存在时立即返回
func (w *Worker) Wait(ctx context.Context, room string) error {
	w.mu.RLock()
	e, ok := w.sessions[room]
	w.mu.RUnlock()
	if !ok {
		return nil
	}
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active 运行中的会话数
func (w *Worker) Active() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.sessions)
}

// Capacity 最大会话数
func (w *Worker) Capacity() int {
	return w.pool.Capacity()
}

// Draining 是否正在关闭
func (w *Worker) Draining() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.draining
}

// Stats 底层池的统计
func (w *Worker) Stats() pool.GoroutinePoolStats {
	return w.pool.Stats()
}

// =============================================================================
// 🛑 关闭
// =============================================================================

// Drain 停止接收任务并等待会话结束。超过 DrainTimeout 或 ctx 结束时
// 取消剩余会话，再等待它们完成清理
func (w *Worker) Drain(ctx context.Context) error {
	w.mu.Lock()
	w.draining = true
	active := len(w.sessions)
	w.mu.Unlock()
	w.pool.Close()

	w.logger.Info("draining worker",
		zap.Int("active_sessions", active), zap.Duration("timeout", w.cfg.DrainTimeout))

	waitCtx := ctx
	if w.cfg.DrainTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, w.cfg.DrainTimeout)
		defer cancel()
	}
	if err := w.pool.Wait(waitCtx); err == nil {
		w.cancelBase()
		w.logger.Info("worker drained")
		return nil
	}

	w.logger.Warn("drain timeout reached, cancelling remaining sessions", zap.Int("active_sessions", w.Active()))
	w.cancelBase()

	cleanupCtx, cancel := context.WithTimeout(context.Background(), cancelWaitTimeout)
	defer cancel()
	if err := w.pool.Wait(cleanupCtx); err != nil {
		return types.NewError(types.ErrInternalError, "sessions did not stop after cancellation").WithCause(err)
	}
	return nil
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func classify(err error) string {
	switch {
	case err == nil:
		return history.OutcomeCompleted
	case errors.Is(err, context.Canceled):
		return history.OutcomeCancelled
	default:
		return history.OutcomeFailed
	}
}

func (w *Worker) rejected(reason string) {
	if w.metrics != nil {
		w.metrics.SessionRejected(reason)
	}
}

func drainingError() *types.Error {
	return types.NewError(types.ErrDraining, "worker is shutting down").
		WithCause(ErrDraining).
		WithHTTPStatus(http.StatusServiceUnavailable)
}

func notFoundError(room string) *types.Error {
	return types.NewError(types.ErrSessionNotFound, "no session in room "+room).
		WithCause(ErrSessionNotFound).
		WithHTTPStatus(http.StatusNotFound)
}
