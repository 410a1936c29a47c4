package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/pptagent/agent/worker"
	"github.com/BaSui01/pptagent/internal/livekit"
	"github.com/BaSui01/pptagent/types"
)

// webhook 处理结果
const (
	ActionDispatched = "dispatched"
	ActionCancelled  = "cancelled"
	ActionIgnored    = "ignored"
	ActionRejected   = "rejected"
	ActionDuplicate  = "duplicate"
)

// WebhookVerifier 校验并解析 LiveKit webhook，*livekit.WebhookReceiver 实现了该接口
type WebhookVerifier interface {
	Receive(r *http.Request) (*livekit.WebhookEvent, error)
}

// WebhookMetrics 记录收到的事件
type WebhookMetrics interface {
	RecordWebhook(event string)
}

// EventGuard 事件去重，*idempotency.MemoryGuard 与 Redis 实现均满足该接口
type EventGuard interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// WebhookResult webhook 响应
type WebhookResult struct {
	Event  string `json:"event"`
	Room   string `json:"room,omitempty"`
	Action string `json:"action"`
	JobID  string `json:"job_id,omitempty"`
}

// WebhookConfig webhook 行为配置
type WebhookConfig struct {
	// 房间创建或观众加入时自动派发会话
	AutoDispatch bool
	// Agent 自身身份，其加入事件不会触发派发
	AgentIdentity string
}

// =============================================================================
// 🪝 LiveKit Webhook Handler
// =============================================================================

// WebhookHandler 将 LiveKit 房间事件转换为会话派发与取消
type WebhookHandler struct {
	verifier WebhookVerifier
	sessions SessionManager
	cfg      WebhookConfig
	metrics  WebhookMetrics
	logger   *zap.Logger

	guard    EventGuard
	guardTTL time.Duration
}

// NewWebhookHandler 创建 webhook 处理器，metrics 可为 nil
func NewWebhookHandler(verifier WebhookVerifier, sessions SessionManager, cfg WebhookConfig, metrics WebhookMetrics, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{
		verifier: verifier,
		sessions: sessions,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger.With(zap.String("component", "webhook")),
	}
}

// WithEventGuard 启用按事件 ID 去重，重发的事件在 ttl 内只处理一次
func (h *WebhookHandler) WithEventGuard(guard EventGuard, ttl time.Duration) *WebhookHandler {
	h.guard = guard
	h.guardTTL = ttl
	return h
}

// HandleLiveKit 处理 POST /webhook/livekit
func (h *WebhookHandler) HandleLiveKit(w http.ResponseWriter, r *http.Request) {
	ev, err := h.verifier.Receive(r)
	if err != nil {
		h.logger.Warn("rejected webhook", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		WriteErrorMessage(w, r, http.StatusUnauthorized, types.ErrUnauthorized, "invalid webhook signature", h.logger)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordWebhook(ev.Event)
	}

	result := WebhookResult{Event: ev.Event, Room: ev.RoomName(), Action: ActionIgnored}
	logger := h.logger.With(zap.String("event", ev.Event), zap.String("room", result.Room))

	if result.Room == "" {
		logger.Debug("webhook without room")
		WriteSuccess(w, r, result)
		return
	}

	claimed := h.claim(r.Context(), ev.ID, logger)
	if !claimed {
		result.Action = ActionDuplicate
		logger.Debug("duplicate webhook event", zap.String("event_id", ev.ID))
		WriteSuccess(w, r, result)
		return
	}

	switch ev.Event {
	case livekit.EventRoomStarted:
		if h.cfg.AutoDispatch {
			h.dispatch(r, &result, logger)
		}
	case livekit.EventParticipantJoined:
		if h.cfg.AutoDispatch && h.triggersDispatch(ev.Participant) {
			h.dispatch(r, &result, logger)
		}
	case livekit.EventRoomFinished:
		switch err := h.sessions.Cancel(result.Room); {
		case err == nil:
			result.Action = ActionCancelled
			logger.Info("room finished, session cancelled")
		case errors.Is(err, worker.ErrSessionNotFound):
		default:
			logger.Error("failed to cancel session", zap.Error(err))
		}
	}

	// 被拒绝的派发允许 LiveKit 重发后再次尝试
	if result.Action == ActionRejected && h.guard != nil && ev.ID != "" {
		if err := h.guard.Release(r.Context(), guardKey(ev.ID)); err != nil {
			logger.Warn("failed to release event claim", zap.Error(err))
		}
	}

	WriteSuccess(w, r, result)
}

// claim 认领事件；未配置去重、事件无 ID 或存储异常时一律放行
func (h *WebhookHandler) claim(ctx context.Context, id string, logger *zap.Logger) bool {
	if h.guard == nil || id == "" {
		return true
	}
	ok, err := h.guard.Claim(ctx, guardKey(id), h.guardTTL)
	if err != nil {
		logger.Warn("event guard unavailable", zap.Error(err))
		return true
	}
	return ok
}

func guardKey(id string) string {
	return "webhook:" + id
}

func (h *WebhookHandler) triggersDispatch(p *livekit.Participant) bool {
	if p == nil || !p.IsAudience() {
		return false
	}
	return h.cfg.AgentIdentity == "" || p.Identity != h.cfg.AgentIdentity
}

func (h *WebhookHandler) dispatch(r *http.Request, result *WebhookResult, logger *zap.Logger) {
	job, err := h.sessions.Dispatch(r.Context(), worker.Job{Room: result.Room})
	switch {
	case err == nil:
		result.Action = ActionDispatched
		result.JobID = job.ID
	case errors.Is(err, worker.ErrSessionExists):
		// 同一房间的重复事件
	default:
		result.Action = ActionRejected
		logger.Warn("auto dispatch rejected", zap.String("code", string(types.GetErrorCode(err))), zap.Error(err))
	}
}
