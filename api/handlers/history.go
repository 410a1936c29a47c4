package handlers

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/BaSui01/pptagent/internal/history"
	"github.com/BaSui01/pptagent/types"
)

// HistoryStore 会话历史查询，*history.Store 实现了该接口
type HistoryStore interface {
	Get(ctx context.Context, id string) (*history.Record, error)
	List(ctx context.Context, f history.Filter) ([]history.Record, error)
}

// HistoryRecord 带持续时间的历史记录
type HistoryRecord struct {
	history.Record
	DurationSeconds float64 `json:"duration_seconds"`
}

// HistoryHandler 会话历史 API
type HistoryHandler struct {
	store  HistoryStore
	logger *zap.Logger
}

// NewHistoryHandler 创建历史查询处理器
func NewHistoryHandler(store HistoryStore, logger *zap.Logger) *HistoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryHandler{store: store, logger: logger.With(zap.String("component", "history_handler"))}
}

// Register 注册路由
func (h *HistoryHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/history", h.HandleList)
	mux.HandleFunc("GET /api/v1/history/{id}", h.HandleGet)
}

// HandleList 列出历史会话，支持 room 与 limit 查询参数
func (h *HistoryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := history.Filter{Room: q.Get("room")}
	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 0 {
			WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "limit must be a non-negative integer", h.logger)
			return
		}
		f.Limit = limit
	}

	recs, err := h.store.List(r.Context(), f)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	out := make([]HistoryRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toHistoryRecord(rec))
	}
	WriteSuccess(w, r, out)
}

// HandleGet 按 ID 查询
func (h *HistoryHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, toHistoryRecord(*rec))
}

func toHistoryRecord(rec history.Record) HistoryRecord {
	return HistoryRecord{Record: rec, DurationSeconds: rec.Duration().Seconds()}
}
