package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/pptagent/agent/worker"
	"github.com/BaSui01/pptagent/api"
	"github.com/BaSui01/pptagent/types"
)

const (
	// 24kHz PCM16 单声道 1 秒约 48KB，单帧限制留出余量
	maxAudioFrameBytes = 256 << 10
	audioCallTimeout   = 5 * time.Second
)

// SessionManager 会话派发与控制，*worker.Worker 实现了该接口
type SessionManager interface {
	Dispatch(ctx context.Context, job worker.Job) (worker.Job, error)
	Session(room string) (worker.Session, error)
	Info(room string) (worker.SessionInfo, error)
	Sessions() []worker.SessionInfo
	Cancel(room string) error
}

// =============================================================================
// 🎬 会话控制 Handler
// =============================================================================

// SessionHandler 演示会话控制 API
type SessionHandler struct {
	sessions SessionManager
	logger   *zap.Logger
}

// NewSessionHandler 创建会话控制处理器
func NewSessionHandler(sessions SessionManager, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{
		sessions: sessions,
		logger:   logger.With(zap.String("component", "session_handler")),
	}
}

// Register 注册路由
func (h *SessionHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/sessions", h.HandleList)
	mux.HandleFunc("POST /api/v1/sessions", h.HandleDispatch)
	mux.HandleFunc("GET /api/v1/sessions/{room}", h.HandleGet)
	mux.HandleFunc("DELETE /api/v1/sessions/{room}", h.HandleCancel)
	mux.HandleFunc("POST /api/v1/sessions/{room}/navigate", h.HandleNavigate)
	mux.HandleFunc("POST /api/v1/sessions/{room}/messages", h.HandleMessage)
	mux.HandleFunc("POST /api/v1/sessions/{room}/interrupt", h.HandleInterrupt)
	mux.HandleFunc("GET /api/v1/sessions/{room}/audio", h.HandleAudio)
}

// HandleList 列出运行中的会话
func (h *SessionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, h.sessions.Sessions())
}

// HandleDispatch 派发会话，成功返回 202
func (h *SessionHandler) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.DispatchRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	job, err := h.sessions.Dispatch(r.Context(), worker.Job{Room: req.Room})
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteCreated(w, r, http.StatusAccepted, job)
}

// HandleGet 返回会话快照
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	info, err := h.sessions.Info(r.PathValue("room"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, info)
}

// HandleCancel 结束会话
func (h *SessionHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	room := r.PathValue("room")
	if err := h.sessions.Cancel(room); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	h.logger.Info("session cancelled via API", zap.String("room", room), zap.String("request_id", requestID(r)))
	WriteSuccess(w, r, map[string]string{"room": room, "status": "cancelling"})
}

// HandleNavigate 翻页
func (h *SessionHandler) HandleNavigate(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req api.NavigateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	action := strings.ToLower(strings.TrimSpace(req.Action))
	switch action {
	case "next", "previous", "prev":
	case "goto":
		if req.SlideNumber < 1 {
			WriteError(w, r, types.NewError(types.ErrInvalidSlideNumber, "slide_number must be a positive integer"), h.logger)
			return
		}
	default:
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest,
			"action must be one of next, previous, goto", h.logger)
		return
	}

	reply, err := session.Navigate(r.Context(), action, req.SlideNumber)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, api.NavigateResponse{Reply: reply})
}

// HandleMessage 以用户身份发送文字
func (h *SessionHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req api.MessageRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "text is required", h.logger)
		return
	}

	if err := session.SendText(r.Context(), req.Text); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteCreated(w, r, http.StatusAccepted, map[string]string{"status": "sent"})
}

// HandleInterrupt 打断当前讲解
func (h *SessionHandler) HandleInterrupt(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := session.Interrupt(r.Context()); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, map[string]string{"status": "interrupted"})
}

// =============================================================================
// 🎙️ 音频推流
// =============================================================================

// HandleAudio 升级为 websocket：二进制帧为 PCM16 24kHz 单声道音频，
// 文本帧 "interrupt" 打断当前讲解。会话结束或客户端断开时关闭连接。
func (h *SessionHandler) HandleAudio(w http.ResponseWriter, r *http.Request) {
	room := r.PathValue("room")
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	// 服务器的读写超时对长连接无意义
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("audio websocket upgrade failed", zap.String("room", room), zap.Error(err))
		return
	}
	conn.SetReadLimit(maxAudioFrameBytes)

	logger := h.logger.With(zap.String("room", room))
	logger.Info("audio stream opened")

	frames, err := h.pumpAudio(r.Context(), conn, session)
	switch {
	case err == nil:
		conn.Close(websocket.StatusNormalClosure, "")
	case websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled):
		// 客户端主动断开
	default:
		logger.Warn("audio stream aborted", zap.Error(err))
		conn.Close(websocket.StatusInternalError, "session unavailable")
	}
	logger.Info("audio stream closed", zap.Int("frames", frames))
}

func (h *SessionHandler) pumpAudio(ctx context.Context, conn *websocket.Conn, session worker.Session) (int, error) {
	frames := 0
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return frames, err
		}

		callCtx, cancel := context.WithTimeout(ctx, audioCallTimeout)
		switch typ {
		case websocket.MessageBinary:
			if len(data) == 0 {
				cancel()
				continue
			}
			err = session.AppendAudio(callCtx, data)
			frames++
		case websocket.MessageText:
			if strings.TrimSpace(string(data)) == api.AudioControlInterrupt {
				err = session.Interrupt(callCtx)
			}
		}
		cancel()
		if err != nil {
			return frames, err
		}
	}
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (worker.Session, bool) {
	session, err := h.sessions.Session(r.PathValue("room"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return nil, false
	}
	return session, true
}
