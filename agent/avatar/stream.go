package avatar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/pptagent/internal/tlsutil"
	"github.com/BaSui01/pptagent/types"
)

// =============================================================================
// 音频流会话
// =============================================================================

// frameEncoder 把 24kHz PCM16 编码为一条 websocket 消息
type frameEncoder func(pcm []byte) (websocket.MessageType, []byte, error)

// streamSession 基于 websocket 的数字人音频流，Simli 与 Anam 共用
type streamSession struct {
	provider string
	conn     *websocket.Conn
	encode   frameEncoder
	// 打断时发送的控制消息
	clearType websocket.MessageType
	clearMsg  []byte
	// 一轮音频结束时发送的控制消息，可为空
	flushType websocket.MessageType
	flushMsg  []byte

	playout *playout
	logger  *zap.Logger

	closeOnce sync.Once
	onClose   func(ctx context.Context) error
}

func (s *streamSession) CaptureFrame(ctx context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	typ, msg, err := s.encode(pcm)
	if err != nil {
		return err
	}
	if err := s.conn.Write(ctx, typ, msg); err != nil {
		return fmt.Errorf("%s audio write: %w", s.provider, err)
	}
	s.playout.add(len(pcm))
	return nil
}

func (s *streamSession) Flush(ctx context.Context) error {
	if s.flushMsg != nil {
		if err := s.conn.Write(ctx, s.flushType, s.flushMsg); err != nil {
			return fmt.Errorf("%s flush: %w", s.provider, err)
		}
	}
	return s.playout.wait(ctx)
}

func (s *streamSession) ClearBuffer(ctx context.Context) error {
	s.playout.reset()
	if err := s.conn.Write(ctx, s.clearType, s.clearMsg); err != nil {
		return fmt.Errorf("%s clear: %w", s.provider, err)
	}
	return nil
}

func (s *streamSession) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.playout.reset()
		if s.onClose != nil {
			err = s.onClose(ctx)
		}
		// 远端可能已断开，重复关闭的错误无需返回
		_ = s.conn.Close(websocket.StatusNormalClosure, "session ended")
		s.logger.Info("avatar stream closed")
	})
	return err
}

// dialStream 连接音频 websocket
func dialStream(ctx context.Context, rawURL, provider string, header http.Header) (*websocket.Conn, error) {
	conn, resp, err := websocket.Dial(ctx, rawURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			return nil, types.FromHTTPStatus(resp.StatusCode, "avatar stream rejected", provider).WithCause(err)
		}
		return nil, types.NewError(types.ErrProviderUnavailable, "avatar stream dial failed").
			WithCause(err).WithRetryable(true).WithProvider(provider)
	}
	return conn, nil
}

// =============================================================================
// HTTP 辅助
// =============================================================================

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return tlsutil.SecureHTTPClient(timeout)
}

// postJSON 发送 JSON 请求并解析 JSON 响应，非 2xx 映射为 *types.Error
func postJSON(ctx context.Context, client *http.Client, endpoint, provider string, header http.Header, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", provider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := client.Do(req)
	if err != nil {
		return types.NewError(types.ErrProviderUnavailable, provider+" request failed").
			WithCause(err).WithRetryable(true).WithProvider(provider)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return types.FromHTTPStatus(resp.StatusCode, msg, provider)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", provider, err)
	}
	return nil
}

// wsURL 把 http(s) 基础地址转换为 ws(s)
func wsURL(base, path string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + path)
	if err != nil {
		return "", fmt.Errorf("invalid avatar url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	return u.String(), nil
}
