package slides

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"
	"go.uber.org/zap"

	"github.com/BaSui01/pptagent/internal/tlsutil"
	"github.com/BaSui01/pptagent/types"
)

// SupabaseConfig Supabase PostgREST 访问参数
type SupabaseConfig struct {
	URL        string
	ServiceKey string
	Bucket     string
	Table      string
	Timeout    time.Duration
}

// SupabaseStore 通过 PostgREST 读取 slides 表
type SupabaseStore struct {
	cfg      SupabaseConfig
	client   *postgrest.Client
	resolver ImageResolver
	logger   *zap.Logger
}

// NewSupabaseStore 创建 Supabase 数据源
func NewSupabaseStore(cfg SupabaseConfig, logger *zap.Logger) *SupabaseStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Table == "" {
		cfg.Table = "slides"
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "slide-images"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")

	client := postgrest.NewClient(cfg.URL+"/rest/v1", "public", map[string]string{
		"apikey":        cfg.ServiceKey,
		"Authorization": "Bearer " + cfg.ServiceKey,
	})
	base := tlsutil.SecureTransport()
	base.ResponseHeaderTimeout = cfg.Timeout
	client.Transport.Parent = statusTransport{base: base}

	return &SupabaseStore{
		cfg:      cfg,
		client:   client,
		resolver: ImageResolver{SupabaseURL: cfg.URL, Bucket: cfg.Bucket},
		logger:   logger.With(zap.String("component", "supabase_store")),
	}
}

// LoadDeck 查询演示文稿的全部幻灯片
func (s *SupabaseStore) LoadDeck(ctx context.Context, presentationID string) ([]Slide, error) {
	if strings.TrimSpace(presentationID) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "presentation id is empty")
	}

	var deck []Slide
	err := s.exec(ctx, func() error {
		_, err := s.client.From(s.cfg.Table).
			Select("*", "", false).
			Eq("presentation_id", presentationID).
			Order("slide_number", &postgrest.OrderOpts{Ascending: true}).
			ExecuteTo(&deck)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(deck) == 0 {
		return nil, fmt.Errorf("presentation %s: %w", presentationID, ErrDeckNotFound)
	}

	SortDeck(deck)
	s.resolver.Apply(deck)

	s.logger.Debug("deck loaded",
		zap.String("presentation_id", presentationID),
		zap.Int("slides", len(deck)))
	return deck, nil
}

// Ping 检查 PostgREST 是否可访问
func (s *SupabaseStore) Ping(ctx context.Context) error {
	var rows []json.RawMessage
	return s.exec(ctx, func() error {
		_, err := s.client.From(s.cfg.Table).
			Select("id", "", false).
			Limit(1, "").
			ExecuteTo(&rows)
		return err
	})
}

// exec 在 ctx 内执行一次查询。postgrest-go 不接受 context，
// 请求本身由 transport 的超时兜底，ctx 取消时提前返回。
func (s *SupabaseStore) exec(ctx context.Context, query func() error) error {
	done := make(chan error, 1)
	go func() { done <- query() }()

	var err error
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err = <-done:
	}
	if err == nil {
		return nil
	}

	var upstream *upstreamError
	if errors.As(err, &upstream) {
		return types.FromHTTPStatus(upstream.status, upstream.message, "supabase")
	}
	var syntax *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntax) || errors.As(err, &typeErr) {
		return fmt.Errorf("decode supabase response: %w", err)
	}
	return types.NewError(types.ErrProviderUnavailable, "supabase request failed").
		WithCause(err).WithRetryable(true).WithProvider("supabase")
}

// =============================================================================
// 🔌 Transport
// =============================================================================

// upstreamError PostgREST 返回的非 2xx 响应
type upstreamError struct {
	status  int
	message string
}

func (e *upstreamError) Error() string {
	return fmt.Sprintf("supabase status %d: %s", e.status, e.message)
}

// statusTransport 把非 2xx 响应转成带状态码的错误，
// postgrest-go 自身只返回 "(code) message" 文本
type statusTransport struct {
	base http.RoundTripper
}

func (t statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 400 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, &upstreamError{status: resp.StatusCode, message: readErrMsg(resp.Body)}
}

// readErrMsg 提取 PostgREST 的 message 字段
func readErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 4096))
	var errResp struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Message != "" {
		return errResp.Message
	}
	return strings.TrimSpace(string(data))
}
