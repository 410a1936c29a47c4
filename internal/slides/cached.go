package slides

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/pptagent/internal/cache"
)

// Cache CachedStore 依赖的缓存操作，*cache.Manager 实现了该接口
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}

// CacheObserver 记录缓存命中情况，*metrics.Collector 实现了该接口
type CacheObserver interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

// CachedStore 在任意 Store 前加一层缓存。缓存故障只记录日志，不影响读取
type CachedStore struct {
	inner    Store
	cache    Cache
	ttl      time.Duration
	observer CacheObserver
	logger   *zap.Logger
}

// NewCachedStore 创建带缓存的数据源
func NewCachedStore(inner Store, c Cache, ttl time.Duration, logger *zap.Logger) *CachedStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedStore{
		inner:  inner,
		cache:  c,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "slides_cache")),
	}
}

// WithObserver 设置命中率观察者
func (s *CachedStore) WithObserver(o CacheObserver) *CachedStore {
	s.observer = o
	return s
}

func (s *CachedStore) observe(hit bool) {
	if s.observer == nil {
		return
	}
	if hit {
		s.observer.RecordCacheHit("slides")
	} else {
		s.observer.RecordCacheMiss("slides")
	}
}

func deckKey(presentationID string) string {
	return "deck:" + presentationID
}

// LoadDeck 优先读缓存，未命中时回源并写回
func (s *CachedStore) LoadDeck(ctx context.Context, presentationID string) ([]Slide, error) {
	var deck []Slide
	err := s.cache.GetJSON(ctx, deckKey(presentationID), &deck)
	switch {
	case err == nil && len(deck) > 0:
		s.observe(true)
		return deck, nil
	case err != nil && !errors.Is(err, cache.ErrCacheMiss):
		s.logger.Warn("deck cache read failed", zap.String("presentation_id", presentationID), zap.Error(err))
	}
	s.observe(false)

	deck, err = s.inner.LoadDeck(ctx, presentationID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetJSON(ctx, deckKey(presentationID), deck, s.ttl); err != nil {
		s.logger.Warn("deck cache write failed", zap.String("presentation_id", presentationID), zap.Error(err))
	}
	return deck, nil
}

// Invalidate 删除演示文稿的缓存
func (s *CachedStore) Invalidate(ctx context.Context, presentationID string) error {
	return s.cache.Delete(ctx, deckKey(presentationID))
}

// Ping 只检查底层数据源，缓存不可用不影响就绪状态
func (s *CachedStore) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}
