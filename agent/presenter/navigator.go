package presenter

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/pptagent/internal/slides"
)

// 前端读取的参会者属性
const (
	AttrSlideURL    = "current_slide_url"
	AttrSlideNumber = "current_slide_number"
	AttrTotalSlides = "total_slides"
)

// View 前端展示的一页
type View struct {
	URL    string
	Number int
	Total  int
}

// Attributes 转换为参会者属性
func (v View) Attributes() map[string]string {
	return map[string]string{
		AttrSlideURL:    v.URL,
		AttrSlideNumber: strconv.Itoa(v.Number),
		AttrTotalSlides: strconv.Itoa(v.Total),
	}
}

// Display 发布当前页
type Display interface {
	Show(ctx context.Context, v View) error
}

// DisplayFunc 函数适配器
type DisplayFunc func(ctx context.Context, v View) error

// Show 实现 Display
func (f DisplayFunc) Show(ctx context.Context, v View) error { return f(ctx, v) }

// Navigator 一个会话的翻页状态。index 取值 [0, total]，total 表示已讲完。
type Navigator struct {
	mu      sync.Mutex
	deck    []slides.Slide
	index   int
	display Display
	compact bool
	logger  *zap.Logger
}

// NewNavigator 创建翻页器，初始位于第一页
func NewNavigator(deck []slides.Slide, display Display, compact bool, logger *zap.Logger) *Navigator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Navigator{
		deck:    deck,
		display: display,
		compact: compact,
		logger:  logger,
	}
}

// Total 总页数
func (n *Navigator) Total() int { return len(n.deck) }

// Index 当前下标（从 0 开始）
func (n *Navigator) Index() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.index
}

// Current 当前页；已讲完时 ok 为 false
func (n *Navigator) Current() (slides.Slide, int, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.index < 0 || n.index >= len(n.deck) {
		return slides.Slide{}, n.index, false
	}
	return n.deck[n.index], n.index, true
}

// Next 前进一页
func (n *Navigator) Next(ctx context.Context) string {
	n.mu.Lock()
	if n.index >= len(n.deck)-1 {
		n.mu.Unlock()
		n.logger.Info("already on last slide")
		return "Already on the last slide"
	}
	n.index++
	idx := n.index
	n.mu.Unlock()
	return n.moved(ctx, idx)
}

// Previous 后退一页
func (n *Navigator) Previous(ctx context.Context) string {
	n.mu.Lock()
	if n.index <= 0 {
		n.mu.Unlock()
		n.logger.Info("already on first slide")
		return "Already on the first slide"
	}
	if n.index > len(n.deck) {
		n.index = len(n.deck)
	}
	n.index--
	idx := n.index
	n.mu.Unlock()
	return n.moved(ctx, idx)
}

// Goto 跳转到第 number 页（从 1 开始）
func (n *Navigator) Goto(ctx context.Context, number int) string {
	total := len(n.deck)
	if number < 1 || number > total {
		n.logger.Warn("invalid slide number", zap.Int("slide_number", number))
		return fmt.Sprintf("Invalid slide number. Please choose between 1 and %d", total)
	}
	n.mu.Lock()
	n.index = number - 1
	n.mu.Unlock()
	return n.moved(ctx, number-1)
}

// AdvanceFrom 自动讲解使用：仅当当前位置仍为 from 时前进一页。
// 返回前进后的下标；讲解期间用户翻过页时返回用户所在位置。
func (n *Navigator) AdvanceFrom(from int) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.index == from && n.index < len(n.deck) {
		n.index++
	}
	return n.index
}

// Publish 发布第 idx 页，页码使用 number
func (n *Navigator) Publish(ctx context.Context, idx, number int) error {
	if n.display == nil || idx < 0 || idx >= len(n.deck) {
		return nil
	}
	return n.display.Show(ctx, View{URL: n.deck[idx].ImageURL, Number: number, Total: len(n.deck)})
}

func (n *Navigator) moved(ctx context.Context, idx int) string {
	if err := n.Publish(ctx, idx, idx+1); err != nil {
		n.logger.Error("failed to update display", zap.Int("slide", idx+1), zap.Error(err))
	} else {
		n.logger.Info("display updated", zap.Int("slide", idx+1), zap.Int("total", len(n.deck)))
	}
	return n.reply(idx)
}

func (n *Navigator) reply(idx int) string {
	total := len(n.deck)
	if n.compact {
		return fmt.Sprintf("Slide %d/%d", idx+1, total)
	}
	return fmt.Sprintf("Now on slide %d of %d. %s", idx+1, total, slides.Truncate(n.deck[idx].ExtractedText, 100))
}
