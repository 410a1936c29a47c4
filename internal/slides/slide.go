package slides

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrDeckNotFound 演示文稿没有任何幻灯片
var ErrDeckNotFound = errors.New("deck not found")

// Slide slides 表中的一行
type Slide struct {
	ID             string `json:"id" gorm:"column:id;primaryKey"`
	PresentationID string `json:"presentation_id" gorm:"column:presentation_id;index"`
	SlideNumber    int    `json:"slide_number" gorm:"column:slide_number"`
	ImageURL       string `json:"image_url" gorm:"column:image_url"`
	ExtractedText  string `json:"extracted_text" gorm:"column:extracted_text"`
}

// TableName 实现 gorm 的 Tabler
func (Slide) TableName() string { return "slides" }

// Text 返回去除首尾空白的文本
func (s Slide) Text() string {
	return strings.TrimSpace(s.ExtractedText)
}

// HasText 是否包含非空文本
func (s Slide) HasText() bool {
	return s.Text() != ""
}

// HasImage 是否有图片
func (s Slide) HasImage() bool {
	return strings.TrimSpace(s.ImageURL) != ""
}

// Number 返回展示用的页码：slide_number 有效时使用它，否则使用 idx+1
func Number(s Slide, idx int) int {
	if s.SlideNumber > 0 {
		return s.SlideNumber
	}
	return idx + 1
}

// Store 幻灯片数据源
type Store interface {
	// LoadDeck 返回按 slide_number 升序排列的幻灯片，空集合返回 ErrDeckNotFound
	LoadDeck(ctx context.Context, presentationID string) ([]Slide, error)
	// Ping 检查数据源是否可用
	Ping(ctx context.Context) error
}

// SortDeck 按 slide_number 升序稳定排序
func SortDeck(deck []Slide) {
	sort.SliceStable(deck, func(i, j int) bool {
		return deck[i].SlideNumber < deck[j].SlideNumber
	})
}

// Truncate 按字符截断，不拆分多字节字符
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// ResolveImageURL 将存储路径解析为公开访问 URL，已是 http(s) 地址时原样返回
func ResolveImageURL(supabaseURL, bucket, path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	lower := strings.ToLower(path)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return path
	}
	if bucket == "" {
		bucket = "slide-images"
	}
	base := strings.TrimRight(supabaseURL, "/")
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", base, bucket, strings.TrimLeft(path, "/"))
}

// ImageResolver 把存储路径转换为公开 URL
type ImageResolver struct {
	SupabaseURL string
	Bucket      string
}

// Apply 原地解析整组幻灯片的图片地址
func (r ImageResolver) Apply(deck []Slide) {
	if r.SupabaseURL == "" {
		return
	}
	for i := range deck {
		deck[i].ImageURL = ResolveImageURL(r.SupabaseURL, r.Bucket, deck[i].ImageURL)
	}
}

// =============================================================================
// 📊 内容统计与上下文
// =============================================================================

// Stats 幻灯片文本统计
type Stats struct {
	Total       int   `json:"total"`
	WithText    int   `json:"with_text"`
	MissingText []int `json:"missing_text,omitempty"`
}

// ContentStats 统计有文本的页数，并列出缺少文本的页码（从 1 开始）
func ContentStats(deck []Slide) Stats {
	st := Stats{Total: len(deck)}
	for i, s := range deck {
		if s.HasText() {
			st.WithText++
		} else {
			st.MissingText = append(st.MissingText, i+1)
		}
	}
	return st
}

const previewLen = 100

// SlideContext 生成当前页及前后 window 页的上下文。
// 前后页只取前 100 个字符，当前页给出全文。
func SlideContext(deck []Slide, idx, window int) string {
	if idx < 0 || idx >= len(deck) {
		return ""
	}
	if window < 0 {
		window = 0
	}

	var b strings.Builder
	for i := max(0, idx-window); i < idx; i++ {
		fmt.Fprintf(&b, "Previous Slide %d: %s...\n\n", i+1, Truncate(deck[i].Text(), previewLen))
	}

	current := deck[idx].Text()
	if current == "" {
		current = "No content available"
	}
	fmt.Fprintf(&b, "===== CURRENT SLIDE %d (PRESENT THIS) =====\n%s\n\n", idx+1, current)

	for i := idx + 1; i <= min(len(deck)-1, idx+window); i++ {
		fmt.Fprintf(&b, "Next Slide %d: %s...\n", i+1, Truncate(deck[i].Text(), previewLen))
	}
	return b.String()
}
