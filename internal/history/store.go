package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("history record not found")

// 会话结果
const (
	OutcomeCompleted = "completed"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Record presentation_sessions 表中的一行
type Record struct {
	ID              string     `json:"id" gorm:"column:id;primaryKey"`
	Room            string     `json:"room" gorm:"column:room;index"`
	PresentationID  string     `json:"presentation_id,omitempty" gorm:"column:presentation_id"`
	TotalSlides     int        `json:"total_slides" gorm:"column:total_slides"`
	SlidesPresented int        `json:"slides_presented" gorm:"column:slides_presented"`
	Outcome         string     `json:"outcome" gorm:"column:outcome"`
	ErrorMessage    string     `json:"error_message,omitempty" gorm:"column:error_message"`
	StartedAt       time.Time  `json:"started_at" gorm:"column:started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty" gorm:"column:ended_at"`
}

// TableName 实现 gorm 的 Tabler
func (Record) TableName() string { return "presentation_sessions" }

// Duration 会话持续时间，未结束时为 0
func (r Record) Duration() time.Duration {
	if r.EndedAt == nil {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Filter 查询条件
type Filter struct {
	Room  string
	Limit int
}

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultListLimit
	case f.Limit > maxListLimit:
		return maxListLimit
	default:
		return f.Limit
	}
}

// Store 基于 gorm 的历史记录存储
type Store struct {
	db *gorm.DB
}

// NewStore 创建历史记录存储
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Save 写入一条记录，ID 为空时自动生成
func (s *Store) Save(ctx context.Context, rec *Record) error {
	if rec == nil {
		return errors.New("record is nil")
	}
	if strings.TrimSpace(rec.Room) == "" {
		return errors.New("record room is empty")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Outcome == "" {
		rec.Outcome = OutcomeCompleted
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("save history record: %w", err)
	}
	return nil
}

// Get 按 ID 查询
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	var rec Record
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get history record: %w", err)
	}
	return &rec, nil
}

// List 按开始时间倒序列出记录
func (s *Store) List(ctx context.Context, f Filter) ([]Record, error) {
	q := s.db.WithContext(ctx).Model(&Record{})
	if f.Room != "" {
		q = q.Where("room = ?", f.Room)
	}

	var recs []Record
	if err := q.Order("started_at DESC").Limit(f.limit()).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list history records: %w", err)
	}
	return recs, nil
}
