package slides

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/BaSui01/pptagent/types"
)

// SQLStore 直接从数据库读取 slides 表（Supabase 的 Postgres 或自建库）
type SQLStore struct {
	db       *gorm.DB
	resolver ImageResolver
}

// NewSQLStore 创建数据库数据源；resolver 为空时图片地址原样返回
func NewSQLStore(db *gorm.DB, resolver ImageResolver) *SQLStore {
	return &SQLStore{db: db, resolver: resolver}
}

// LoadDeck 查询演示文稿的全部幻灯片
func (s *SQLStore) LoadDeck(ctx context.Context, presentationID string) ([]Slide, error) {
	if strings.TrimSpace(presentationID) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "presentation id is empty")
	}

	var deck []Slide
	err := s.db.WithContext(ctx).
		Where("presentation_id = ?", presentationID).
		Order("slide_number ASC").
		Find(&deck).Error
	if err != nil {
		return nil, fmt.Errorf("query slides: %w", err)
	}
	if len(deck) == 0 {
		return nil, fmt.Errorf("presentation %s: %w", presentationID, ErrDeckNotFound)
	}

	s.resolver.Apply(deck)
	return deck, nil
}

// ReplaceDeck 在一个事务中替换演示文稿的全部幻灯片
func (s *SQLStore) ReplaceDeck(ctx context.Context, presentationID string, deck []Slide) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("presentation_id = ?", presentationID).Delete(&Slide{}).Error; err != nil {
			return fmt.Errorf("delete slides: %w", err)
		}
		if len(deck) == 0 {
			return nil
		}
		rows := make([]Slide, len(deck))
		for i, sl := range deck {
			sl.PresentationID = presentationID
			if sl.ID == "" {
				sl.ID = fmt.Sprintf("%s-%d", presentationID, Number(sl, i))
			}
			rows[i] = sl
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("insert slides: %w", err)
		}
		return nil
	})
}

// Ping 检查数据库连接
func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
