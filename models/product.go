package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product 代表目錄中的商品
// Category 是自由文字標籤而不是外鍵，資料庫不會檢查它和 categories 表的一致性
type Product struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string         `gorm:"type:varchar(255);not null" json:"name"`
	Category    string         `gorm:"type:varchar(255);not null" json:"category"`
	Description string         `gorm:"type:text;not null" json:"description"`
	Datetime    time.Time      `gorm:"not null" json:"datetime"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	Images []ProductImage `gorm:"constraint:OnDelete:CASCADE" json:"images"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
