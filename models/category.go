package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Category 代表商品分類
// 只在啟動時由 seed 資料建立，執行期間不會新增或修改
type Category struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null;unique" json:"name"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

func (c *Category) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
