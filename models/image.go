package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Image 代表上傳到物件儲存的圖片
// 記錄圖片 URL 與上傳者，用於上傳頻率限制
type Image struct {
	gorm.Model

	ID         uuid.UUID `gorm:"type:uuid;primaryKey;<-:create"`
	UploaderID uuid.UUID `gorm:"type:uuid;index;not null;<-:create"`
	URL        string    `gorm:"column:url;type:text;not null;<-:create"`
}

func (i *Image) BeforeCreate(*gorm.DB) error {
	newID(&i.ID)
	return nil
}
