package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Vehicle 代表待拍賣的拖吊車輛
// 包含車籍資料、車況描述與拖吊來源資訊
type Vehicle struct {
	gorm.Model

	ID             uuid.UUID `gorm:"type:uuid;primaryKey;<-:create"`
	VIN            string    `gorm:"type:varchar(32);not null"`
	Make           string    `gorm:"type:varchar(64);not null"`
	ModelName      string    `gorm:"column:model;type:varchar(64);not null"`
	Year           int       `gorm:"not null"`
	Color          string    `gorm:"type:varchar(32)"`
	Mileage        int64     `gorm:"not null;default:0"`
	Condition      string    `gorm:"type:varchar(64)"`
	Description    string    `gorm:"type:text"`
	Images         []string  `gorm:"serializer:json"`
	City           string    `gorm:"type:varchar(64)"`
	State          string    `gorm:"type:varchar(32)"`
	Zip            string    `gorm:"type:varchar(16)"`
	TowDate        time.Time
	LotNumber      string `gorm:"type:varchar(32)"`
	EstimatedValue int64  `gorm:"not null;default:0"`
}

func (v *Vehicle) BeforeCreate(*gorm.DB) error {
	newID(&v.ID)
	return nil
}
