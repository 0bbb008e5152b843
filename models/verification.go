package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DocumentType 代表身分驗證文件的種類
type DocumentType string

const (
	DocumentDriversLicense DocumentType = "drivers_license"
	DocumentPassport       DocumentType = "passport"
	DocumentIDCard         DocumentType = "id_card"
	DocumentOther          DocumentType = "other"
)

// VerificationStatus 代表身分驗證的審核狀態
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

// VerificationDocument 代表使用者提交的身分驗證文件
// 文件本體存在物件儲存，這裡只記 URL 與審核結果
type VerificationDocument struct {
	gorm.Model

	ID          uuid.UUID          `gorm:"type:uuid;primaryKey;<-:create"`
	UserID      uuid.UUID          `gorm:"type:uuid;index;not null;<-:create"`
	Type        DocumentType       `gorm:"type:varchar(32);not null;<-:create"`
	Status      VerificationStatus `gorm:"type:varchar(16);not null;default:'pending'"`
	DocumentURL string             `gorm:"type:text;not null;<-:create"`
	Notes       string             `gorm:"type:text"`
	ReviewedBy  *uuid.UUID         `gorm:"type:uuid"`
	ReviewedAt  *time.Time
}

func (d *VerificationDocument) BeforeCreate(*gorm.DB) error {
	newID(&d.ID)
	return nil
}
