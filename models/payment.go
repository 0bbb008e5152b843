package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentStatus 代表付款的處理狀態
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// PaymentMethod 代表付款方式
type PaymentMethod string

const (
	PaymentCreditCard   PaymentMethod = "credit_card"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
)

// Payment 代表得標後結帳產生的付款紀錄
// 金流串接尚未實作，TransactionID 由系統代填
type Payment struct {
	gorm.Model

	ID            uuid.UUID     `gorm:"type:uuid;primaryKey;<-:create"`
	UserID        uuid.UUID     `gorm:"type:uuid;index;not null;<-:create"`
	AuctionID     uuid.UUID     `gorm:"type:uuid;index;not null;<-:create"`
	Amount        int64         `gorm:"not null;<-:create"`
	FeeAmount     int64         `gorm:"not null;<-:create"`
	Status        PaymentStatus `gorm:"type:varchar(16);not null;default:'pending'"`
	Method        PaymentMethod `gorm:"type:varchar(32);not null;<-:create"`
	TransactionID string        `gorm:"type:varchar(64)"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	newID(&p.ID)
	return nil
}
