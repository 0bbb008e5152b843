package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BidStatus 代表出價紀錄的狀態
type BidStatus string

const (
	BidPlaced    BidStatus = "placed"
	BidWinning   BidStatus = "winning"
	BidOutbid    BidStatus = "outbid"
	BidCancelled BidStatus = "cancelled"
	BidRejected  BidStatus = "rejected"
)

// Bid 代表拍賣的出價紀錄
// 出價時間取自 CreatedAt，顯示時依時間排序，不依寫入順序
type Bid struct {
	gorm.Model

	ID        uuid.UUID `gorm:"type:uuid;primaryKey;<-:create"`
	AuctionID uuid.UUID `gorm:"type:uuid;index;not null;<-:create"`
	BidderID  uuid.UUID `gorm:"type:uuid;not null;<-:create"`
	Amount    int64     `gorm:"not null;<-:create"`
	Status    BidStatus `gorm:"type:varchar(16);not null;default:'placed'"`

	// 外鍵關聯
	Bidder *User `gorm:"foreignKey:BidderID"`
}

func (b *Bid) BeforeCreate(*gorm.DB) error {
	newID(&b.ID)
	return nil
}
