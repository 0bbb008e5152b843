package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationType 代表通知的種類
type NotificationType string

const (
	NotificationBidPlaced       NotificationType = "bid_placed"
	NotificationOutbid          NotificationType = "outbid"
	NotificationAuctionWon      NotificationType = "auction_won"
	NotificationAuctionEnding   NotificationType = "auction_ending"
	NotificationPaymentReceived NotificationType = "payment_received"
	NotificationSystem          NotificationType = "system"
)

// Notification 代表推送給使用者的站內通知
type Notification struct {
	gorm.Model

	ID        uuid.UUID        `gorm:"type:uuid;primaryKey;<-:create"`
	UserID    uuid.UUID        `gorm:"type:uuid;index;not null;<-:create"`
	Type      NotificationType `gorm:"type:varchar(32);not null;<-:create"`
	Title     string           `gorm:"type:varchar(255);not null;<-:create"`
	Message   string           `gorm:"type:text;not null;<-:create"`
	IsRead    bool             `gorm:"not null;default:false"`
	RelatedID *uuid.UUID       `gorm:"type:uuid;<-:create"`
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	newID(&n.ID)
	return nil
}
