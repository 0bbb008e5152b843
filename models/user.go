package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRole 代表使用者在平台上的角色
type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleBidder UserRole = "bidder"
	RoleSeller UserRole = "seller"
)

// User 代表拍賣系統中的使用者
// 密碼只儲存 bcrypt 雜湊，明文不落地
type User struct {
	gorm.Model

	ID           uuid.UUID `gorm:"type:uuid;primaryKey;<-:create"`
	Username     string    `gorm:"type:varchar(255);not null"`
	Email        string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_users_email,where:deleted_at IS NULL"`
	PasswordHash string    `gorm:"type:text;not null"`
	Role         UserRole  `gorm:"type:varchar(16);not null;default:'bidder'"`
	Phone        string    `gorm:"type:varchar(32)"`
	IsVerified   bool      `gorm:"not null;default:false"`

	// 外鍵關聯
	WatchedAuctions []WatchedAuction
}

func (u *User) BeforeCreate(*gorm.DB) error {
	newID(&u.ID)
	return nil
}

// WatchedAuction 代表使用者追蹤中的拍賣
type WatchedAuction struct {
	gorm.Model

	ID        uuid.UUID `gorm:"type:uuid;primaryKey;<-:create"`
	UserID    uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_watched_user_auction,where:deleted_at IS NULL;not null;<-:create"`
	AuctionID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_watched_user_auction,where:deleted_at IS NULL;not null;<-:create"`

	Auction *Auction `gorm:"foreignKey:AuctionID"`
}

func (w *WatchedAuction) BeforeCreate(*gorm.DB) error {
	newID(&w.ID)
	return nil
}
