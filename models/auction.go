package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuctionStatus 代表拍賣的生命週期狀態
type AuctionStatus string

const (
	AuctionDraft     AuctionStatus = "draft"
	AuctionScheduled AuctionStatus = "scheduled"
	AuctionActive    AuctionStatus = "active"
	AuctionEnded     AuctionStatus = "ended"
	AuctionCancelled AuctionStatus = "cancelled"
)

// statusRank 定義狀態的先後順序，狀態轉移只能往前不能倒退
var statusRank = map[AuctionStatus]int{
	AuctionDraft:     0,
	AuctionScheduled: 1,
	AuctionActive:    2,
	AuctionEnded:     3,
}

// Terminal 回報狀態是否為終態，終態後拍賣內容不再變動
func (s AuctionStatus) Terminal() bool {
	return s == AuctionEnded || s == AuctionCancelled
}

// CanTransitionTo 檢查狀態轉移是否合法。
// draft → scheduled → active → ended 單向前進，cancelled 可以從任何非終態進入。
func (s AuctionStatus) CanTransitionTo(next AuctionStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == AuctionCancelled {
		return true
	}
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// Auction 代表一場拖吊車輛的拍賣
// currentPrice 永遠等於最近一次被接受的出價金額，沒有出價時等於起標價
type Auction struct {
	gorm.Model

	ID              uuid.UUID     `gorm:"type:uuid;primaryKey;<-:create"`
	VehicleID       uuid.UUID     `gorm:"type:uuid;not null;<-:create"`
	Title           string        `gorm:"type:varchar(255);not null"`
	Description     string        `gorm:"type:text;not null"`
	StartingPrice   int64         `gorm:"not null;<-:create"`
	CurrentPrice    int64         `gorm:"not null"`
	ReservePrice    *int64        `gorm:""`
	IncrementAmount int64         `gorm:"not null;<-:create"`
	StartTime       time.Time     `gorm:"not null"`
	EndTime         time.Time     `gorm:"not null"`
	Status          AuctionStatus `gorm:"type:varchar(16);not null;default:'draft'"`
	ViewCount       int64         `gorm:"not null;default:0"`
	WinningBidID    *uuid.UUID    `gorm:"type:uuid"`
	WinningBidderID *uuid.UUID    `gorm:"type:uuid"`
	CreatedBy       uuid.UUID     `gorm:"type:uuid;not null;<-:create"`
	Featured        bool          `gorm:"not null;default:false"`
	Images          []string      `gorm:"serializer:json"`

	// 外鍵關聯
	Vehicle    *Vehicle `gorm:"foreignKey:VehicleID"`
	WinningBid *Bid     `gorm:"foreignKey:WinningBidID"`
	Bids       []Bid
}

func (a *Auction) BeforeCreate(*gorm.DB) error {
	newID(&a.ID)
	return nil
}

// MinimumBid 回傳下一個合法出價的最低金額
func (a *Auction) MinimumBid() int64 {
	return a.CurrentPrice + a.IncrementAmount
}
