package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"towbid/auction"
	"towbid/models"
)

// ErrNotWatched 表示使用者沒有追蹤這場拍賣
var ErrNotWatched = errors.New("auction is not watched")

// WatchAuction 把拍賣加入使用者的追蹤清單，重複追蹤是 no-op
func (s *Store) WatchAuction(ctx context.Context, userID, auctionID uuid.UUID) error {
	const op = "Store.WatchAuction"

	var count int64
	result := s.db.WithContext(ctx).Model(&models.Auction{}).
		Where("id = ?", auctionID).Count(&count)
	if result.Error != nil {
		return fmt.Errorf("[%s] Fail to check auction, err=%w", op, result.Error)
	}
	if count == 0 {
		return auction.ErrAuctionNotFound
	}

	var existing models.WatchedAuction
	result = s.db.WithContext(ctx).
		Where("user_id = ? AND auction_id = ?", userID, auctionID).
		First(&existing)
	if result.Error == nil {
		return nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return fmt.Errorf("[%s] Fail to check watch entry, err=%w", op, result.Error)
	}

	watch := models.WatchedAuction{UserID: userID, AuctionID: auctionID}
	if result := s.db.WithContext(ctx).Create(&watch); result.Error != nil {
		return fmt.Errorf("[%s] Fail to create watch entry, err=%w", op, result.Error)
	}
	return nil
}

// UnwatchAuction 把拍賣移出使用者的追蹤清單
func (s *Store) UnwatchAuction(ctx context.Context, userID, auctionID uuid.UUID) error {
	const op = "Store.UnwatchAuction"
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND auction_id = ?", userID, auctionID).
		Delete(&models.WatchedAuction{})
	if result.Error != nil {
		return fmt.Errorf("[%s] Fail to delete watch entry, err=%w", op, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotWatched
	}
	return nil
}

// ListWatchedAuctions 列出使用者追蹤中的拍賣
func (s *Store) ListWatchedAuctions(ctx context.Context, userID uuid.UUID) ([]models.Auction, error) {
	const op = "Store.ListWatchedAuctions"
	var auctions []models.Auction
	result := s.db.WithContext(ctx).
		Joins("JOIN watched_auctions ON watched_auctions.auction_id = auctions.id").
		Where("watched_auctions.user_id = ? AND watched_auctions.deleted_at IS NULL", userID).
		Preload("Vehicle").
		Find(&auctions)
	if result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to list watched auctions, err=%w", op, result.Error)
	}
	return auctions, nil
}

// CreateNotification 建立一筆站內通知
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	const op = "Store.CreateNotification"
	if n == nil {
		return errors.New("notification cannot be nil")
	}
	if result := s.db.WithContext(ctx).Create(n); result.Error != nil {
		return fmt.Errorf("[%s] Fail to create notification, err=%w", op, result.Error)
	}
	return nil
}

// ListNotifications 列出使用者的通知，新到舊排序
func (s *Store) ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]models.Notification, error) {
	const op = "Store.ListNotifications"
	query := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var notifications []models.Notification
	if result := query.Find(&notifications); result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to list notifications, err=%w", op, result.Error)
	}
	return notifications, nil
}

// MarkNotificationRead 把使用者的一筆通知標為已讀
func (s *Store) MarkNotificationRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	const op = "Store.MarkNotificationRead"
	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("is_read", true)
	if result.Error != nil {
		return fmt.Errorf("[%s] Fail to mark notification read, err=%w", op, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkAllNotificationsRead 把使用者的通知全部標為已讀
func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) error {
	const op = "Store.MarkAllNotificationsRead"
	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	if result.Error != nil {
		return fmt.Errorf("[%s] Fail to mark notifications read, err=%w", op, result.Error)
	}
	return nil
}
