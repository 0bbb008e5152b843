package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"towbid/auction"
	"towbid/models"
)

// DefaultAuctionDuration 是建立拍賣未指定結束時間時的預設長度
const DefaultAuctionDuration = 7 * 24 * time.Hour

// ListFilter 是拍賣列表的查詢條件
type ListFilter struct {
	Status    models.AuctionStatus
	Featured  *bool
	CreatedBy uuid.UUID
	Limit     int
	Offset    int
}

// CreateAuction 建立一場拍賣。
// 現價以起標價起算；未指定結束時間時從開始時間往後推預設長度；
// 描述內容先做 HTML 消毒再入庫。
func (s *Store) CreateAuction(ctx context.Context, a *models.Auction) error {
	const op = "Store.CreateAuction"
	if a == nil {
		return errors.New("auction cannot be nil")
	}

	a.CurrentPrice = a.StartingPrice
	if a.Status == "" {
		a.Status = models.AuctionDraft
	}
	if a.StartTime.IsZero() {
		a.StartTime = time.Now()
	}
	if a.EndTime.IsZero() {
		a.EndTime = a.StartTime.Add(DefaultAuctionDuration)
	}
	if !a.EndTime.After(a.StartTime) {
		return errors.New("end time must be after start time")
	}
	if a.IncrementAmount <= 0 {
		return errors.New("increment amount must be positive")
	}
	a.Description = s.sanitizer.Sanitize(a.Description)

	if result := s.db.WithContext(ctx).Create(a); result.Error != nil {
		return fmt.Errorf("[%s] Fail to create auction, err=%w", op, result.Error)
	}
	s.logger.Info("auction created",
		slog.String("auctionId", a.ID.String()),
		slog.Int64("startingPrice", a.StartingPrice))
	return nil
}

// GetAuction 取得單一拍賣，帶出車輛資料與金額由高到低的出價紀錄
func (s *Store) GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	const op = "Store.GetAuction"
	var a models.Auction
	result := s.db.WithContext(ctx).
		Preload("Vehicle").
		Preload("Bids", func(db *gorm.DB) *gorm.DB {
			return db.Order("amount DESC").Limit(s.opts.maxBidsShown)
		}).
		Preload("Bids.Bidder").
		First(&a, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, auction.ErrAuctionNotFound
		}
		return nil, fmt.Errorf("[%s] Fail to find auction, err=%w", op, result.Error)
	}
	return &a, nil
}

// IncrementViewCount 累加拍賣的瀏覽次數
func (s *Store) IncrementViewCount(ctx context.Context, id uuid.UUID) error {
	const op = "Store.IncrementViewCount"
	result := s.db.WithContext(ctx).
		Model(&models.Auction{}).
		Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + 1"))
	if result.Error != nil {
		return fmt.Errorf("[%s] Fail to increment view count, err=%w", op, result.Error)
	}
	if result.RowsAffected == 0 {
		return auction.ErrAuctionNotFound
	}
	return nil
}

// ListAuctions 依條件列出拍賣，依建立時間新到舊排序
func (s *Store) ListAuctions(ctx context.Context, filter ListFilter) ([]models.Auction, error) {
	const op = "Store.ListAuctions"
	query := s.db.WithContext(ctx).Preload("Vehicle").Order("created_at DESC")
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Featured != nil {
		query = query.Where("featured = ?", *filter.Featured)
	}
	if filter.CreatedBy != uuid.Nil {
		query = query.Where("created_by = ?", filter.CreatedBy)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var auctions []models.Auction
	if result := query.Find(&auctions); result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to list auctions, err=%w", op, result.Error)
	}
	return auctions, nil
}

// UpdateAuction 更新拍賣的可編輯欄位，終態的拍賣不能再改
func (s *Store) UpdateAuction(ctx context.Context, a *models.Auction) error {
	const op = "Store.UpdateAuction"
	if a == nil {
		return errors.New("auction cannot be nil")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Auction
		if result := tx.First(&existing, "id = ?", a.ID); result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return auction.ErrAuctionNotFound
			}
			return fmt.Errorf("[%s] Fail to find auction, err=%w", op, result.Error)
		}
		if existing.Status.Terminal() {
			return auction.ErrInvalidStatus
		}

		updates := map[string]any{
			"title":       a.Title,
			"description": s.sanitizer.Sanitize(a.Description),
			"featured":    a.Featured,
			"images":      a.Images,
		}
		if result := tx.Model(&existing).Updates(updates); result.Error != nil {
			return fmt.Errorf("[%s] Fail to update auction, err=%w", op, result.Error)
		}
		return nil
	})
}

// UpdateAuctionStatus 推進拍賣狀態。
// 只允許單向前進，cancelled 可以從任何非終態進入；
// 進入 ended 時在同一筆交易內完成得標結算。
func (s *Store) UpdateAuctionStatus(ctx context.Context, id uuid.UUID, next models.AuctionStatus) error {
	const op = "Store.UpdateAuctionStatus"

	var wonNote *models.Notification
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a models.Auction
		if result := tx.First(&a, "id = ?", id); result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return auction.ErrAuctionNotFound
			}
			return fmt.Errorf("[%s] Fail to find auction, err=%w", op, result.Error)
		}
		if !a.Status.CanTransitionTo(next) {
			return auction.ErrInvalidStatus
		}

		if next == models.AuctionEnded {
			note, err := s.endAuctionTx(tx, &a)
			wonNote = note
			return err
		}

		if result := tx.Model(&a).Update("status", next); result.Error != nil {
			return fmt.Errorf("[%s] Fail to update status, err=%w", op, result.Error)
		}
		s.logger.Info("auction status updated",
			slog.String("auctionId", a.ID.String()),
			slog.String("status", string(next)))
		return nil
	})
	if err != nil {
		return err
	}
	s.notify(wonNote)
	return nil
}

// endAuctionTx 收尾一場拍賣：最高出價成為得標，其餘出價標為被超越。
// 必須在交易內呼叫；回傳建立的得標通知，交由呼叫端在提交後推送。
func (s *Store) endAuctionTx(tx *gorm.DB, a *models.Auction) (*models.Notification, error) {
	const op = "Store.endAuctionTx"

	var topBid models.Bid
	result := tx.Where("auction_id = ? AND status NOT IN ?", a.ID,
		[]models.BidStatus{models.BidCancelled, models.BidRejected}).
		Order("amount DESC").
		First(&topBid)
	hasWinner := result.Error == nil
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("[%s] Fail to find top bid, err=%w", op, result.Error)
	}

	updates := map[string]any{"status": models.AuctionEnded}
	if hasWinner {
		// 保留底價的拍賣，最高價沒達到底價就流標
		if a.ReservePrice != nil && topBid.Amount < *a.ReservePrice {
			hasWinner = false
		}
	}
	if hasWinner {
		updates["winning_bid_id"] = topBid.ID
		updates["winning_bidder_id"] = topBid.BidderID
	}
	if result := tx.Model(a).Updates(updates); result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to end auction, err=%w", op, result.Error)
	}

	var wonNote *models.Notification
	if hasWinner {
		if result := tx.Model(&models.Bid{}).
			Where("id = ?", topBid.ID).
			Update("status", models.BidWinning); result.Error != nil {
			return nil, fmt.Errorf("[%s] Fail to mark winning bid, err=%w", op, result.Error)
		}
		if result := tx.Model(&models.Bid{}).
			Where("auction_id = ? AND id <> ? AND status NOT IN ?", a.ID, topBid.ID,
				[]models.BidStatus{models.BidCancelled, models.BidRejected}).
			Update("status", models.BidOutbid); result.Error != nil {
			return nil, fmt.Errorf("[%s] Fail to mark outbid bids, err=%w", op, result.Error)
		}

		won := models.Notification{
			UserID:    topBid.BidderID,
			Type:      models.NotificationAuctionWon,
			Title:     "You won the auction",
			Message:   fmt.Sprintf("Your bid of %d won %q", topBid.Amount, a.Title),
			RelatedID: &a.ID,
		}
		if result := tx.Create(&won); result.Error != nil {
			return nil, fmt.Errorf("[%s] Fail to create winner notification, err=%w", op, result.Error)
		}
		wonNote = &won
	}

	s.logger.Info("auction ended",
		slog.String("auctionId", a.ID.String()),
		slog.Bool("hasWinner", hasWinner))
	return wonNote, nil
}

// ActivateDueAuctions 把開始時間已到的 scheduled 拍賣轉為 active
func (s *Store) ActivateDueAuctions(ctx context.Context) (int, error) {
	const op = "Store.ActivateDueAuctions"
	result := s.db.WithContext(ctx).
		Model(&models.Auction{}).
		Where("status = ? AND start_time <= ?", models.AuctionScheduled, time.Now()).
		Update("status", models.AuctionActive)
	if result.Error != nil {
		return 0, fmt.Errorf("[%s] Fail to activate auctions, err=%w", op, result.Error)
	}
	return int(result.RowsAffected), nil
}

// EndDueAuctions 把結束時間已到的 active 拍賣逐場收尾
func (s *Store) EndDueAuctions(ctx context.Context) (int, error) {
	const op = "Store.EndDueAuctions"
	var due []models.Auction
	result := s.db.WithContext(ctx).
		Where("status = ? AND end_time <= ?", models.AuctionActive, time.Now()).
		Find(&due)
	if result.Error != nil {
		return 0, fmt.Errorf("[%s] Fail to find due auctions, err=%w", op, result.Error)
	}

	ended := 0
	for i := range due {
		var wonNote *models.Notification
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			note, err := s.endAuctionTx(tx, &due[i])
			wonNote = note
			return err
		})
		if err != nil {
			s.logger.Error("Fail to end due auction",
				slog.String("auctionId", due[i].ID.String()),
				slog.Any("error", err))
			continue
		}
		s.notify(wonNote)
		ended++
	}
	return ended, nil
}
