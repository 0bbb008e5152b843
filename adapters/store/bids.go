package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"towbid/auction"
	"towbid/models"
)

// CreateBid 以最新的拍賣狀態處理一筆出價。
// 呼叫端通常已經做過本地驗證，但本地快照可能過期，這裡一律重驗；
// 設定了 redis 時先取分散式鎖，再用現價快取擋掉明顯不足的出價，
// 最後在資料庫交易內完成寫入，交易結果才是權威答案。
func (s *Store) CreateBid(ctx context.Context, auctionID, bidderID uuid.UUID, amount int64) (*models.Bid, error) {
	const op = "Store.CreateBid"
	if bidderID == uuid.Nil {
		return nil, auction.ErrUnauthenticated
	}

	// 取得Redis上這場拍賣的出價鎖
	if s.opts.newLocker != nil {
		locker := s.opts.newLocker(s.lockKey(auctionID.String()))
		lockCtx, err := locker.Lock(ctx)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to acquire bid lock, err=%w", op, err)
		}
		defer func() {
			if _, err := locker.Unlock(); err != nil {
				s.logger.Warn("Fail to release bid lock",
					slog.String("auctionId", auctionID.String()),
					slog.Any("error", err))
			}
		}()
		ctx = lockCtx
	}

	var current models.Auction
	if result := s.db.WithContext(ctx).First(&current, "id = ?", auctionID); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, auction.ErrAuctionNotFound
		}
		return nil, fmt.Errorf("[%s] Fail to find auction, err=%w", op, result.Error)
	}
	if current.Status != models.AuctionActive {
		return nil, auction.ErrBidRejected
	}

	// 現價快取閘門，快取不在就用資料庫的現價回填後再試一次
	gated := false
	if s.opts.redisClient != nil {
		if err := s.runBidGate(ctx, &current, amount); err != nil {
			return nil, err
		}
		gated = true
	}

	var bid *models.Bid
	var outbidNote *models.Notification
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a models.Auction
		if result := tx.First(&a, "id = ?", auctionID); result.Error != nil {
			return fmt.Errorf("[%s] Fail to reload auction, err=%w", op, result.Error)
		}
		// 交易內用最新狀態再驗一次，過期快照驗過的出價在這裡被擋下
		if a.Status != models.AuctionActive || amount < a.MinimumBid() {
			return auction.ErrBidRejected
		}

		// 前一筆領先的出價轉為被超越，並通知原本領先的買家。
		// 拍賣進行中領先者維持 placed，winning 要等結標時才裁定
		var prev models.Bid
		result := tx.Where("auction_id = ? AND status = ?", auctionID, models.BidPlaced).
			Order("amount DESC").
			First(&prev)
		if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return fmt.Errorf("[%s] Fail to find leading bid, err=%w", op, result.Error)
		}
		if result.Error == nil {
			if r := tx.Model(&prev).Update("status", models.BidOutbid); r.Error != nil {
				return fmt.Errorf("[%s] Fail to mark previous bid outbid, err=%w", op, r.Error)
			}
			if prev.BidderID != bidderID {
				outbid := models.Notification{
					UserID:    prev.BidderID,
					Type:      models.NotificationOutbid,
					Title:     "You have been outbid",
					Message:   fmt.Sprintf("A bid of %d topped yours on %q", amount, a.Title),
					RelatedID: &a.ID,
				}
				if r := tx.Create(&outbid); r.Error != nil {
					return fmt.Errorf("[%s] Fail to create outbid notification, err=%w", op, r.Error)
				}
				outbidNote = &outbid
			}
		}

		bid = &models.Bid{
			AuctionID: auctionID,
			BidderID:  bidderID,
			Amount:    amount,
			Status:    models.BidPlaced,
		}
		if r := tx.Create(bid); r.Error != nil {
			return fmt.Errorf("[%s] Fail to create bid, err=%w", op, r.Error)
		}
		if r := tx.Model(&a).Update("current_price", amount); r.Error != nil {
			return fmt.Errorf("[%s] Fail to update current price, err=%w", op, r.Error)
		}
		return nil
	})
	if err != nil {
		// 閘門已經把快取寫成新出價，交易沒提交就得撤掉，
		// 否則快取高於資料庫現價，之後的合法出價會被閘門誤擋
		if gated {
			if delErr := s.opts.redisClient.Del(ctx, s.priceKey(auctionID.String())).Err(); delErr != nil {
				s.logger.Warn("Fail to reset price cache after uncommitted bid",
					slog.String("auctionId", auctionID.String()),
					slog.Any("error", delErr))
			}
		}
		return nil, err
	}
	s.notify(outbidNote)

	s.logger.Info("Higher bid occurs",
		slog.String("auctionId", auctionID.String()),
		slog.String("bidderId", bidderID.String()),
		slog.Int64("amount", amount))
	return bid, nil
}

// runBidGate 執行現價快取閘門。
// 快取不存在時以資料庫的現價回填再執行一次；兩次都只可能回傳接受或拒絕。
func (s *Store) runBidGate(ctx context.Context, a *models.Auction, amount int64) error {
	const op = "Store.runBidGate"
	key := s.priceKey(a.ID.String())
	ttl := int(s.opts.cacheTTL.Seconds())

	status, err := bidGateScript.Run(ctx, s.opts.redisClient,
		[]string{key}, amount, a.IncrementAmount, ttl).Int()
	if err != nil {
		return fmt.Errorf("[%s] Fail to run bid gate, err=%w", op, err)
	}
	switch status {
	case 1:
		return nil
	case 0:
		return auction.ErrBidRejected
	}

	// 快取不存在，用資料庫紀錄的現價回填
	// NOTE: 每次過閘的出價都會更新快取，所以只有快取過期後的第一筆出價會走到這裡
	if err := s.opts.redisClient.Set(ctx, key, a.CurrentPrice, s.opts.cacheTTL).Err(); err != nil {
		return fmt.Errorf("[%s] Fail to seed current price, err=%w", op, err)
	}
	status, err = bidGateScript.Run(ctx, s.opts.redisClient,
		[]string{key}, amount, a.IncrementAmount, ttl).Int()
	if err != nil {
		return fmt.Errorf("[%s] Fail to rerun bid gate, err=%w", op, err)
	}
	switch status {
	case 1:
		return nil
	case 0:
		return auction.ErrBidRejected
	}
	return fmt.Errorf("[%s] Impossible case occurs: %d", op, status)
}

// ListBids 列出一場拍賣的出價，金額由高到低
func (s *Store) ListBids(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error) {
	const op = "Store.ListBids"
	var bids []models.Bid
	result := s.db.WithContext(ctx).
		Preload("Bidder").
		Where("auction_id = ?", auctionID).
		Order("amount DESC").
		Find(&bids)
	if result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to list bids, err=%w", op, result.Error)
	}
	return bids, nil
}
