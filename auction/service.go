package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"towbid/adapters/eventbus"
	"towbid/models"
)

// Store 是出價流程需要的權威儲存介面
type Store interface {
	GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	CreateBid(ctx context.Context, auctionID, bidderID uuid.UUID, amount int64) (*models.Bid, error)
}

// Publisher 把事件送上頻道，*eventbus.Channel 滿足這個介面
type Publisher interface {
	Send(eventType string, payload any) error
}

type serviceOptions struct {
	logger *slog.Logger
}

type ServiceOption func(*serviceOptions)

// WithServiceLogger 設置日誌記錄器
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// Service 實作出價流程。
// 驗證全部在本地快照上完成，任何一關失敗就直接回傳，不碰儲存也不碰頻道；
// 全數通過才寫入權威儲存，最後盡力把 place_bid 事件送上頻道。
type Service struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
}

// NewService 建立出價服務，publisher 可以為 nil（不發事件）
func NewService(store Store, publisher Publisher, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}

	options := serviceOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Service{
		store:     store,
		publisher: publisher,
		logger:    options.logger.With(slog.String("caller", "AuctionService")),
	}, nil
}

// ValidateBid 依序檢查一筆出價是否能送出，只讀 snapshot，不碰外部系統。
// 順序固定：身分、拍賣狀態、高於現價、滿足最低增額；回傳第一個失敗的原因。
func ValidateBid(snapshot *models.Auction, bidderID uuid.UUID, amount int64) error {
	if bidderID == uuid.Nil {
		return ErrUnauthenticated
	}
	if snapshot == nil || snapshot.Status != models.AuctionActive {
		return ErrAuctionNotActive
	}
	if amount <= snapshot.CurrentPrice {
		return ErrBidTooLow
	}
	if amount < snapshot.MinimumBid() {
		return ErrBelowMinimumIncrement
	}
	return nil
}

// PlaceBid 對 snapshot 所描述的拍賣送出一筆出價。
// 本地驗證失敗時直接回傳對應錯誤；通過後寫入儲存，儲存端會用最新狀態
// 再驗一次，所以本地通過不保證成功。成立的出價會寫回 snapshot 的現價
// 與出價清單，最後盡力發佈 place_bid 事件，發佈失敗只記日誌，
// 不影響已成立的出價。
func (s *Service) PlaceBid(ctx context.Context, snapshot *models.Auction, bidderID uuid.UUID, amount int64) (*models.Bid, error) {
	const op = "AuctionService.PlaceBid"

	if err := ValidateBid(snapshot, bidderID, amount); err != nil {
		return nil, err
	}

	bid, err := s.store.CreateBid(ctx, snapshot.ID, bidderID, amount)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create bid, err=%w", op, err)
	}

	// 儲存端收下後同步更新本地快照，呼叫端不用等下一次輪詢才看到新現價
	snapshot.CurrentPrice = bid.Amount
	snapshot.Bids = append(snapshot.Bids, *bid)

	s.logger.Info("bid placed",
		slog.String("auctionId", snapshot.ID.String()),
		slog.String("bidId", bid.ID.String()),
		slog.Int64("amount", amount))

	if s.publisher != nil {
		err := s.publisher.Send(eventbus.TopicPlaceBid, eventbus.PlaceBid{
			AuctionID: snapshot.ID,
			Amount:    amount,
			BidderID:  bidderID,
		})
		if err != nil {
			s.logger.Warn("Fail to publish place_bid event",
				slog.String("auctionId", snapshot.ID.String()),
				slog.Any("error", err))
		}
	}
	return bid, nil
}

// GetAuction 取得單一拍賣的最新狀態
func (s *Service) GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	return s.store.GetAuction(ctx, id)
}

// PublishBidUpdate 把一筆已成立的出價廣播到頻道
func (s *Service) PublishBidUpdate(bid *models.Bid) {
	if s.publisher == nil || bid == nil {
		return
	}
	err := s.publisher.Send(eventbus.TopicBidUpdate, eventbus.BidUpdate{
		AuctionID: bid.AuctionID,
		Bid: eventbus.BidPayload{
			ID:        bid.ID.String(),
			AuctionID: bid.AuctionID,
			BidderID:  bid.BidderID,
			Amount:    bid.Amount,
			Timestamp: bid.CreatedAt,
			Status:    string(bid.Status),
		},
	})
	if err != nil {
		s.logger.Warn("Fail to publish bid_update event",
			slog.String("auctionId", bid.AuctionID.String()),
			slog.Any("error", err))
	}
}
