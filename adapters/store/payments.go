package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"towbid/auction"
	"towbid/models"
)

var (
	// ErrNotWinner 表示使用者不是這場拍賣的得標者
	ErrNotWinner = errors.New("user is not the winning bidder")
	// ErrAlreadyPaid 表示這場拍賣已經有付款紀錄
	ErrAlreadyPaid = errors.New("auction already has a payment")
)

// BuyerPremium 以佣金比例計算買家要付的手續費，四捨五入到整數金額
func BuyerPremium(amount int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()
}

// CreateCheckout 為得標的拍賣建立付款紀錄。
// 只有已結束拍賣的得標者能結帳；金額是得標價加上買家佣金。
// 金流串接還沒有做，紀錄停在 pending。
func (s *Store) CreateCheckout(ctx context.Context, userID, auctionID uuid.UUID, method models.PaymentMethod) (*models.Payment, error) {
	const op = "Store.CreateCheckout"

	var payment *models.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a models.Auction
		if result := tx.Preload("WinningBid").First(&a, "id = ?", auctionID); result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return auction.ErrAuctionNotFound
			}
			return fmt.Errorf("[%s] Fail to find auction, err=%w", op, result.Error)
		}
		if a.Status != models.AuctionEnded || a.WinningBid == nil {
			return auction.ErrInvalidStatus
		}
		if a.WinningBidderID == nil || *a.WinningBidderID != userID {
			return ErrNotWinner
		}

		var count int64
		if result := tx.Model(&models.Payment{}).
			Where("auction_id = ?", auctionID).
			Count(&count); result.Error != nil {
			return fmt.Errorf("[%s] Fail to check existing payment, err=%w", op, result.Error)
		}
		if count > 0 {
			return ErrAlreadyPaid
		}

		amount := a.WinningBid.Amount
		fee := BuyerPremium(amount, s.opts.premiumRate)
		payment = &models.Payment{
			UserID:        userID,
			AuctionID:     auctionID,
			Amount:        amount,
			FeeAmount:     fee,
			Status:        models.PaymentPending,
			Method:        method,
			TransactionID: fmt.Sprintf("txn-%s", uuid.New()),
		}
		if result := tx.Create(payment); result.Error != nil {
			return fmt.Errorf("[%s] Fail to create payment, err=%w", op, result.Error)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("checkout created",
		slog.String("auctionId", auctionID.String()),
		slog.Int64("amount", payment.Amount),
		slog.Int64("fee", payment.FeeAmount))
	return payment, nil
}

// ListPayments 列出使用者的付款紀錄，新到舊排序
func (s *Store) ListPayments(ctx context.Context, userID uuid.UUID) ([]models.Payment, error) {
	const op = "Store.ListPayments"
	var payments []models.Payment
	result := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&payments)
	if result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to list payments, err=%w", op, result.Error)
	}
	return payments, nil
}
