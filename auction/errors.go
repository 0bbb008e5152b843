package auction

import "errors"

// 出價與拍賣操作的錯誤分類。
// 前四個是本地驗證錯誤，出價在送出前就被擋下，不會碰到任何外部系統；
// 後面的來自權威儲存，呼叫端用 errors.Is 區分。
var (
	ErrUnauthenticated       = errors.New("user is not authenticated")
	ErrAuctionNotActive      = errors.New("auction is not active")
	ErrBidTooLow             = errors.New("bid amount must exceed current price")
	ErrBelowMinimumIncrement = errors.New("bid amount is below the minimum increment")

	ErrAuctionNotFound = errors.New("auction not found")
	ErrBidRejected     = errors.New("bid rejected by the authoritative store")
	ErrInvalidStatus   = errors.New("invalid auction status transition")
)
