package eventbus

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// 頻道上使用的主題名稱。
// 事件依主題路由，訂閱者只會收到自己訂閱主題的事件。
const (
	TopicBidUpdate     = "bid_update"
	TopicAuctionUpdate = "auction_update"
	TopicNotification  = "notification"
	TopicSystem        = "system"
	TopicPlaceBid      = "place_bid"
)

// Envelope 是頻道上傳輸的訊息外層格式
// Type 同時作為路由用的主題，Data 留給各主題自行定義
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// BidUpdate 是 bid_update 主題的事件內容
type BidUpdate struct {
	AuctionID uuid.UUID  `json:"auctionId"`
	Bid       BidPayload `json:"bid"`
}

// BidPayload 是事件中攜帶的出價摘要
type BidPayload struct {
	ID        string    `json:"id"`
	AuctionID uuid.UUID `json:"auctionId"`
	BidderID  uuid.UUID `json:"bidderId"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
}

// AuctionUpdate 是 auction_update 主題的事件內容。
// 訂閱者收到後應該重新向權威儲存拉取完整狀態，而不是直接採信事件內容，
// 因為頻道不保證順序與送達。
type AuctionUpdate struct {
	AuctionID uuid.UUID `json:"auctionId"`
	Status    string    `json:"status,omitempty"`
}

// NotificationEvent 是 notification 主題的事件內容
type NotificationEvent struct {
	UserID    uuid.UUID `json:"userId"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	RelatedID string    `json:"relatedId,omitempty"`
}

// PlaceBid 是客戶端送出 place_bid 時攜帶的內容
type PlaceBid struct {
	AuctionID uuid.UUID `json:"auctionId"`
	Amount    int64     `json:"amount"`
	BidderID  uuid.UUID `json:"bidderId"`
}
