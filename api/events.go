package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"towbid/adapters/auth"
	"towbid/adapters/eventbus"
)

type sseEvent struct {
	topic string
	data  json.RawMessage
}

// getEvents 把事件頻道的訂閱橋接成SSE串流。
// 可用 auction 參數過濾出價與拍賣事件；帶有效token時會附帶自己的通知事件。
func (srv *Server) getEvents(c *gin.Context) {
	if srv.deps.Bus == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": lo.ToPtr("Event stream is not configured")})
		return
	}

	var auctionID uuid.UUID
	if raw := c.Query("auction"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr("Invalid auction id")})
			return
		}
		auctionID = parsed
	}
	// token 是選配，只影響能不能收到自己的通知
	var userID uuid.UUID
	if tokenString, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); found {
		if claims, err := auth.ParseToken([]byte(srv.config.Auth.Secret), tokenString); err == nil {
			userID = claims.UserID()
		}
	}

	events := make(chan sseEvent, 16)
	enqueue := func(topic string, data json.RawMessage) {
		select {
		case events <- sseEvent{topic: topic, data: data}:
		default:
			// 訂閱者跟不上就丟事件，客戶端本來就該回權威儲存補狀態
		}
	}

	unsubBid := srv.deps.Bus.Subscribe(eventbus.TopicBidUpdate, func(data json.RawMessage) {
		if auctionID != uuid.Nil {
			var update eventbus.BidUpdate
			if json.Unmarshal(data, &update) != nil || update.AuctionID != auctionID {
				return
			}
		}
		enqueue(eventbus.TopicBidUpdate, data)
	})
	defer unsubBid()
	unsubAuction := srv.deps.Bus.Subscribe(eventbus.TopicAuctionUpdate, func(data json.RawMessage) {
		if auctionID != uuid.Nil {
			var update eventbus.AuctionUpdate
			if json.Unmarshal(data, &update) != nil || update.AuctionID != auctionID {
				return
			}
		}
		enqueue(eventbus.TopicAuctionUpdate, data)
	})
	defer unsubAuction()
	if userID != uuid.Nil {
		unsubNotification := srv.deps.Bus.Subscribe(eventbus.TopicNotification, func(data json.RawMessage) {
			var event eventbus.NotificationEvent
			if json.Unmarshal(data, &event) != nil || event.UserID != userID {
				return
			}
			enqueue(eventbus.TopicNotification, data)
		})
		defer unsubNotification()
	}

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Transfer-Encoding", "chunked")
	w.Flush()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case event := <-events:
			c.SSEvent(event.topic, event.data)
			w.Flush()
		// 30秒沒有事件就發送一個空行，確保瀏覽器和代理不會斷開連線
		case <-time.After(30 * time.Second):
			w.WriteString("\n\n")
			w.Flush()
		}
	}
}
