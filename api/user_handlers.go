package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"towbid/adapters/store"
	"towbid/auction"
	"towbid/models"
)

func (srv *Server) postWatch(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr("Invalid auction id")})
		return
	}
	claims := currentClaims(c)
	err = srv.deps.Store.WatchAuction(c.Request.Context(), claims.UserID(), id)
	if errors.Is(err, auction.ErrAuctionNotFound) {
		c.Status(http.StatusNotFound)
		return
	}
	if err != nil {
		srv.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (srv *Server) deleteWatch(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr("Invalid auction id")})
		return
	}
	claims := currentClaims(c)
	err = srv.deps.Store.UnwatchAuction(c.Request.Context(), claims.UserID(), id)
	if errors.Is(err, store.ErrNotWatched) {
		c.Status(http.StatusNotFound)
		return
	}
	if err != nil {
		srv.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (srv *Server) getWatched(c *gin.Context) {
	claims := currentClaims(c)
	auctions, err := srv.deps.Store.ListWatchedAuctions(c.Request.Context(), claims.UserID())
	if err != nil {
		srv.fail(c, err)
		return
	}
	now := time.Now()
	c.JSON(http.StatusOK, gin.H{
		"count": len(auctions),
		"items": lo.Map(auctions, func(a models.Auction, _ int) auctionResponse {
			return toAuctionResponse(&a, now)
		}),
	})
}

func (srv *Server) getPayments(c *gin.Context) {
	claims := currentClaims(c)
	payments, err := srv.deps.Store.ListPayments(c.Request.Context(), claims.UserID())
	if err != nil {
		srv.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(payments),
		"items": lo.Map(payments, func(p models.Payment, _ int) gin.H {
			return gin.H{
				"id":            p.ID.String(),
				"auctionId":     p.AuctionID.String(),
				"amount":        p.Amount,
				"feeAmount":     p.FeeAmount,
				"status":        string(p.Status),
				"method":        string(p.Method),
				"transactionId": p.TransactionID,
				"createdAt":     p.CreatedAt,
			}
		}),
	})
}

type notificationResponse struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"isRead"`
	RelatedID *string   `json:"relatedId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func toNotificationResponse(n models.Notification) notificationResponse {
	resp := notificationResponse{
		ID:        n.ID.String(),
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
	if n.RelatedID != nil {
		resp.RelatedID = lo.ToPtr(n.RelatedID.String())
	}
	return resp
}

func (srv *Server) getNotifications(c *gin.Context) {
	unreadOnly, _ := strconv.ParseBool(c.DefaultQuery("unread", "false"))
	claims := currentClaims(c)
	notifications, err := srv.deps.Store.ListNotifications(c.Request.Context(), claims.UserID(), unreadOnly)
	if err != nil {
		srv.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(notifications),
		"items": lo.Map(notifications, func(n models.Notification, _ int) notificationResponse {
			return toNotificationResponse(n)
		}),
	})
}

func (srv *Server) postNotificationRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr("Invalid notification id")})
		return
	}
	claims := currentClaims(c)
	err = srv.deps.Store.MarkNotificationRead(c.Request.Context(), claims.UserID(), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.Status(http.StatusNotFound)
		return
	}
	if err != nil {
		srv.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (srv *Server) postNotificationsReadAll(c *gin.Context) {
	claims := currentClaims(c)
	if err := srv.deps.Store.MarkAllNotificationsRead(c.Request.Context(), claims.UserID()); err != nil {
		srv.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
