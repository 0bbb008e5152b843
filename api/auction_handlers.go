package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"towbid/adapters/eventbus"
	"towbid/adapters/store"
	"towbid/auction"
	"towbid/models"
)

type createAuctionRequest struct {
	VehicleID       string     `json:"vehicleId" binding:"required"`
	Title           string     `json:"title" binding:"required"`
	Description     string     `json:"description"`
	StartingPrice   int64      `json:"startingPrice" binding:"required"`
	ReservePrice    *int64     `json:"reservePrice"`
	IncrementAmount int64      `json:"incrementAmount" binding:"required"`
	StartTime       *time.Time `json:"startTime"`
	EndTime         *time.Time `json:"endTime"`
	Featured        bool       `json:"featured"`
	Images          []string   `json:"images"`
}

type updateAuctionRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Featured    *bool    `json:"featured"`
	Images      []string `json:"images"`
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type placeBidRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

type bidResponse struct {
	ID        string    `json:"id"`
	AuctionID string    `json:"auctionId"`
	BidderID  string    `json:"bidderId"`
	Amount    int64     `json:"amount"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func toBidResponse(b models.Bid) bidResponse {
	return bidResponse{
		ID:        b.ID.String(),
		AuctionID: b.AuctionID.String(),
		BidderID:  b.BidderID.String(),
		Amount:    b.Amount,
		Status:    string(b.Status),
		Timestamp: b.CreatedAt,
	}
}

type auctionResponse struct {
	ID              string          `json:"id"`
	VehicleID       string          `json:"vehicleId"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Status          string          `json:"status"`
	StartingPrice   int64           `json:"startingPrice"`
	CurrentPrice    int64           `json:"currentPrice"`
	IncrementAmount int64           `json:"incrementAmount"`
	MinimumBid      int64           `json:"minimumBid"`
	StartTime       time.Time       `json:"startTime"`
	EndTime         time.Time       `json:"endTime"`
	RemainingMs     int64           `json:"remainingMs"`
	EndingSoon      bool            `json:"endingSoon"`
	ViewCount       int64           `json:"viewCount"`
	Featured        bool            `json:"featured"`
	Images          []string        `json:"images"`
	WinningBidID    *string         `json:"winningBidId,omitempty"`
	WinningBidderID *string         `json:"winningBidderId,omitempty"`
	Vehicle         *models.Vehicle `json:"vehicle,omitempty"`
	Bids            []bidResponse   `json:"bids,omitempty"`
}

func toAuctionResponse(a *models.Auction, now time.Time) auctionResponse {
	resp := auctionResponse{
		ID:              a.ID.String(),
		VehicleID:       a.VehicleID.String(),
		Title:           a.Title,
		Description:     a.Description,
		Status:          string(a.Status),
		StartingPrice:   a.StartingPrice,
		CurrentPrice:    a.CurrentPrice,
		IncrementAmount: a.IncrementAmount,
		MinimumBid:      a.MinimumBid(),
		StartTime:       a.StartTime,
		EndTime:         a.EndTime,
		RemainingMs:     auction.Remaining(a.EndTime, now).Milliseconds(),
		EndingSoon:      auction.EndingSoon(a.EndTime, now),
		ViewCount:       a.ViewCount,
		Featured:        a.Featured,
		Images:          a.Images,
		Vehicle:         a.Vehicle,
		Bids:            lo.Map(a.Bids, func(b models.Bid, _ int) bidResponse { return toBidResponse(b) }),
	}
	if a.WinningBidID != nil {
		resp.WinningBidID = lo.ToPtr(a.WinningBidID.String())
	}
	if a.WinningBidderID != nil {
		resp.WinningBidderID = lo.ToPtr(a.WinningBidderID.String())
	}
	return resp
}

func (srv *Server) getAuctions(c *gin.Context) {
	filter := store.ListFilter{
		Status: models.AuctionStatus(c.Query("status")),
	}
	if raw := c.Query("featured"); raw != "" {
		featured, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr("Invalid featured value")})
			return
		}
		filter.Featured = &featured
	}
	if raw := c.Query("createdBy"); raw != "" {
		createdBy, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr("Invalid createdBy value")})
			return
		}
		filter.CreatedBy = createdBy
	}
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	auctions, err := srv.deps.Store.ListAuctions(c.Request.Context(), filter)
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

func (srv *Server) getAuction(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr("Invalid auction id")})
		return
	}

	// 瀏覽次數累加失敗不影響讀取
	if err := srv.deps.Store.IncrementViewCount(c.Request.Context(), id); err != nil &&
		!errors.Is(err, auction.ErrAuctionNotFound) {
		srv.logger.Warn("Fail to increment view count",
			slog.String("auctionId", id.String()), slog.Any("error", err))
	}

	a, err := srv.svc.GetAuction(c.Request.Context(), id)
	if errors.Is(err, auction.ErrAuctionNotFound) {
		c.Status(http.StatusNotFound)
		return
	}
	if err != nil {
		srv.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toAuctionResponse(a, time.Now()))
}

func (srv *Server) getAuctionBids(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr("Invalid auction id")})
		return
	}
	bids, err := srv.deps.Store.ListBids(c.Request.Context(), id)
	if err != nil {
		srv.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(bids),
		"items": lo.Map(bids, func(b models.Bid, _ int) bidResponse { return toBidResponse(b) }),
	})
}

func (srv *Server) postAuction(c *gin.Context) {
	claims := currentClaims(c)
	if claims.Role != models.RoleSeller && claims.Role != models.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"message": lo.ToPtr("Seller role required")})
		return
	}

	var req createAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr(err.Error())})
		return
	}
	vehicleID, err := uuid.Parse(req.VehicleID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr("Invalid vehicle id")})
		return
	}
	if _, err := srv.deps.Store.GetVehicle(c.Request.Context(), vehicleID); err != nil {
		if errors.Is(err, store.ErrVehicleNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr("Vehicle not found")})
			return
		}
		srv.fail(c, err)
		return
	}

	a := models.Auction{
		VehicleID:       vehicleID,
		Title:           req.Title,
		Description:     req.Description,
		StartingPrice:   req.StartingPrice,
		ReservePrice:    req.ReservePrice,
		IncrementAmount: req.IncrementAmount,
		Featured:        req.Featured,
		Images:          req.Images,
		CreatedBy:       claims.UserID(),
	}
	if req.StartTime != nil {
		a.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		a.EndTime = *req.EndTime
	}
	if err := srv.deps.Store.CreateAuction(c.Request.Context(), &a); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr(err.Error())})
		return
	}
	c.Header("Location", "/api/auctions/"+a.ID.String())
	c.JSON(http.StatusCreated, toAuctionResponse(&a, time.Now()))
}

func (srv *Server) patchAuction(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr("Invalid auction id")})
		return
	}
	var req updateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr(err.Error())})
		return
	}

	a, err := srv.svc.GetAuction(c.Request.Context(), id)
	if errors.Is(err, auction.ErrAuctionNotFound) {
		c.Status(http.StatusNotFound)
		return
	}
	if err != nil {
		srv.fail(c, err)
		return
	}
	claims := currentClaims(c)
	if claims.Role != models.RoleAdmin && a.CreatedBy != claims.UserID() {
		c.JSON(http.StatusForbidden, gin.H{"message": lo.ToPtr("Only the creator or an admin can edit an auction")})
		return
	}

	if req.Title != "" {
		a.Title = req.Title
	}
	if req.Description != "" {
		a.Description = req.Description
	}
	if req.Featured != nil {
		a.Featured = *req.Featured
	}
	if req.Images != nil {
		a.Images = req.Images
	}
	if err := srv.deps.Store.UpdateAuction(c.Request.Context(), a); err != nil {
		if errors.Is(err, auction.ErrInvalidStatus) {
			c.JSON(http.StatusConflict, gin.H{"message": lo.ToPtr("Auction can no longer be edited")})
			return
		}
		srv.fail(c, err)
		return
	}
	srv.publishAuctionUpdate(a.ID, a.Status)
	c.JSON(http.StatusOK, toAuctionResponse(a, time.Now()))
}

func (srv *Server) patchAuctionStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr("Invalid auction id")})
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr(err.Error())})
		return
	}

	next := models.AuctionStatus(req.Status)
	err = srv.deps.Store.UpdateAuctionStatus(c.Request.Context(), id, next)
	if errors.Is(err, auction.ErrAuctionNotFound) {
		c.Status(http.StatusNotFound)
		return
	}
	if errors.Is(err, auction.ErrInvalidStatus) {
		c.JSON(http.StatusConflict, gin.H{"message": lo.ToPtr("Invalid status transition")})
		return
	}
	if err != nil {
		srv.fail(c, err)
		return
	}
	srv.publishAuctionUpdate(id, next)
	c.Status(http.StatusNoContent)
}

func (srv *Server) postBid(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr("Invalid auction id")})
		return
	}
	var req placeBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr(err.Error())})
		return
	}

	snapshot, err := srv.svc.GetAuction(c.Request.Context(), id)
	if errors.Is(err, auction.ErrAuctionNotFound) {
		c.Status(http.StatusNotFound)
		return
	}
	if err != nil {
		srv.fail(c, err)
		return
	}

	claims := currentClaims(c)
	bid, err := srv.svc.PlaceBid(c.Request.Context(), snapshot, claims.UserID(), req.Amount)
	switch {
	case err == nil:
	case errors.Is(err, auction.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"code": "unauthenticated", "message": lo.ToPtr("Sign in to place a bid")})
		return
	case errors.Is(err, auction.ErrAuctionNotActive):
		c.JSON(http.StatusGone, gin.H{"code": "auction_not_active", "message": lo.ToPtr("Auction is not accepting bids")})
		return
	case errors.Is(err, auction.ErrBidTooLow):
		c.JSON(http.StatusBadRequest, gin.H{"code": "bid_too_low", "message": lo.ToPtr("Bid must be higher than the current price")})
		return
	case errors.Is(err, auction.ErrBelowMinimumIncrement):
		c.JSON(http.StatusBadRequest, gin.H{"code": "below_minimum_increment", "message": lo.ToPtr("Bid must meet the minimum increment")})
		return
	case errors.Is(err, auction.ErrBidRejected):
		c.JSON(http.StatusConflict, gin.H{"code": "bid_rejected", "message": lo.ToPtr("Bid was rejected by the latest auction state")})
		return
	case errors.Is(err, auction.ErrAuctionNotFound):
		c.Status(http.StatusNotFound)
		return
	default:
		srv.fail(c, err)
		return
	}

	srv.svc.PublishBidUpdate(bid)
	c.JSON(http.StatusCreated, toBidResponse(*bid))
}

func (srv *Server) postCheckout(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr("Invalid auction id")})
		return
	}
	var req struct {
		Method string `json:"method" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr(err.Error())})
		return
	}
	method := models.PaymentMethod(req.Method)
	if method != models.PaymentCreditCard && method != models.PaymentBankTransfer {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr("Unsupported payment method")})
		return
	}

	claims := currentClaims(c)
	payment, err := srv.deps.Store.CreateCheckout(c.Request.Context(), claims.UserID(), id, method)
	switch {
	case err == nil:
	case errors.Is(err, auction.ErrAuctionNotFound):
		c.Status(http.StatusNotFound)
		return
	case errors.Is(err, store.ErrNotWinner):
		c.JSON(http.StatusForbidden, gin.H{"message": lo.ToPtr("Only the winning bidder can check out")})
		return
	case errors.Is(err, store.ErrAlreadyPaid):
		c.JSON(http.StatusConflict, gin.H{"message": lo.ToPtr("Auction has already been paid")})
		return
	case errors.Is(err, auction.ErrInvalidStatus):
		c.JSON(http.StatusConflict, gin.H{"message": lo.ToPtr("Auction is not ready for checkout")})
		return
	default:
		srv.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":            payment.ID.String(),
		"auctionId":     payment.AuctionID.String(),
		"amount":        payment.Amount,
		"feeAmount":     payment.FeeAmount,
		"status":        string(payment.Status),
		"method":        string(payment.Method),
		"transactionId": payment.TransactionID,
	})
}

func (srv *Server) publishAuctionUpdate(id uuid.UUID, status models.AuctionStatus) {
	if srv.deps.Bus == nil {
		return
	}
	err := srv.deps.Bus.Send(eventbus.TopicAuctionUpdate, eventbus.AuctionUpdate{
		AuctionID: id,
		Status:    string(status),
	})
	if err != nil {
		srv.logger.Warn("Fail to publish auction_update event",
			slog.String("auctionId", id.String()), slog.Any("error", err))
	}
}
