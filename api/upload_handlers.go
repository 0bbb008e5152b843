package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"towbid/adapters/s3"
	"towbid/adapters/store"
	"towbid/models"
)

// maxImageSize 限制單張圖片的大小
const maxImageSize = 5 << 20

type createVehicleRequest struct {
	VIN            string     `json:"vin" binding:"required"`
	Make           string     `json:"make" binding:"required"`
	Model          string     `json:"model" binding:"required"`
	Year           int        `json:"year" binding:"required"`
	Color          string     `json:"color"`
	Mileage        int64      `json:"mileage"`
	Condition      string     `json:"condition"`
	Description    string     `json:"description"`
	Images         []string   `json:"images"`
	City           string     `json:"city"`
	State          string     `json:"state"`
	Zip            string     `json:"zip"`
	TowDate        *time.Time `json:"towDate"`
	LotNumber      string     `json:"lotNumber"`
	EstimatedValue int64      `json:"estimatedValue"`
}

func (srv *Server) postVehicle(c *gin.Context) {
	claims := currentClaims(c)
	if claims.Role != models.RoleSeller && claims.Role != models.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"message": lo.ToPtr("Seller role required")})
		return
	}

	var req createVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr(err.Error())})
		return
	}
	vehicle := models.Vehicle{
		VIN:            req.VIN,
		Make:           req.Make,
		ModelName:      req.Model,
		Year:           req.Year,
		Color:          req.Color,
		Mileage:        req.Mileage,
		Condition:      req.Condition,
		Description:    req.Description,
		Images:         req.Images,
		City:           req.City,
		State:          req.State,
		Zip:            req.Zip,
		LotNumber:      req.LotNumber,
		EstimatedValue: req.EstimatedValue,
	}
	if req.TowDate != nil {
		vehicle.TowDate = *req.TowDate
	}
	if err := srv.deps.Store.CreateVehicle(c.Request.Context(), &vehicle); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr(err.Error())})
		return
	}
	c.Header("Location", "/api/vehicles/"+vehicle.ID.String())
	c.JSON(http.StatusCreated, vehicle)
}

func (srv *Server) getVehicle(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr("Invalid vehicle id")})
		return
	}
	vehicle, err := srv.deps.Store.GetVehicle(c.Request.Context(), id)
	if errors.Is(err, store.ErrVehicleNotFound) {
		c.Status(http.StatusNotFound)
		return
	}
	if err != nil {
		srv.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, vehicle)
}

// readLimitedBody 讀取請求本體並限制大小，超過限制時回傳限制錯誤
func readLimitedBody(c *gin.Context, limit int64) ([]byte, error) {
	body := s3.NewMaxSizeReader(c.Request.Body, limit)
	return io.ReadAll(body)
}

func (srv *Server) postImage(c *gin.Context) {
	if srv.deps.Uploader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": lo.ToPtr("Image upload is not configured")})
		return
	}
	claims := currentClaims(c)
	userID := claims.UserID()

	// 上傳頻率限制
	if srv.config.ImageRateLimitPerHour > 0 {
		count, err := srv.deps.Store.CountImagesSince(c.Request.Context(), userID, time.Now().Add(-time.Hour))
		if err != nil {
			srv.fail(c, err)
			return
		}
		if count >= srv.config.ImageRateLimitPerHour {
			c.Status(http.StatusTooManyRequests)
			return
		}
	}

	file, err := readLimitedBody(c, maxImageSize)
	var limitErr *s3.ReachLimitError
	if errors.As(err, &limitErr) {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr(err.Error())})
		return
	}
	if err != nil {
		srv.fail(c, err)
		return
	}

	mimeType := http.DetectContentType(file)
	secure, _ := s3.CheckSecureImageAndGetExtension(mimeType)
	if !secure {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr(fmt.Sprintf("Invalid image type: %s", mimeType))})
		return
	}

	url, err := srv.deps.Uploader.UploadImage(c.Request.Context(), userID, mimeType, file)
	if err != nil {
		srv.fail(c, err)
		return
	}
	if _, err := srv.deps.Store.RecordImage(c.Request.Context(), userID, url); err != nil {
		srv.fail(c, err)
		return
	}
	c.Header("Location", url)
	c.JSON(http.StatusCreated, gin.H{"url": url})
}

func (srv *Server) postVerification(c *gin.Context) {
	if srv.deps.Uploader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": lo.ToPtr("Document upload is not configured")})
		return
	}
	docType := models.DocumentType(c.DefaultQuery("type", string(models.DocumentOther)))
	switch docType {
	case models.DocumentDriversLicense, models.DocumentPassport, models.DocumentIDCard, models.DocumentOther:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr("Unknown document type")})
		return
	}

	file, err := readLimitedBody(c, maxImageSize)
	var limitErr *s3.ReachLimitError
	if errors.As(err, &limitErr) {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr(err.Error())})
		return
	}
	if err != nil {
		srv.fail(c, err)
		return
	}
	mimeType := http.DetectContentType(file)
	secure, _ := s3.CheckSecureImageAndGetExtension(mimeType)
	if !secure {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr(fmt.Sprintf("Invalid document type: %s", mimeType))})
		return
	}

	claims := currentClaims(c)
	url, err := srv.deps.Uploader.UploadDocument(c.Request.Context(), claims.UserID(), mimeType, file)
	if err != nil {
		srv.fail(c, err)
		return
	}
	doc, err := srv.deps.Store.SubmitVerification(c.Request.Context(), claims.UserID(), docType, url)
	if err != nil {
		srv.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":     doc.ID.String(),
		"type":   string(doc.Type),
		"status": string(doc.Status),
	})
}

func (srv *Server) getPendingVerifications(c *gin.Context) {
	docs, err := srv.deps.Store.ListPendingVerifications(c.Request.Context())
	if err != nil {
		srv.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(docs),
		"items": docs,
	})
}

func (srv *Server) postVerificationReview(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr("Invalid verification id")})
		return
	}
	var req struct {
		Approve bool   `json:"approve"`
		Notes   string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr(err.Error())})
		return
	}

	claims := currentClaims(c)
	err = srv.deps.Store.ReviewVerification(c.Request.Context(), id, claims.UserID(), req.Approve, req.Notes)
	if errors.Is(err, store.ErrVerificationNotFound) {
		c.Status(http.StatusNotFound)
		return
	}
	if errors.Is(err, store.ErrVerificationReviewed) {
		c.JSON(http.StatusConflict, gin.H{"message": lo.ToPtr("Document has already been reviewed")})
		return
	}
	if err != nil {
		srv.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
