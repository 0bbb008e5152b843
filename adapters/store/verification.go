package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"towbid/models"
)

var (
	// ErrVerificationNotFound 表示找不到驗證文件
	ErrVerificationNotFound = errors.New("verification document not found")
	// ErrVerificationReviewed 表示文件已經審核過，不能重複審核
	ErrVerificationReviewed = errors.New("verification document already reviewed")
)

// SubmitVerification 建立一筆待審核的身分驗證文件
func (s *Store) SubmitVerification(ctx context.Context, userID uuid.UUID, docType models.DocumentType, documentURL string) (*models.VerificationDocument, error) {
	const op = "Store.SubmitVerification"
	if documentURL == "" {
		return nil, errors.New("document url cannot be empty")
	}

	doc := models.VerificationDocument{
		UserID:      userID,
		Type:        docType,
		Status:      models.VerificationPending,
		DocumentURL: documentURL,
	}
	if result := s.db.WithContext(ctx).Create(&doc); result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to create verification document, err=%w", op, result.Error)
	}
	return &doc, nil
}

// ReviewVerification 審核一筆驗證文件。
// 核准時把使用者標為已驗證；無論結果如何都通知提交者。
func (s *Store) ReviewVerification(ctx context.Context, documentID, reviewerID uuid.UUID, approve bool, notes string) error {
	const op = "Store.ReviewVerification"

	var reviewNote *models.Notification
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc models.VerificationDocument
		if result := tx.First(&doc, "id = ?", documentID); result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return ErrVerificationNotFound
			}
			return fmt.Errorf("[%s] Fail to find verification document, err=%w", op, result.Error)
		}
		if doc.Status != models.VerificationPending {
			return ErrVerificationReviewed
		}

		status := models.VerificationRejected
		if approve {
			status = models.VerificationApproved
		}
		now := time.Now()
		updates := map[string]any{
			"status":      status,
			"notes":       notes,
			"reviewed_by": reviewerID,
			"reviewed_at": now,
		}
		if result := tx.Model(&doc).Updates(updates); result.Error != nil {
			return fmt.Errorf("[%s] Fail to update verification document, err=%w", op, result.Error)
		}

		if approve {
			if result := tx.Model(&models.User{}).
				Where("id = ?", doc.UserID).
				Update("is_verified", true); result.Error != nil {
				return fmt.Errorf("[%s] Fail to mark user verified, err=%w", op, result.Error)
			}
		}

		title := "Identity verification rejected"
		message := "Your verification document was rejected."
		if approve {
			title = "Identity verification approved"
			message = "Your identity has been verified. You can now bid on auctions."
		}
		if notes != "" {
			message = fmt.Sprintf("%s Reviewer notes: %s", message, notes)
		}
		notification := models.Notification{
			UserID:    doc.UserID,
			Type:      models.NotificationSystem,
			Title:     title,
			Message:   message,
			RelatedID: &doc.ID,
		}
		if result := tx.Create(&notification); result.Error != nil {
			return fmt.Errorf("[%s] Fail to create review notification, err=%w", op, result.Error)
		}
		reviewNote = &notification

		s.logger.Info("verification reviewed",
			slog.String("documentId", doc.ID.String()),
			slog.Bool("approved", approve))
		return nil
	})
	if err != nil {
		return err
	}
	s.notify(reviewNote)
	return nil
}

// ListPendingVerifications 列出待審核的驗證文件，舊到新排序
func (s *Store) ListPendingVerifications(ctx context.Context) ([]models.VerificationDocument, error) {
	const op = "Store.ListPendingVerifications"
	var docs []models.VerificationDocument
	result := s.db.WithContext(ctx).
		Where("status = ?", models.VerificationPending).
		Order("created_at ASC").
		Find(&docs)
	if result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to list pending verifications, err=%w", op, result.Error)
	}
	return docs, nil
}
