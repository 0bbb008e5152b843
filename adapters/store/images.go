package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"towbid/models"
)

// RecordImage 在資料庫記下一筆圖片上傳紀錄，用於上傳頻率限制
func (s *Store) RecordImage(ctx context.Context, uploaderID uuid.UUID, url string) (*models.Image, error) {
	const op = "Store.RecordImage"
	image := models.Image{
		UploaderID: uploaderID,
		URL:        url,
	}
	if result := s.db.WithContext(ctx).Create(&image); result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to create image record, err=%w", op, result.Error)
	}
	return &image, nil
}

// CountImagesSince 計算使用者在指定時間之後的上傳數量
func (s *Store) CountImagesSince(ctx context.Context, uploaderID uuid.UUID, since time.Time) (int64, error) {
	const op = "Store.CountImagesSince"
	var count int64
	result := s.db.WithContext(ctx).Model(&models.Image{}).
		Where("uploader_id = ? AND created_at > ?", uploaderID, since).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("[%s] Fail to count images, err=%w", op, result.Error)
	}
	return count, nil
}
