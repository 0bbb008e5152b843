package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"towbid/models"
)

// ErrVehicleNotFound 表示找不到車輛
var ErrVehicleNotFound = errors.New("vehicle not found")

// CreateVehicle 建立一筆車輛資料
func (s *Store) CreateVehicle(ctx context.Context, v *models.Vehicle) error {
	const op = "Store.CreateVehicle"
	if v.VIN == "" || v.Make == "" || v.ModelName == "" {
		return errors.New("vin, make and model are required")
	}
	v.Description = s.sanitizer.Sanitize(v.Description)
	if result := s.db.WithContext(ctx).Create(v); result.Error != nil {
		return fmt.Errorf("[%s] Fail to create vehicle, err=%w", op, result.Error)
	}
	return nil
}

// GetVehicle 取得單一車輛
func (s *Store) GetVehicle(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
	const op = "Store.GetVehicle"
	var v models.Vehicle
	result := s.db.WithContext(ctx).First(&v, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrVehicleNotFound
		}
		return nil, fmt.Errorf("[%s] Fail to find vehicle, err=%w", op, result.Error)
	}
	return &v, nil
}
