package models

import (
	"github.com/google/uuid"
)

// newID 在建立紀錄前產生主鍵。
// 不依賴資料庫端的 uuid 函式，讓 postgres 和測試用的 sqlite 都能使用同一組模型。
func newID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
