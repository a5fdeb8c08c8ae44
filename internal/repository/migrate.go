package repository

import (
	"iep-rag-go/internal/model"

	"gorm.io/gorm"
)

// AutoMigrate 创建或更新本服务拥有的表结构。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Document{}, &model.EmbeddedChunk{})
}
