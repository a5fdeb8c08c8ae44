package model

import "time"

// DocumentStatus 是文档在导入流程中的生命周期状态。
type DocumentStatus string

const (
	DocumentProcessing DocumentStatus = "processing"
	DocumentReady      DocumentStatus = "ready"
	DocumentFailed     DocumentStatus = "failed"
)

// Document 对应于 documents 表，记录上传文件及其导入状态。
type Document struct {
	ID           string         `gorm:"primaryKey;type:varchar(36)"`
	FileName     string         `gorm:"type:varchar(255);not null"`
	ContentType  string         `gorm:"type:varchar(128)"`
	ObjectName   string         `gorm:"type:varchar(512)"`
	Size         int64          `gorm:"not null;default:0"`
	Status       DocumentStatus `gorm:"type:varchar(16);not null;index"`
	ChunkCount   int            `gorm:"not null;default:0"`
	ErrorMessage string         `gorm:"type:text"`
	CreatedAt    time.Time      `gorm:"autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}

// DocumentDTO 是返回给前端的文档结构。
type DocumentDTO struct {
	ID           string         `json:"id"`
	FileName     string         `json:"fileName"`
	ContentType  string         `json:"contentType"`
	Size         int64          `json:"size"`
	Status       DocumentStatus `json:"status"`
	ChunkCount   int            `json:"chunkCount"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	CreatedAt    LocalTime      `json:"createdAt"`
	UpdatedAt    LocalTime      `json:"updatedAt"`
}

// ToDTO 将数据库模型转换为对外的 DTO。
func (d *Document) ToDTO() DocumentDTO {
	return DocumentDTO{
		ID:           d.ID,
		FileName:     d.FileName,
		ContentType:  d.ContentType,
		Size:         d.Size,
		Status:       d.Status,
		ChunkCount:   d.ChunkCount,
		ErrorMessage: d.ErrorMessage,
		CreatedAt:    LocalTime(d.CreatedAt),
		UpdatedAt:    LocalTime(d.UpdatedAt),
	}
}
