// Package model 定义了检索子系统的数据结构与数据库表模型。
package model

import (
	"time"

	"gorm.io/datatypes"
)

// Chunk 是源文本中的一段连续文本，由分块器在内存中创建，创建后不再修改。
// Start 和 End 是该块在去除首尾空白后的全文中的 rune 偏移 [Start, End)。
type Chunk struct {
	Content string `json:"content"`
	Index   int    `json:"index"`
	Start   int    `json:"-"`
	End     int    `json:"-"`
}

// ChunkInput 是写入向量存储的一条分块记录。
type ChunkInput struct {
	Content    string                 `json:"content"`
	Embedding  []float32              `json:"embedding"`
	ChunkIndex int                    `json:"chunkIndex"`
	PageStart  *int                   `json:"pageStart,omitempty"`
	PageEnd    *int                   `json:"pageEnd,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// EmbeddedChunk 对应于数据库中的 document_chunks 表。
// 每条记录创建后不再修改，随所属文档按 DocumentID 批量删除。
type EmbeddedChunk struct {
	ID           uint                         `gorm:"primaryKey;autoIncrement" json:"-"`
	DocumentID   string                       `gorm:"type:varchar(36);not null;index" json:"documentId"`
	ChunkIndex   int                          `gorm:"not null" json:"chunkIndex"`
	Content      string                       `gorm:"type:text;not null" json:"content"`
	Embedding    datatypes.JSONSlice[float32] `gorm:"not null" json:"embedding"`
	PageStart    *int                         `json:"pageStart,omitempty"`
	PageEnd      *int                         `json:"pageEnd,omitempty"`
	Metadata     datatypes.JSONMap            `json:"metadata,omitempty"`
	ModelVersion string                       `gorm:"type:varchar(64)" json:"modelVersion"`
	CreatedAt    time.Time                    `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (EmbeddedChunk) TableName() string {
	return "document_chunks"
}

// ScoredChunk 是一次检索的只读投影，不持久化。
type ScoredChunk struct {
	Content    string  `json:"content"`
	DocumentID string  `json:"documentId"`
	ChunkIndex int     `json:"chunkIndex"`
	Score      float64 `json:"score"`
	PageStart  *int    `json:"pageStart,omitempty"`
	PageEnd    *int    `json:"pageEnd,omitempty"`
}
