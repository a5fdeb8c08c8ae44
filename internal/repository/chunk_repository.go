// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"

	"iep-rag-go/internal/model"

	"gorm.io/gorm"
)

// ChunkRepository 定义了对已向量化分块的持久化操作。
// 查询结果按写入顺序返回。
type ChunkRepository interface {
	BatchCreate(ctx context.Context, chunks []*model.EmbeddedChunk) error
	// FindByDocumentID 返回某文档的全部分块；documentID 为空时返回所有分块。
	FindByDocumentID(ctx context.Context, documentID string) ([]*model.EmbeddedChunk, error)
	DeleteByDocumentID(ctx context.Context, documentID string) (int64, error)
	CountByDocumentID(ctx context.Context, documentID string) (int64, error)
}

type chunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository 创建一个基于 gorm 的 ChunkRepository。
func NewChunkRepository(db *gorm.DB) ChunkRepository {
	return &chunkRepository{db: db}
}

// BatchCreate 批量创建分块记录。
func (r *chunkRepository) BatchCreate(ctx context.Context, chunks []*model.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(chunks, 100).Error // 每100条记录一批
}

// FindByDocumentID 根据文档 ID 查找分块，按主键升序即写入顺序。
func (r *chunkRepository) FindByDocumentID(ctx context.Context, documentID string) ([]*model.EmbeddedChunk, error) {
	var chunks []*model.EmbeddedChunk
	q := r.db.WithContext(ctx).Order("id asc")
	if documentID != "" {
		q = q.Where("document_id = ?", documentID)
	}
	err := q.Find(&chunks).Error
	return chunks, err
}

// DeleteByDocumentID 删除文档的所有分块，返回删除的条数。
func (r *chunkRepository) DeleteByDocumentID(ctx context.Context, documentID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&model.EmbeddedChunk{})
	return res.RowsAffected, res.Error
}

// CountByDocumentID 统计文档的分块数量。
func (r *chunkRepository) CountByDocumentID(ctx context.Context, documentID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.EmbeddedChunk{}).Where("document_id = ?", documentID).Count(&n).Error
	return n, err
}
