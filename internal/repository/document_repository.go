package repository

import (
	"context"
	"errors"

	"iep-rag-go/internal/apperr"
	"iep-rag-go/internal/model"

	"gorm.io/gorm"
)

// DocumentRepository 定义了对 documents 表的数据操作接口。
type DocumentRepository interface {
	Create(ctx context.Context, doc *model.Document) error
	FindByID(ctx context.Context, id string) (*model.Document, error)
	List(ctx context.Context) ([]model.Document, error)
	// TryMarkProcessing 仅当文档当前不处于 processing 时将其置为 processing，返回是否成功。
	TryMarkProcessing(ctx context.Context, id string) (bool, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkReady(ctx context.Context, id string, chunkCount int) error
	MarkFailed(ctx context.Context, id string, message string) error
	Delete(ctx context.Context, id string) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Create 创建文档记录。
func (r *documentRepository) Create(ctx context.Context, doc *model.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

// FindByID 根据 ID 查找文档，不存在时返回 apperr.ErrNotFound。
func (r *documentRepository) FindByID(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// List 返回所有文档，最新的在前。
func (r *documentRepository) List(ctx context.Context) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.WithContext(ctx).Order("created_at desc").Find(&docs).Error
	return docs, err
}

func (r *documentRepository) TryMarkProcessing(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ? AND status <> ?", id, model.DocumentProcessing).
		Updates(map[string]interface{}{
			"status":        model.DocumentProcessing,
			"error_message": "",
		})
	return res.RowsAffected == 1, res.Error
}

// MarkProcessing 将文档置为 processing 并清空上次的错误信息。
func (r *documentRepository) MarkProcessing(ctx context.Context, id string) error {
	return r.updateStatus(ctx, id, map[string]interface{}{
		"status":        model.DocumentProcessing,
		"error_message": "",
	})
}

// MarkReady 将文档置为 ready 并记录分块数量。
func (r *documentRepository) MarkReady(ctx context.Context, id string, chunkCount int) error {
	return r.updateStatus(ctx, id, map[string]interface{}{
		"status":        model.DocumentReady,
		"chunk_count":   chunkCount,
		"error_message": "",
	})
}

// MarkFailed 将文档置为 failed 并记录失败原因。
func (r *documentRepository) MarkFailed(ctx context.Context, id string, message string) error {
	return r.updateStatus(ctx, id, map[string]interface{}{
		"status":        model.DocumentFailed,
		"chunk_count":   0,
		"error_message": message,
	})
}

// Delete 删除文档记录，不存在时返回 apperr.ErrNotFound。
func (r *documentRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Document{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// updates 使用 map，保证零值字段（如 chunk_count=0、空错误信息）也被写入。
func (r *documentRepository) updateStatus(ctx context.Context, id string, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	// MySQL 对值未变化的行返回 0，需要再确认记录是否存在
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
