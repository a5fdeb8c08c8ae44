// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"iep-rag-go/internal/apperr"
	"iep-rag-go/internal/model"
	"iep-rag-go/internal/repository"
	"iep-rag-go/internal/vectorstore"
	"iep-rag-go/pkg/extract"
	"iep-rag-go/pkg/log"
	"iep-rag-go/pkg/storage"
	"iep-rag-go/pkg/tasks"

	"github.com/google/uuid"
)

// TaskQueue 是导入任务的投递接口，由 kafka.Producer 实现。
type TaskQueue interface {
	Enqueue(ctx context.Context, task tasks.IngestTask) error
}

// DocumentService 接口定义了文档管理相关的业务操作。
type DocumentService interface {
	Upload(ctx context.Context, fileName string, data []byte) (*model.Document, error)
	List(ctx context.Context) ([]model.DocumentDTO, error)
	Get(ctx context.Context, id string) (*model.Document, error)
	// Delete 删除文档的分块、原件和记录，返回删除的分块数。
	Delete(ctx context.Context, id string) (int, error)
	// Reingest 重新投递导入任务。文档正在处理时返回 apperr.ErrConflict。
	Reingest(ctx context.Context, id string) (*model.Document, error)
}

type documentService struct {
	docs    repository.DocumentRepository
	objects storage.ObjectStore
	store   vectorstore.Store
	queue   TaskQueue
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(docs repository.DocumentRepository, objects storage.ObjectStore, store vectorstore.Store, queue TaskQueue) DocumentService {
	return &documentService{docs: docs, objects: objects, store: store, queue: queue}
}

func (s *documentService) Upload(ctx context.Context, fileName string, data []byte) (*model.Document, error) {
	fileName = filepath.Base(strings.TrimSpace(fileName))
	if fileName == "" || fileName == "." || fileName == string(filepath.Separator) {
		return nil, apperr.InvalidInput("fileName is required")
	}
	if len(data) == 0 {
		return nil, apperr.InvalidInput("file %q is empty", fileName)
	}

	doc := &model.Document{
		ID:          uuid.NewString(),
		FileName:    fileName,
		ContentType: extract.DetectContentType(data),
		Size:        int64(len(data)),
		Status:      model.DocumentProcessing,
	}
	doc.ObjectName = fmt.Sprintf("documents/%s/%s", doc.ID, fileName)

	log.Infof("[DocumentService] 上传文件, DocumentID: %s, FileName: %s, ContentType: %s, Size: %d", doc.ID, fileName, doc.ContentType, doc.Size)
	if err := s.objects.Put(ctx, doc.ObjectName, data, doc.ContentType); err != nil {
		return nil, err
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("创建文档记录失败: %w", err)
	}
	if err := s.enqueue(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *documentService) List(ctx context.Context) ([]model.DocumentDTO, error) {
	docs, err := s.docs.List(ctx)
	if err != nil {
		return nil, err
	}
	dtos := make([]model.DocumentDTO, 0, len(docs))
	for i := range docs {
		dtos = append(dtos, docs[i].ToDTO())
	}
	return dtos, nil
}

func (s *documentService) Get(ctx context.Context, id string) (*model.Document, error) {
	return s.docs.FindByID(ctx, id)
}

func (s *documentService) Delete(ctx context.Context, id string) (int, error) {
	doc, err := s.docs.FindByID(ctx, id)
	if err != nil {
		return 0, err
	}

	deleted, err := s.store.DeleteChunks(ctx, doc.ID)
	if err != nil {
		return 0, err
	}
	if doc.ObjectName != "" {
		if err := s.objects.Remove(ctx, doc.ObjectName); err != nil {
			log.Warnf("[DocumentService] 删除文件原件失败, Object: %s, Error: %v", doc.ObjectName, err)
		}
	}
	if err := s.docs.Delete(ctx, doc.ID); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return deleted, err
	}
	log.Infof("[DocumentService] 文档已删除, DocumentID: %s, 分块数: %d", doc.ID, deleted)
	return deleted, nil
}

func (s *documentService) Reingest(ctx context.Context, id string) (*model.Document, error) {
	ok, err := s.docs.TryMarkProcessing(ctx, id)
	if err != nil {
		return nil, err
	}
	doc, err := s.docs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: document %s is already processing", apperr.ErrConflict, id)
	}
	if err := s.enqueue(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// enqueue 投递失败时将文档置为 failed，避免文档永久停留在 processing。
func (s *documentService) enqueue(ctx context.Context, doc *model.Document) error {
	task := tasks.IngestTask{DocumentID: doc.ID, ObjectName: doc.ObjectName, FileName: doc.FileName}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		log.Errorf("[DocumentService] 投递导入任务失败, DocumentID: %s, Error: %v", doc.ID, err)
		_ = s.docs.MarkFailed(context.WithoutCancel(ctx), doc.ID, "enqueue failed: "+err.Error())
		return fmt.Errorf("投递导入任务失败: %w", err)
	}
	return nil
}
