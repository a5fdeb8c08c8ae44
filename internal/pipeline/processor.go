// Package pipeline 定义了文档导入的核心流程：提取、分块、向量化、写入。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"iep-rag-go/internal/apperr"
	"iep-rag-go/internal/chunker"
	"iep-rag-go/internal/config"
	"iep-rag-go/internal/model"
	"iep-rag-go/internal/repository"
	"iep-rag-go/internal/vectorstore"
	"iep-rag-go/pkg/embedding"
	"iep-rag-go/pkg/extract"
	"iep-rag-go/pkg/log"
	"iep-rag-go/pkg/storage"
	"iep-rag-go/pkg/tasks"
)

// pageSeparator 用于拼接多页文本。
const pageSeparator = "\n"

// ErrNoTextContent 表示文档中没有可分块的文本。
var ErrNoTextContent = errors.New("no text content")

// Processor 封装了文档导入的所有依赖和逻辑。
type Processor struct {
	docs      repository.DocumentRepository
	objects   storage.ObjectStore
	extractor extract.Extractor
	embedder  embedding.Client
	store     vectorstore.Store
	cfg       config.RAGConfig
}

// NewProcessor 创建一个新的 Processor 实例。objects 与 extractor 只有 Process 会用到。
func NewProcessor(
	docs repository.DocumentRepository,
	objects storage.ObjectStore,
	extractor extract.Extractor,
	embedder embedding.Client,
	store vectorstore.Store,
	cfg config.RAGConfig,
) *Processor {
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = config.DefaultRAGConfig().EmbedBatchSize
	}
	return &Processor{
		docs:      docs,
		objects:   objects,
		extractor: extractor,
		embedder:  embedder,
		store:     store,
		cfg:       cfg,
	}
}

// Process 从对象存储下载文件并完成导入。
// 任一步骤失败时文档被置为 failed，已写入的分块会被删除。
func (p *Processor) Process(ctx context.Context, task tasks.IngestTask) error {
	log.Infof("[Processor] 开始处理文档, DocumentID: %s, FileName: %s", task.DocumentID, task.FileName)

	doc, err := p.begin(ctx, task.DocumentID)
	if err != nil {
		return err
	}

	objectName := task.ObjectName
	if objectName == "" {
		objectName = doc.ObjectName
	}
	log.Infof("[Processor] 步骤1: 从对象存储下载文件, Object: %s", objectName)
	data, err := p.objects.Get(ctx, objectName)
	if err != nil {
		return p.fail(ctx, doc.ID, fmt.Errorf("下载文件失败: %w", err))
	}
	log.Infof("[Processor] 步骤1: 文件下载成功, 大小: %d 字节", len(data))

	log.Info("[Processor] 步骤2: 提取文本")
	pages, err := p.extractor.ExtractPages(ctx, data, doc.FileName)
	if err != nil {
		return p.fail(ctx, doc.ID, fmt.Errorf("提取文本失败: %w", err))
	}

	_, err = p.ingest(ctx, doc, pages)
	return err
}

// IngestText 对已提取好的分页文本执行导入，返回写入的分块数。
func (p *Processor) IngestText(ctx context.Context, documentID string, pages []string) (int, error) {
	doc, err := p.begin(ctx, documentID)
	if err != nil {
		return 0, err
	}
	return p.ingest(ctx, doc, pages)
}

func (p *Processor) begin(ctx context.Context, documentID string) (*model.Document, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, apperr.InvalidInput("documentId is required")
	}
	doc, err := p.docs.FindByID(ctx, documentID)
	if err != nil {
		log.Errorf("[Processor] 加载文档记录失败, DocumentID: %s, Error: %v", documentID, err)
		return nil, err
	}
	if err := p.docs.MarkProcessing(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("更新文档状态失败: %w", err)
	}
	return doc, nil
}

func (p *Processor) ingest(ctx context.Context, doc *model.Document, pages []string) (int, error) {
	text, pageStarts := joinPages(pages)
	lead := utf8.RuneCountInString(text) - utf8.RuneCountInString(strings.TrimLeftFunc(text, unicode.IsSpace))

	log.Infof("[Processor] 步骤3: 文本分块, chunkSize: %d, chunkOverlap: %d", p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	chunks := chunker.ChunkText(text, chunker.WithChunkSize(p.cfg.ChunkSize), chunker.WithOverlap(p.cfg.ChunkOverlap))
	log.Infof("[Processor] 步骤3: 分块完成, 共 %d 个分块, %d 页", len(chunks), len(pages))
	if len(chunks) == 0 {
		return 0, p.fail(ctx, doc.ID, ErrNoTextContent)
	}

	log.Infof("[Processor] 步骤4: 分批向量化, batchSize: %d", p.cfg.EmbedBatchSize)
	inputs := make([]model.ChunkInput, 0, len(chunks))
	for start := 0; start < len(chunks); start += p.cfg.EmbedBatchSize {
		end := start + p.cfg.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		vectors, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, p.fail(ctx, doc.ID, fmt.Errorf("分块 %d-%d 向量化失败: %w", start, end-1, err))
		}
		if len(vectors) != len(batch) {
			return 0, p.fail(ctx, doc.ID, &apperr.EmbeddingServiceError{
				Message: fmt.Sprintf("expected %d embeddings, got %d", len(batch), len(vectors)),
			})
		}

		for i, c := range batch {
			pageStart := pageOf(pageStarts, lead+c.Start)
			pageEnd := pageOf(pageStarts, lead+c.End-1)
			inputs = append(inputs, model.ChunkInput{
				Content:    c.Content,
				Embedding:  vectors[i],
				ChunkIndex: c.Index,
				PageStart:  &pageStart,
				PageEnd:    &pageEnd,
				Metadata: map[string]interface{}{
					"fileName":  doc.FileName,
					"charStart": lead + c.Start,
					"charEnd":   lead + c.End,
				},
			})
		}
		log.Infof("[Processor] 步骤4: 已向量化 %d/%d 个分块", end, len(chunks))
	}

	log.Info("[Processor] 步骤5: 写入向量存储")
	// 清理上次导入遗留的分块，重新导入不会产生重复记录
	if _, err := p.store.DeleteChunks(ctx, doc.ID); err != nil {
		return 0, p.fail(ctx, doc.ID, fmt.Errorf("清理旧分块失败: %w", err))
	}
	stored, err := p.store.StoreChunks(ctx, doc.ID, inputs)
	if err != nil {
		p.cleanup(ctx, doc.ID)
		return 0, p.fail(ctx, doc.ID, fmt.Errorf("写入分块失败: %w", err))
	}

	if err := p.docs.MarkReady(ctx, doc.ID, stored); err != nil {
		p.cleanup(ctx, doc.ID)
		return 0, p.fail(ctx, doc.ID, fmt.Errorf("更新文档状态失败: %w", err))
	}
	log.Infof("[Processor] 文档导入成功, DocumentID: %s, 分块数: %d", doc.ID, stored)
	return stored, nil
}

// fail 将文档置为 failed 并原样返回 cause。
func (p *Processor) fail(ctx context.Context, documentID string, cause error) error {
	log.Errorf("[Processor] 文档导入失败, DocumentID: %s, Error: %v", documentID, cause)
	if err := p.docs.MarkFailed(context.WithoutCancel(ctx), documentID, cause.Error()); err != nil {
		log.Errorf("[Processor] 标记文档失败状态时出错, DocumentID: %s, Error: %v", documentID, err)
	}
	return cause
}

// cleanup 删除部分写入的分块，保证失败的文档不残留可检索内容。
func (p *Processor) cleanup(ctx context.Context, documentID string) {
	if n, err := p.store.DeleteChunks(context.WithoutCancel(ctx), documentID); err != nil {
		log.Errorf("[Processor] 清理分块失败, DocumentID: %s, Error: %v", documentID, err)
	} else if n > 0 {
		log.Warnf("[Processor] 已清理 %d 个部分写入的分块, DocumentID: %s", n, documentID)
	}
}

// joinPages 用 pageSeparator 拼接各页，返回拼接后的文本以及每页起始处的 rune 偏移。
func joinPages(pages []string) (string, []int) {
	var sb strings.Builder
	starts := make([]int, len(pages))
	offset := 0
	for i, page := range pages {
		if i > 0 {
			sb.WriteString(pageSeparator)
			offset += utf8.RuneCountInString(pageSeparator)
		}
		starts[i] = offset
		sb.WriteString(page)
		offset += utf8.RuneCountInString(page)
	}
	return sb.String(), starts
}

// pageOf 返回 rune 偏移 pos 所在的页码，从 1 开始。
func pageOf(pageStarts []int, pos int) int {
	page := 1
	for i, start := range pageStarts {
		if start > pos {
			break
		}
		page = i + 1
	}
	return page
}
