// Package vectorstore 负责分块向量的存储与相似度检索。
// 调用方只依赖 Store 接口，全量扫描可以在不影响调用方的前提下替换为近似索引。
package vectorstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"iep-rag-go/internal/apperr"
	"iep-rag-go/internal/model"
	"iep-rag-go/internal/repository"
	"iep-rag-go/pkg/log"
)

// DefaultSearchLimit 是 limit 非正数时使用的默认返回条数。
const DefaultSearchLimit = 10

// Filter 限定检索的候选集合。零值表示检索全部分块。
type Filter struct {
	DocumentID string
}

// Store 是分块向量存储与检索的统一接口。
type Store interface {
	// StoreChunks 为每个分块写入一条记录，重复调用会产生重复记录。
	StoreChunks(ctx context.Context, documentID string, chunks []model.ChunkInput) (int, error)
	// SearchSimilar 按余弦相似度降序返回至多 limit 个分块，分数相同时保持写入顺序。
	SearchSimilar(ctx context.Context, query []float32, limit int, filter Filter) ([]model.ScoredChunk, error)
	// DeleteChunks 删除文档的全部分块，没有可删除的分块时返回 0。
	DeleteChunks(ctx context.Context, documentID string) (int, error)
}

// Options 是 Store 的构造参数。
type Options struct {
	// Timeout 限制单次持久化调用的耗时，0 表示不限制。
	Timeout time.Duration
	// ModelVersion 记录在每个写入的分块上。
	ModelVersion string
}

type bruteForceStore struct {
	repo repository.ChunkRepository
	opts Options
}

// NewStore 返回一个在进程内对全部候选分块计算相似度的 Store。
func NewStore(repo repository.ChunkRepository, opts Options) Store {
	return &bruteForceStore{repo: repo, opts: opts}
}

func (s *bruteForceStore) StoreChunks(ctx context.Context, documentID string, chunks []model.ChunkInput) (int, error) {
	if err := validateChunks(documentID, chunks); err != nil {
		return 0, err
	}

	records := make([]*model.EmbeddedChunk, 0, len(chunks))
	for _, c := range chunks {
		records = append(records, &model.EmbeddedChunk{
			DocumentID:   documentID,
			ChunkIndex:   c.ChunkIndex,
			Content:      c.Content,
			Embedding:    c.Embedding,
			PageStart:    c.PageStart,
			PageEnd:      c.PageEnd,
			Metadata:     c.Metadata,
			ModelVersion: s.opts.ModelVersion,
		})
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.repo.BatchCreate(ctx, records); err != nil {
		return 0, apperr.Store("store chunks", err)
	}
	log.Infof("[VectorStore] 写入 %d 个分块, documentID: %s", len(records), documentID)
	return len(records), nil
}

func (s *bruteForceStore) SearchSimilar(ctx context.Context, query []float32, limit int, filter Filter) ([]model.ScoredChunk, error) {
	if len(query) == 0 {
		return nil, apperr.InvalidInput("query embedding is empty")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	candidates, err := s.repo.FindByDocumentID(ctx, filter.DocumentID)
	if err != nil {
		return nil, apperr.Store("load candidates", err)
	}

	results := make([]model.ScoredChunk, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, model.ScoredChunk{
			Content:    c.Content,
			DocumentID: c.DocumentID,
			ChunkIndex: c.ChunkIndex,
			Score:      CosineSimilarity(query, c.Embedding),
			PageStart:  c.PageStart,
			PageEnd:    c.PageEnd,
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if len(results) > limit {
		results = results[:limit]
	}
	log.Debugf("[VectorStore] 检索完成, 候选: %d, 返回: %d, documentID: %q", len(candidates), len(results), filter.DocumentID)
	return results, nil
}

func (s *bruteForceStore) DeleteChunks(ctx context.Context, documentID string) (int, error) {
	if strings.TrimSpace(documentID) == "" {
		return 0, apperr.InvalidInput("documentId is required")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	n, err := s.repo.DeleteByDocumentID(ctx, documentID)
	if err != nil {
		return 0, apperr.Store("delete chunks", err)
	}
	return int(n), nil
}

func (s *bruteForceStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opts.Timeout)
}

// validateChunks 校验所有 Store 实现共享的写入约束。
func validateChunks(documentID string, chunks []model.ChunkInput) error {
	if strings.TrimSpace(documentID) == "" {
		return apperr.InvalidInput("documentId is required")
	}
	if len(chunks) == 0 {
		return apperr.InvalidInput("no chunks to store")
	}
	dim := len(chunks[0].Embedding)
	for i, c := range chunks {
		if strings.TrimSpace(c.Content) == "" {
			return apperr.InvalidInput("chunk %d has empty content", i)
		}
		if len(c.Embedding) == 0 {
			return apperr.InvalidInput("chunk %d has empty embedding", i)
		}
		if len(c.Embedding) != dim {
			return apperr.InvalidInput("chunk %d embedding length %d differs from %d", i, len(c.Embedding), dim)
		}
	}
	return nil
}
