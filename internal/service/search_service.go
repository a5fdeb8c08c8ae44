package service

import (
	"context"
	"strings"

	"iep-rag-go/internal/apperr"
	"iep-rag-go/internal/model"
	"iep-rag-go/internal/vectorstore"
	"iep-rag-go/pkg/embedding"
	"iep-rag-go/pkg/log"
)

// SearchRequest 是一次检索请求。Query 与 Embedding 二选一，Embedding 优先。
type SearchRequest struct {
	Query      string    `json:"query"`
	Embedding  []float32 `json:"embedding"`
	Limit      int       `json:"limit"`
	DocumentID string    `json:"documentId"`
}

// SearchService 接口定义了搜索操作。
type SearchService interface {
	Search(ctx context.Context, req SearchRequest) ([]model.ScoredChunk, error)
}

type searchService struct {
	embedder     embedding.Client
	store        vectorstore.Store
	defaultLimit int
	maxLimit     int
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(embedder embedding.Client, store vectorstore.Store, defaultLimit, maxLimit int) SearchService {
	if defaultLimit <= 0 {
		defaultLimit = vectorstore.DefaultSearchLimit
	}
	if maxLimit < defaultLimit {
		maxLimit = defaultLimit
	}
	return &searchService{embedder: embedder, store: store, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

func (s *searchService) Search(ctx context.Context, req SearchRequest) ([]model.ScoredChunk, error) {
	vector := req.Embedding
	if len(vector) == 0 {
		query := strings.TrimSpace(req.Query)
		if query == "" {
			return nil, apperr.InvalidInput("query or embedding is required")
		}
		log.Infof("[SearchService] 向量化查询: '%s'", query)
		v, err := s.embedder.EmbedOne(ctx, query)
		if err != nil {
			return nil, err
		}
		vector = v
	}

	results, err := s.store.SearchSimilar(ctx, vector, s.clampLimit(req.Limit), vectorstore.Filter{DocumentID: req.DocumentID})
	if err != nil {
		return nil, err
	}
	log.Infof("[SearchService] 检索完成, 返回 %d 条结果", len(results))
	return results, nil
}

func (s *searchService) clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return s.defaultLimit
	case limit > s.maxLimit:
		return s.maxLimit
	default:
		return limit
	}
}
