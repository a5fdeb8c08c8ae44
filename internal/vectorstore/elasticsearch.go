package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"iep-rag-go/internal/apperr"
	"iep-rag-go/internal/model"
	"iep-rag-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// esChunk 是分块在 Elasticsearch 中的文档结构。
type esChunk struct {
	DocumentID   string                 `json:"document_id"`
	ChunkIndex   int                    `json:"chunk_index"`
	Content      string                 `json:"content"`
	Embedding    []float32              `json:"embedding,omitempty"`
	PageStart    *int                   `json:"page_start,omitempty"`
	PageEnd      *int                   `json:"page_end,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	ModelVersion string                 `json:"model_version,omitempty"`
	Seq          int64                  `json:"seq"`
	CreatedAt    time.Time              `json:"created_at"`
}

// ElasticsearchOptions 是 Elasticsearch 后端的构造参数。
type ElasticsearchOptions struct {
	Options
	Index string
	// Dimensions 是索引 mapping 中的向量维度。查询向量维度不一致时所有候选得分为 0。
	Dimensions int
}

type esStore struct {
	client *elasticsearch.Client
	opts   ElasticsearchOptions
	seq    atomic.Int64
}

// NewElasticsearchStore 返回一个基于 script_score 精确余弦的 Store。
// 索引需提前通过 es.EnsureIndex 创建。
func NewElasticsearchStore(client *elasticsearch.Client, opts ElasticsearchOptions) Store {
	s := &esStore{client: client, opts: opts}
	s.seq.Store(time.Now().UnixNano())
	return s
}

func (s *esStore) StoreChunks(ctx context.Context, documentID string, chunks []model.ChunkInput) (int, error) {
	if err := validateChunks(documentID, chunks); err != nil {
		return 0, err
	}

	var body bytes.Buffer
	now := time.Now().UTC()
	enc := json.NewEncoder(&body)
	for _, c := range chunks {
		body.WriteString(`{"index":{}}` + "\n")
		doc := esChunk{
			DocumentID:   documentID,
			ChunkIndex:   c.ChunkIndex,
			Content:      c.Content,
			Embedding:    c.Embedding,
			PageStart:    c.PageStart,
			PageEnd:      c.PageEnd,
			Metadata:     c.Metadata,
			ModelVersion: s.opts.ModelVersion,
			Seq:          s.seq.Add(1),
			CreatedAt:    now,
		}
		if err := enc.Encode(doc); err != nil {
			return 0, apperr.Store("encode chunk", err)
		}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	res, err := s.client.Bulk(
		&body,
		s.client.Bulk.WithContext(ctx),
		s.client.Bulk.WithIndex(s.opts.Index),
		s.client.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return 0, apperr.Store("bulk index", err)
	}
	defer res.Body.Close()
	if err := responseError(res); err != nil {
		return 0, apperr.Store("bulk index", err)
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return 0, apperr.Store("decode bulk response", err)
	}
	if bulkResp.Errors {
		for _, item := range bulkResp.Items {
			for _, op := range item {
				if op.Error != nil {
					return 0, apperr.Store("bulk index", fmt.Errorf("%s: %s", op.Error.Type, op.Error.Reason))
				}
			}
		}
		return 0, apperr.Store("bulk index", fmt.Errorf("bulk response reported errors"))
	}

	log.Infof("[VectorStore] 写入 Elasticsearch %d 个分块, documentID: %s", len(chunks), documentID)
	return len(chunks), nil
}

func (s *esStore) SearchSimilar(ctx context.Context, query []float32, limit int, filter Filter) ([]model.ScoredChunk, error) {
	if len(query) == 0 {
		return nil, apperr.InvalidInput("query embedding is empty")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	var candidates map[string]interface{}
	if filter.DocumentID != "" {
		candidates = map[string]interface{}{"term": map[string]interface{}{"document_id": filter.DocumentID}}
	} else {
		candidates = map[string]interface{}{"match_all": map[string]interface{}{}}
	}

	// script_score 要求分数非负，余弦值整体平移 1.0，读取时再减回。
	script := map[string]interface{}{"source": "1.0"}
	if s.opts.Dimensions <= 0 || len(query) == s.opts.Dimensions {
		script = map[string]interface{}{
			"source": "cosineSimilarity(params.query_vector, 'embedding') + 1.0",
			"params": map[string]interface{}{"query_vector": query},
		}
	}
	esQuery := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"script_score": map[string]interface{}{
				"query":  candidates,
				"script": script,
			},
		},
		"sort": []interface{}{
			map[string]interface{}{"_score": map[string]string{"order": "desc"}},
			map[string]interface{}{"seq": map[string]string{"order": "asc"}},
		},
		"_source": map[string]interface{}{"excludes": []string{"embedding"}},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, apperr.Store("encode search", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.opts.Index),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, apperr.Store("search", err)
	}
	defer res.Body.Close()
	if err := responseError(res); err != nil {
		return nil, apperr.Store("search", err)
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source esChunk `json:"_source"`
				Score  float64 `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, apperr.Store("decode search response", err)
	}

	results := make([]model.ScoredChunk, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		results = append(results, model.ScoredChunk{
			Content:    hit.Source.Content,
			DocumentID: hit.Source.DocumentID,
			ChunkIndex: hit.Source.ChunkIndex,
			Score:      hit.Score - 1.0,
			PageStart:  hit.Source.PageStart,
			PageEnd:    hit.Source.PageEnd,
		})
	}
	return results, nil
}

func (s *esStore) DeleteChunks(ctx context.Context, documentID string) (int, error) {
	if strings.TrimSpace(documentID) == "" {
		return 0, apperr.InvalidInput("documentId is required")
	}

	body := fmt.Sprintf(`{"query":{"term":{"document_id":%q}}}`, documentID)
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	refresh := true
	req := esapi.DeleteByQueryRequest{
		Index:   []string{s.opts.Index},
		Body:    strings.NewReader(body),
		Refresh: &refresh,
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return 0, apperr.Store("delete by query", err)
	}
	defer res.Body.Close()
	if err := responseError(res); err != nil {
		return 0, apperr.Store("delete by query", err)
	}

	var deleteResp struct {
		Deleted int `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&deleteResp); err != nil {
		return 0, apperr.Store("decode delete response", err)
	}
	return deleteResp.Deleted, nil
}

func (s *esStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opts.Timeout)
}

func responseError(res *esapi.Response) error {
	if !res.IsError() {
		return nil
	}
	b, _ := io.ReadAll(res.Body)
	return fmt.Errorf("elasticsearch returned %s: %s", res.Status(), strings.TrimSpace(string(b)))
}
