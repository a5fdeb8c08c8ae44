package service

import (
	"context"
	"fmt"
	"strings"

	"iep-rag-go/internal/model"
	"iep-rag-go/internal/vectorstore"
	"iep-rag-go/pkg/embedding"
	"iep-rag-go/pkg/log"
)

// ragQuerySuffix 追加在每个检索查询末尾。
const ragQuerySuffix = "IEP goals objectives"

// DefaultContextTopK 是构建上下文时检索的分块数。
const DefaultContextTopK = 8

// RAGService 根据学生画像检索相关片段，并格式化为可直接注入提示词的文本。
type RAGService interface {
	// GetContext 从不返回错误：检索失败时降级为空字符串。
	GetContext(ctx context.Context, profile model.StudentProfile) string
}

type ragService struct {
	embedder embedding.Client
	store    vectorstore.Store
	topK     int
}

// NewRAGService 创建一个新的 RAGService 实例。topK 非正数时使用 DefaultContextTopK。
func NewRAGService(embedder embedding.Client, store vectorstore.Store, topK int) RAGService {
	if topK <= 0 {
		topK = DefaultContextTopK
	}
	return &ragService{embedder: embedder, store: store, topK: topK}
}

func (s *ragService) GetContext(ctx context.Context, profile model.StudentProfile) string {
	query := BuildRAGQuery(profile)
	if query == "" {
		log.Debugf("[RAGService] 学生画像为空, 跳过检索")
		return ""
	}

	vector, err := s.embedder.EmbedOne(ctx, query)
	if err != nil {
		log.Errorf("[RAGService] 向量化检索查询失败, 返回空上下文: %v", err)
		return ""
	}

	chunks, err := s.store.SearchSimilar(ctx, vector, s.topK, vectorstore.Filter{})
	if err != nil {
		log.Errorf("[RAGService] 向量检索失败, 返回空上下文: %v", err)
		return ""
	}
	if len(chunks) == 0 {
		return ""
	}

	log.Infof("[RAGService] 检索到 %d 个相关片段", len(chunks))
	return FormatContext(chunks)
}

// BuildRAGQuery 按固定顺序拼接画像各字段，末尾追加 ragQuerySuffix。
// 画像中没有任何有效内容时返回空字符串。
func BuildRAGQuery(profile model.StudentProfile) string {
	goals := make([]string, 0, len(profile.CustomGoals))
	for _, g := range profile.CustomGoals {
		goals = append(goals, g.Text())
	}

	var parts []string
	for _, category := range [][]string{profile.Exceptionalities, profile.Weaknesses, profile.Accommodations, goals} {
		if joined := joinNonBlank(category); joined != "" {
			parts = append(parts, joined)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, " ") + " " + ragQuerySuffix
}

// FormatContext 按检索顺序编号："[1] A\n\n[2] B"。
func FormatContext(chunks []model.ScoredChunk) string {
	blocks := make([]string, len(chunks))
	for i, c := range chunks {
		blocks[i] = fmt.Sprintf("[%d] %s", i+1, c.Content)
	}
	return strings.Join(blocks, "\n\n")
}

func joinNonBlank(items []string) string {
	kept := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			kept = append(kept, item)
		}
	}
	return strings.Join(kept, " ")
}
