package handler

import (
	"net/http"

	"iep-rag-go/internal/model"
	"iep-rag-go/internal/service"

	"github.com/gin-gonic/gin"
)

// SearchHandler 负责处理检索与 RAG 上下文请求。
type SearchHandler struct {
	searchService service.SearchService
	ragService    service.RAGService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService, ragService service.RAGService) *SearchHandler {
	return &SearchHandler{searchService: searchService, ragService: ragService}
}

// Search 按文本或向量检索相似分块。
func (h *SearchHandler) Search(c *gin.Context) {
	var req service.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求参数"})
		return
	}

	results, err := h.searchService.Search(c.Request.Context(), req)
	if err != nil {
		respondError(c, "搜索", err)
		return
	}
	if results == nil {
		results = []model.ScoredChunk{}
	}
	respondOK(c, http.StatusOK, "success", results)
}

// RAGContext 根据学生画像返回格式化的检索上下文。检索失败时 context 为空字符串。
func (h *SearchHandler) RAGContext(c *gin.Context) {
	var profile model.StudentProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的学生画像"})
		return
	}
	text := h.ragService.GetContext(c.Request.Context(), profile)
	respondOK(c, http.StatusOK, "success", gin.H{"context": text})
}
