// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"iep-rag-go/internal/apperr"
	"iep-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
)

func respondOK(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, gin.H{
		"code":    status,
		"message": message,
		"data":    data,
	})
}

// respondError 将错误类别映射为 HTTP 状态码。未分类的错误返回 500 且不暴露细节。
func respondError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "文档不存在"})
	case errors.Is(err, apperr.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrEmbeddingService):
		log.Errorf("[Handler] %s: %v", op, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "embedding 服务调用失败"})
	default:
		log.Errorf("[Handler] %s: %v", op, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": op + "失败"})
	}
}
