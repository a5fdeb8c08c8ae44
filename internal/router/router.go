// Package router 注册所有 HTTP 路由。
package router

import (
	"net/http"

	"iep-rag-go/internal/handler"
	"iep-rag-go/internal/middleware"
	"iep-rag-go/internal/service"
	"iep-rag-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// Deps 是路由所需的全部依赖。
type Deps struct {
	JWT            *token.JWTManager
	Documents      service.DocumentService
	Search         service.SearchService
	RAG            service.RAGService
	MaxUploadBytes int64
}

// New 创建路由引擎。/healthz 无需认证，/api/v1 下的接口都需要 Bearer token。
func New(d Deps) *gin.Engine {
	r := gin.New()
	// 添加自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())
	if d.MaxUploadBytes > 0 {
		r.MaxMultipartMemory = d.MaxUploadBytes
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	docHandler := handler.NewDocumentHandler(d.Documents, d.MaxUploadBytes)
	searchHandler := handler.NewSearchHandler(d.Search, d.RAG)

	apiV1 := r.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(d.JWT))
	{
		documents := apiV1.Group("/documents")
		{
			documents.POST("", docHandler.Upload)
			documents.GET("", docHandler.List)
			documents.GET("/:id", docHandler.Get)
			documents.DELETE("/:id", docHandler.Delete)
			documents.POST("/:id/reingest", docHandler.Reingest)
		}

		apiV1.POST("/search", searchHandler.Search)
		apiV1.POST("/rag/context", searchHandler.RAGContext)
	}
	return r
}
