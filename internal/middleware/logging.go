// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"bytes"
	"io"
	"strings"
	"time"

	"iep-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// maxLoggedBody 是日志中记录的请求体最大字节数。
const maxLoggedBody = 2048

// RequestLogger 是一个 Gin 中间件，记录状态码、耗时与请求体。
// multipart 上传的文件内容不会被读取。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		var requestBody []byte
		if c.Request.Body != nil && !strings.HasPrefix(c.ContentType(), "multipart/") {
			requestBody, _ = io.ReadAll(c.Request.Body)
			// 将读取的请求体重新设置回去，以便后续处理函数可以正常读取
			c.Request.Body = io.NopCloser(bytes.NewReader(requestBody))
		}

		c.Next()

		logged := string(requestBody)
		if len(logged) > maxLoggedBody {
			logged = logged[:maxLoggedBody] + "..."
		}
		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"requestBody", logged,
		)
	}
}
