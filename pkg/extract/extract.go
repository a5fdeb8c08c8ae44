// Package extract 将上传文件的字节内容转换为按页划分的纯文本。
package extract

import (
	"context"
	"strings"

	"iep-rag-go/internal/apperr"
	"iep-rag-go/pkg/log"

	"github.com/gabriel-vasile/mimetype"
)

// Extractor 从文件内容中提取文本，返回结果的每个元素对应一页。
// 无法分页的格式返回单个元素。
type Extractor interface {
	ExtractPages(ctx context.Context, data []byte, fileName string) ([]string, error)
}

// Router 根据嗅探到的内容类型把文件分发给对应的 Extractor。
// PDF 走本地解析以保留页码，纯文本直接返回，其余格式交给 Tika。
type Router struct {
	pdf      Extractor
	fallback Extractor
}

// NewRouter 创建一个 Router。fallback 为 nil 时，非 PDF、非纯文本文件会返回错误。
func NewRouter(pdf, fallback Extractor) *Router {
	return &Router{pdf: pdf, fallback: fallback}
}

// DetectContentType 返回文件内容的 MIME 类型。
func DetectContentType(data []byte) string {
	return mimetype.Detect(data).String()
}

func (r *Router) ExtractPages(ctx context.Context, data []byte, fileName string) ([]string, error) {
	if len(data) == 0 {
		return nil, apperr.InvalidInput("file %q is empty", fileName)
	}

	mtype := mimetype.Detect(data)
	log.Infof("[Extract] 文件 '%s' 的内容类型: %s", fileName, mtype.String())
	switch {
	case mtype.Is("application/pdf"):
		return r.pdf.ExtractPages(ctx, data, fileName)
	case strings.HasPrefix(mtype.String(), "text/plain"):
		return []string{string(data)}, nil
	case r.fallback != nil:
		return r.fallback.ExtractPages(ctx, data, fileName)
	default:
		return nil, apperr.InvalidInput("unsupported content type %s", mtype.String())
	}
}
