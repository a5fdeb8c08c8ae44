package extract

import (
	"bytes"
	"context"
	"fmt"

	"iep-rag-go/pkg/log"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor 逐页读取 PDF 的纯文本。
type PDFExtractor struct{}

func (PDFExtractor) ExtractPages(ctx context.Context, data []byte, fileName string) (pages []string, err error) {
	// ledongthuc/pdf 遇到损坏的文件会 panic
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("解析 PDF '%s' 失败: %v", fileName, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("打开 PDF '%s' 失败: %w", fileName, err)
	}

	total := reader.NumPage()
	pages = make([]string, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("读取 PDF '%s' 第 %d 页失败: %w", fileName, i, err)
		}
		pages = append(pages, text)
	}
	log.Infof("[Extract] PDF '%s' 解析完成, 共 %d 页", fileName, total)
	return pages, nil
}
