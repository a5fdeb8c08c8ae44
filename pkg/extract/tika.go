package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"iep-rag-go/internal/config"
)

// TikaExtractor 调用 Apache Tika 服务器提取文本，结果作为单页返回。
type TikaExtractor struct {
	serverURL  string
	httpClient *http.Client
}

// NewTikaExtractor 创建一个新的 Tika 客户端实例。
func NewTikaExtractor(cfg config.TikaConfig) *TikaExtractor {
	return &TikaExtractor{
		serverURL:  strings.TrimRight(cfg.ServerURL, "/"),
		httpClient: &http.Client{},
	}
}

func (c *TikaExtractor) ExtractPages(ctx context.Context, data []byte, fileName string) ([]string, error) {
	if c.serverURL == "" {
		return nil, fmt.Errorf("未配置 Tika 服务器, 无法提取 '%s'", fileName)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.serverURL+"/tika", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Content-Type", detectMimeType(fileName, data))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("调用 Tika 失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取 Tika 响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Tika 返回错误 [%d]: %s", resp.StatusCode, string(body))
	}
	return []string{string(body)}, nil
}

// detectMimeType 优先根据文件扩展名判断 Content-Type，否则按内容嗅探。
func detectMimeType(fileName string, data []byte) string {
	if ext := filepath.Ext(fileName); ext != "" {
		if mimeType := mime.TypeByExtension(ext); mimeType != "" {
			return mimeType
		}
	}
	return DetectContentType(data)
}
