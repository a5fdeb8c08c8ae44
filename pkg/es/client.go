// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"iep-rag-go/internal/config"
	"iep-rag-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
)

// NewClient 根据配置创建 Elasticsearch 客户端。Addresses 支持逗号分隔的多个地址。
func NewClient(esCfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	var addrs []string
	for _, a := range strings.Split(esCfg.Addresses, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	if len(addrs) == 0 {
		return nil, errors.New("elasticsearch.addresses 不能为空")
	}
	return elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addrs,
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	})
}

// ChunkIndexMapping 返回分块索引的 mapping，dims 为 embedding 维度。
func ChunkIndexMapping(dims int) string {
	return fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"document_id": { "type": "keyword" },
				"chunk_index": { "type": "integer" },
				"content": { "type": "text" },
				"embedding": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"page_start": { "type": "integer" },
				"page_end": { "type": "integer" },
				"metadata": { "type": "object", "enabled": false },
				"model_version": { "type": "keyword" },
				"seq": { "type": "long" },
				"created_at": { "type": "date" }
			}
		}
	}`, dims)
}

// EnsureIndex 检查索引是否存在，如果不存在则按 ChunkIndexMapping 创建。
func EnsureIndex(ctx context.Context, client *elasticsearch.Client, indexName string, dims int) error {
	res, err := client.Indices.Exists([]string{indexName}, client.Indices.Exists.WithContext(ctx))
	if err != nil {
		log.Errorf("[ES] 检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()

	if res.StatusCode == http.StatusOK {
		log.Infof("[ES] 索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
	}
	if dims <= 0 {
		return fmt.Errorf("创建索引 '%s' 需要 embedding.dimensions", indexName)
	}

	res, err = client.Indices.Create(
		indexName,
		client.Indices.Create.WithBody(strings.NewReader(ChunkIndexMapping(dims))),
		client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		log.Errorf("[ES] 创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("[ES] 创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("[ES] 索引 '%s' 创建成功, dims: %d", indexName, dims)
	return nil
}
