// Package app 负责按配置组装各组件，供 cmd/server 与 cmd/ragctl 共用。
package app

import (
	"context"
	"fmt"

	"iep-rag-go/internal/config"
	"iep-rag-go/internal/repository"
	"iep-rag-go/internal/vectorstore"
	"iep-rag-go/pkg/database"
	"iep-rag-go/pkg/embedding"
	"iep-rag-go/pkg/es"
	"iep-rag-go/pkg/extract"
	"iep-rag-go/pkg/log"

	"gorm.io/gorm"
)

// Core 是检索子系统不依赖消息队列和对象存储的部分。
type Core struct {
	DB        *gorm.DB
	Documents repository.DocumentRepository
	Store     vectorstore.Store
	Embedder  embedding.Client
	Extractor extract.Extractor

	closers []func(context.Context) error
}

// NewCore 打开数据库并按 vector_store.backend 创建 Store。
func NewCore(ctx context.Context, cfg *config.Config) (*Core, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := repository.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}

	c := &Core{
		DB:        db,
		Documents: repository.NewDocumentRepository(db),
		Embedder:  embedding.NewClient(cfg.Embedding),
		Extractor: extract.NewRouter(extract.PDFExtractor{}, extract.NewTikaExtractor(cfg.Tika)),
	}
	c.closers = append(c.closers, func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	store, err := c.newStore(ctx, cfg)
	if err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	c.Store = store
	log.Infof("[App] 向量存储后端: %s, embedding 模型: %s", cfg.VectorStore.Backend, cfg.Embedding.Model)
	return c, nil
}

func (c *Core) newStore(ctx context.Context, cfg *config.Config) (vectorstore.Store, error) {
	opts := vectorstore.Options{Timeout: cfg.RAG.StoreTimeout, ModelVersion: cfg.Embedding.Model}

	switch cfg.VectorStore.Backend {
	case "database":
		return vectorstore.NewStore(repository.NewChunkRepository(c.DB), opts), nil
	case "mongo":
		client, err := database.OpenMongo(ctx, cfg.Database.Mongo)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, client.Disconnect)
		coll := client.Database(cfg.Database.Mongo.Database).Collection(cfg.Database.Mongo.Collection)
		if err := repository.EnsureMongoIndexes(ctx, coll); err != nil {
			return nil, fmt.Errorf("创建 MongoDB 索引失败: %w", err)
		}
		return vectorstore.NewStore(repository.NewMongoChunkRepository(coll), opts), nil
	case "elasticsearch":
		client, err := es.NewClient(cfg.Elasticsearch)
		if err != nil {
			return nil, err
		}
		if err := es.EnsureIndex(ctx, client, cfg.Elasticsearch.IndexName, cfg.Embedding.Dimensions); err != nil {
			return nil, err
		}
		return vectorstore.NewElasticsearchStore(client, vectorstore.ElasticsearchOptions{
			Options:    opts,
			Index:      cfg.Elasticsearch.IndexName,
			Dimensions: cfg.Embedding.Dimensions,
		}), nil
	default:
		return nil, fmt.Errorf("不支持的向量存储后端: %q", cfg.VectorStore.Backend)
	}
}

// Close 按打开的逆序释放资源。
func (c *Core) Close(ctx context.Context) error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.closers = nil
	return firstErr
}
