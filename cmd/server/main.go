// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"iep-rag-go/internal/app"
	"iep-rag-go/internal/config"
	"iep-rag-go/internal/pipeline"
	"iep-rag-go/internal/router"
	"iep-rag-go/internal/service"
	"iep-rag-go/pkg/database"
	"iep-rag-go/pkg/kafka"
	"iep-rag-go/pkg/log"
	"iep-rag-go/pkg/storage"
	"iep-rag-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 1. 初始化配置
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. 初始化数据库、向量存储与 embedding 客户端
	core, err := app.NewCore(ctx, &cfg)
	if err != nil {
		log.Fatal("初始化检索组件失败", err)
	}
	defer core.Close(context.Background())

	// 4. 初始化对象存储、Redis 与 Kafka
	objects, err := storage.NewMinIOStore(ctx, cfg.MinIO)
	if err != nil {
		log.Fatal("初始化 MinIO 失败", err)
	}
	rdb, err := database.OpenRedis(ctx, cfg.Database.Redis)
	if err != nil {
		log.Fatal("初始化 Redis 失败", err)
	}
	defer rdb.Close()
	producer := kafka.NewProducer(cfg.Kafka)
	defer producer.Close()

	// 5. 初始化文档导入管道与后台消费者
	processor := pipeline.NewProcessor(core.Documents, objects, core.Extractor, core.Embedder, core.Store, cfg.RAG)
	consumer := kafka.NewConsumer(cfg.Kafka, processor, kafka.NewRedisAttemptCounter(rdb, 24*time.Hour))
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Run(ctx); err != nil {
			log.Error("Kafka 消费者异常退出", err)
		}
	}()

	// 6. 初始化 Service
	documentService := service.NewDocumentService(core.Documents, objects, core.Store, producer)
	searchService := service.NewSearchService(core.Embedder, core.Store, cfg.RAG.SearchDefaultLimit, cfg.RAG.SearchMaxLimit)
	ragService := service.NewRAGService(core.Embedder, core.Store, cfg.RAG.ContextTopK)

	if cfg.Server.SeedDir != "" {
		go seedDocuments(ctx, cfg.Server.SeedDir, documentService)
	}

	// 7. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := router.New(router.Deps{
		JWT:            token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours),
		Documents:      documentService,
		Search:         searchService,
		RAG:            ragService,
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
	})

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}
	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s", err)
		}
	}()

	<-ctx.Done()
	log.Info("接收到停机信号，正在关闭服务...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 等待正在处理的导入任务结束
	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
		log.Warnf("等待 Kafka 消费者退出超时")
	}
	log.Info("服务已优雅关闭")
}

// seedDocuments 扫描目录下的文件并通过标准上传流程导入。已存在同名文档的文件会被跳过。
func seedDocuments(ctx context.Context, dir string, docs service.DocumentService) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("seedDocuments: 目录 '%s' 不存在或不可用，跳过初始化导入", dir)
		return
	}

	existing, err := docs.List(ctx)
	if err != nil {
		log.Warnf("seedDocuments: 获取已有文档失败: %v", err)
		return
	}
	seen := make(map[string]bool, len(existing))
	for _, d := range existing {
		seen[d.FileName] = true
	}

	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if seen[info.Name()] {
			log.Infof("seedDocuments: 已存在，跳过: %s", info.Name())
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			log.Warnf("seedDocuments: 读取文件失败: %s, err=%v", path, err)
			return nil
		}
		doc, err := docs.Upload(ctx, info.Name(), data)
		if err != nil {
			log.Warnf("seedDocuments: 导入失败: %s, err=%v", path, err)
			return nil
		}
		seen[info.Name()] = true
		log.Infof("seedDocuments: 已投递导入任务: %s (DocumentID=%s)", info.Name(), doc.ID)
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, context.Canceled) {
		log.Warnf("seedDocuments: 遍历目录发生错误: %v", walkErr)
	}
}
