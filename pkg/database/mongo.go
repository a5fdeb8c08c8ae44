package database

import (
	"context"
	"fmt"
	"time"

	"iep-rag-go/internal/config"
	"iep-rag-go/pkg/log"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// OpenMongo 连接 MongoDB 并 Ping 确认可用。
func OpenMongo(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("无法连接到 MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("无法 Ping MongoDB: %w", err)
	}

	log.Infof("MongoDB connected: %s", cfg.Database)
	return client, nil
}
