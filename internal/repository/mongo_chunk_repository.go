package repository

import (
	"context"
	"time"

	"iep-rag-go/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoChunk 是分块在 MongoDB 集合中的文档结构。
type mongoChunk struct {
	ID           primitive.ObjectID     `bson:"_id"`
	DocumentID   string                 `bson:"document_id"`
	ChunkIndex   int                    `bson:"chunk_index"`
	Content      string                 `bson:"content"`
	Embedding    []float32              `bson:"embedding"`
	PageStart    *int                   `bson:"page_start,omitempty"`
	PageEnd      *int                   `bson:"page_end,omitempty"`
	Metadata     map[string]interface{} `bson:"metadata,omitempty"`
	ModelVersion string                 `bson:"model_version"`
	CreatedAt    time.Time              `bson:"created_at"`
}

type mongoChunkRepository struct {
	coll *mongo.Collection
}

// NewMongoChunkRepository 创建一个基于 MongoDB 集合的 ChunkRepository。
func NewMongoChunkRepository(coll *mongo.Collection) ChunkRepository {
	return &mongoChunkRepository{coll: coll}
}

// EnsureMongoIndexes 为 document_id 建立索引，删除与按文档检索都依赖它。
func EnsureMongoIndexes(ctx context.Context, coll *mongo.Collection) error {
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "document_id", Value: 1}},
	})
	return err
}

func (r *mongoChunkRepository) BatchCreate(ctx context.Context, chunks []*model.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	now := time.Now()
	docs := make([]interface{}, 0, len(chunks))
	for _, c := range chunks {
		// ObjectID 在进程内单调递增，_id 排序即写入顺序
		docs = append(docs, mongoChunk{
			ID:           primitive.NewObjectID(),
			DocumentID:   c.DocumentID,
			ChunkIndex:   c.ChunkIndex,
			Content:      c.Content,
			Embedding:    c.Embedding,
			PageStart:    c.PageStart,
			PageEnd:      c.PageEnd,
			Metadata:     c.Metadata,
			ModelVersion: c.ModelVersion,
			CreatedAt:    now,
		})
	}
	_, err := r.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	return err
}

func (r *mongoChunkRepository) FindByDocumentID(ctx context.Context, documentID string) ([]*model.EmbeddedChunk, error) {
	filter := bson.M{}
	if documentID != "" {
		filter["document_id"] = documentID
	}
	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []mongoChunk
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]*model.EmbeddedChunk, 0, len(docs))
	for _, d := range docs {
		out = append(out, &model.EmbeddedChunk{
			DocumentID:   d.DocumentID,
			ChunkIndex:   d.ChunkIndex,
			Content:      d.Content,
			Embedding:    d.Embedding,
			PageStart:    d.PageStart,
			PageEnd:      d.PageEnd,
			Metadata:     d.Metadata,
			ModelVersion: d.ModelVersion,
			CreatedAt:    d.CreatedAt,
		})
	}
	return out, nil
}

func (r *mongoChunkRepository) DeleteByDocumentID(ctx context.Context, documentID string) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"document_id": documentID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (r *mongoChunkRepository) CountByDocumentID(ctx context.Context, documentID string) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{"document_id": documentID})
}
