package repository

import (
	"context"
	"fmt"
	"testing"

	"iep-rag-go/internal/apperr"
	"iep-rag-go/internal/model"
	"iep-rag-go/pkg/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	return db
}

func intPtr(v int) *int { return &v }

func TestChunkRepository_CreateFindDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewChunkRepository(newTestDB(t))

	chunks := []*model.EmbeddedChunk{
		{DocumentID: "doc-a", ChunkIndex: 0, Content: "first", Embedding: []float32{1, 0}, PageStart: intPtr(1), PageEnd: intPtr(1)},
		{DocumentID: "doc-b", ChunkIndex: 0, Content: "other", Embedding: []float32{0, 1}},
		{DocumentID: "doc-a", ChunkIndex: 1, Content: "second", Embedding: []float32{0.5, 0.5}, Metadata: map[string]interface{}{"source": "pdf"}},
	}
	require.NoError(t, repo.BatchCreate(ctx, chunks))
	require.NoError(t, repo.BatchCreate(ctx, nil))

	docA, err := repo.FindByDocumentID(ctx, "doc-a")
	require.NoError(t, err)
	require.Len(t, docA, 2)
	assert.Equal(t, "first", docA[0].Content)
	assert.Equal(t, []float32{1, 0}, []float32(docA[0].Embedding))
	require.NotNil(t, docA[0].PageStart)
	assert.Equal(t, 1, *docA[0].PageStart)
	assert.Equal(t, "second", docA[1].Content)
	assert.Equal(t, "pdf", docA[1].Metadata["source"])

	all, err := repo.FindByDocumentID(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "other", all[1].Content)

	n, err := repo.CountByDocumentID(ctx, "doc-a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	deleted, err := repo.DeleteByDocumentID(ctx, "doc-a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	deleted, err = repo.DeleteByDocumentID(ctx, "doc-a")
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func TestDocumentRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(newTestDB(t))

	doc := &model.Document{ID: uuid.NewString(), FileName: "iep-guide.pdf", Status: model.DocumentProcessing}
	require.NoError(t, repo.Create(ctx, doc))

	ok, err := repo.TryMarkProcessing(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, ok, "already processing")

	require.NoError(t, repo.MarkFailed(ctx, doc.ID, "embedding service error: quota"))
	got, err := repo.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentFailed, got.Status)
	assert.Equal(t, "embedding service error: quota", got.ErrorMessage)

	ok, err = repo.TryMarkProcessing(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.MarkReady(ctx, doc.ID, 7))
	got, err = repo.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentReady, got.Status)
	assert.Equal(t, 7, got.ChunkCount)
	assert.Empty(t, got.ErrorMessage)

	docs, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	require.NoError(t, repo.Delete(ctx, doc.ID))
	_, err = repo.FindByID(ctx, doc.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, doc.ID), apperr.ErrNotFound)
	assert.ErrorIs(t, repo.MarkReady(ctx, doc.ID, 1), apperr.ErrNotFound)
}
