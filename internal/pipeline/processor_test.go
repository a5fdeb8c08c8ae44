package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"iep-rag-go/internal/apperr"
	"iep-rag-go/internal/config"
	"iep-rag-go/internal/model"
	"iep-rag-go/internal/repository"
	"iep-rag-go/internal/vectorstore"
	"iep-rag-go/pkg/database"
	"iep-rag-go/pkg/tasks"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	batchSizes []int
	failOnCall int
}

func (e *countingEmbedder) EmbedOne(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1}, nil
}

func (e *countingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.batchSizes = append(e.batchSizes, len(texts))
	if e.failOnCall > 0 && len(e.batchSizes) == e.failOnCall {
		return nil, &apperr.EmbeddingServiceError{Message: "rate limited"}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (e *countingEmbedder) Model() string { return "counting" }

type memoryObjects struct{ objects map[string][]byte }

func (m *memoryObjects) Put(_ context.Context, name string, data []byte, _ string) error {
	m.objects[name] = data
	return nil
}

func (m *memoryObjects) Get(_ context.Context, name string) ([]byte, error) {
	data, ok := m.objects[name]
	if !ok {
		return nil, fmt.Errorf("object %s not found", name)
	}
	return data, nil
}

func (m *memoryObjects) Remove(_ context.Context, name string) error {
	delete(m.objects, name)
	return nil
}

type splitExtractor struct{}

func (splitExtractor) ExtractPages(_ context.Context, data []byte, _ string) ([]string, error) {
	return strings.Split(string(data), "\f"), nil
}

type failingStore struct {
	vectorstore.Store
	deletes int
}

func (f *failingStore) StoreChunks(context.Context, string, []model.ChunkInput) (int, error) {
	return 0, apperr.Store("store chunks", errors.New("disk full"))
}

func (f *failingStore) DeleteChunks(ctx context.Context, id string) (int, error) {
	f.deletes++
	return f.Store.DeleteChunks(ctx, id)
}

type fixture struct {
	docs     repository.DocumentRepository
	chunks   repository.ChunkRepository
	store    vectorstore.Store
	objects  *memoryObjects
	embedder *countingEmbedder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, repository.AutoMigrate(db))
	chunks := repository.NewChunkRepository(db)
	return &fixture{
		docs:     repository.NewDocumentRepository(db),
		chunks:   chunks,
		store:    vectorstore.NewStore(chunks, vectorstore.Options{Timeout: 5 * time.Second}),
		objects:  &memoryObjects{objects: map[string][]byte{}},
		embedder: &countingEmbedder{},
	}
}

func (f *fixture) processor(store vectorstore.Store) *Processor {
	return NewProcessor(f.docs, f.objects, splitExtractor{}, f.embedder, store, config.RAGConfig{
		ChunkSize:      40,
		ChunkOverlap:   10,
		EmbedBatchSize: 2,
	})
}

func (f *fixture) createDoc(t *testing.T) *model.Document {
	t.Helper()
	doc := &model.Document{ID: uuid.NewString(), FileName: "plan.pdf", ObjectName: "documents/plan.pdf", Status: model.DocumentProcessing}
	require.NoError(t, f.docs.Create(context.Background(), doc))
	return doc
}

var twoPages = []string{
	"Reading fluency goals for the first term of the school year.",
	"Math accommodations include extended time and a calculator.",
}

func TestProcessor_IngestText(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.createDoc(t)

	n, err := f.processor(f.store).IngestText(ctx, doc.ID, twoPages)
	require.NoError(t, err)
	require.Greater(t, n, 2)

	got, err := f.docs.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentReady, got.Status)
	assert.Equal(t, n, got.ChunkCount)
	assert.Empty(t, got.ErrorMessage)

	for i, size := range f.embedder.batchSizes {
		if i < len(f.embedder.batchSizes)-1 {
			assert.Equal(t, 2, size)
		}
	}

	stored, err := f.chunks.FindByDocumentID(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, stored, n)
	for i, c := range stored {
		assert.Equal(t, i, c.ChunkIndex)
		require.NotNil(t, c.PageStart)
		require.NotNil(t, c.PageEnd)
		assert.LessOrEqual(t, *c.PageStart, *c.PageEnd)
		assert.Equal(t, "plan.pdf", c.Metadata["fileName"])
	}
	assert.Equal(t, 1, *stored[0].PageStart)
	assert.Equal(t, 2, *stored[len(stored)-1].PageEnd)
}

func TestProcessor_ReingestReplacesChunks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.createDoc(t)
	p := f.processor(f.store)

	first, err := p.IngestText(ctx, doc.ID, twoPages)
	require.NoError(t, err)
	second, err := p.IngestText(ctx, doc.ID, twoPages)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	count, err := f.chunks.CountByDocumentID(ctx, doc.ID)
	require.NoError(t, err)
	assert.EqualValues(t, second, count)
}

func TestProcessor_EmbeddingFailureLeavesNoChunks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.embedder.failOnCall = 2
	doc := f.createDoc(t)

	_, err := f.processor(f.store).IngestText(ctx, doc.ID, twoPages)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrEmbeddingService)

	got, err := f.docs.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "rate limited")

	count, err := f.chunks.CountByDocumentID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestProcessor_StoreFailureCleansUp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.createDoc(t)
	store := &failingStore{Store: f.store}

	_, err := f.processor(store).IngestText(ctx, doc.ID, twoPages)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrStore)
	assert.Equal(t, 2, store.deletes)

	got, err := f.docs.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "disk full")
}

func TestProcessor_NoTextContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.createDoc(t)

	_, err := f.processor(f.store).IngestText(ctx, doc.ID, []string{"  ", "\n"})
	assert.ErrorIs(t, err, ErrNoTextContent)
	assert.Empty(t, f.embedder.batchSizes)

	got, err := f.docs.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentFailed, got.Status)
	assert.Equal(t, "no text content", got.ErrorMessage)
}

func TestProcessor_UnknownDocument(t *testing.T) {
	f := newFixture(t)
	_, err := f.processor(f.store).IngestText(context.Background(), "missing", twoPages)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.processor(f.store).IngestText(context.Background(), "", twoPages)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestProcessor_Process(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.createDoc(t)
	f.objects.objects[doc.ObjectName] = []byte(strings.Join(twoPages, "\f"))

	err := f.processor(f.store).Process(ctx, tasks.IngestTask{DocumentID: doc.ID, FileName: doc.FileName})
	require.NoError(t, err)

	got, err := f.docs.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentReady, got.Status)

	results, err := f.store.SearchSimilar(ctx, []float32{40, 1}, 3, vectorstore.Filter{DocumentID: doc.ID})
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestProcessor_ProcessMissingObject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.createDoc(t)

	err := f.processor(f.store).Process(ctx, tasks.IngestTask{DocumentID: doc.ID, ObjectName: "nope"})
	require.Error(t, err)

	got, err := f.docs.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "object nope not found")
}

func TestJoinPagesAndPageOf(t *testing.T) {
	text, starts := joinPages([]string{"ab", "", "cd"})
	assert.Equal(t, "ab\n\ncd", text)
	assert.Equal(t, []int{0, 3, 4}, starts)

	assert.Equal(t, 1, pageOf(starts, 0))
	assert.Equal(t, 1, pageOf(starts, 2))
	assert.Equal(t, 2, pageOf(starts, 3))
	assert.Equal(t, 3, pageOf(starts, 4))
	assert.Equal(t, 3, pageOf(starts, 5))
	assert.Equal(t, 1, pageOf(nil, 7))
}
