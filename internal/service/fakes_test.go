package service

import (
	"context"
	"sync"

	"iep-rag-go/internal/model"
	"iep-rag-go/internal/vectorstore"
	"iep-rag-go/pkg/tasks"
)

type fakeEmbedder struct {
	mu       sync.Mutex
	vector   []float32
	err      error
	oneCalls []string
}

func (f *fakeEmbedder) EmbedOne(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.oneCalls = append(f.oneCalls, text)
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

func (f *fakeEmbedder) Model() string { return "fake-model" }

type fakeStore struct {
	results     []model.ScoredChunk
	err         error
	lastQuery   []float32
	lastLimit   int
	lastFilter  vectorstore.Filter
	searchCalls int
	deleted     map[string]int
}

func (f *fakeStore) StoreChunks(_ context.Context, _ string, chunks []model.ChunkInput) (int, error) {
	return len(chunks), f.err
}

func (f *fakeStore) SearchSimilar(_ context.Context, q []float32, limit int, filter vectorstore.Filter) ([]model.ScoredChunk, error) {
	f.searchCalls++
	f.lastQuery, f.lastLimit, f.lastFilter = q, limit, filter
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func (f *fakeStore) DeleteChunks(_ context.Context, documentID string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.deleted[documentID], nil
}

type memoryObjects struct {
	objects map[string][]byte
	err     error
}

func (m *memoryObjects) Put(_ context.Context, name string, data []byte, _ string) error {
	if m.err != nil {
		return m.err
	}
	m.objects[name] = data
	return nil
}

func (m *memoryObjects) Get(_ context.Context, name string) ([]byte, error) {
	return m.objects[name], nil
}

func (m *memoryObjects) Remove(_ context.Context, name string) error {
	delete(m.objects, name)
	return nil
}

type recordingQueue struct {
	tasks []tasks.IngestTask
	err   error
}

func (q *recordingQueue) Enqueue(_ context.Context, task tasks.IngestTask) error {
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}
