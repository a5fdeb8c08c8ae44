package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"iep-rag-go/internal/apperr"
	"iep-rag-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingItem struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

func writeEmbeddings(w http.ResponseWriter, items []embeddingItem) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   items,
		"model":  "test-model",
		"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
	})
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(config.EmbeddingConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL + "/",
		Model:   "test-model",
		Timeout: time.Second,
	})
	return c, &calls
}

func TestEmbedOne(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body["model"])
		assert.Equal(t, "reading fluency", body["input"])

		writeEmbeddings(w, []embeddingItem{{Object: "embedding", Embedding: []float32{0.1, 0.2, 0.3}, Index: 0}})
	})

	vec, err := c.EmbedOne(context.Background(), "reading fluency")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	assert.Equal(t, "test-model", c.Model())
}

func TestEmbedOne_EmptyInput(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := c.EmbedOne(context.Background(), "   ")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func TestEmbedOne_ServiceError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded","type":"insufficient_quota"}}`))
	})

	_, err := c.EmbedOne(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrEmbeddingService)

	var svcErr *apperr.EmbeddingServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "quota exceeded", svcErr.Message)
}

func TestEmbedOne_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(config.EmbeddingConfig{BaseURL: srv.URL, Model: "m", Timeout: 50 * time.Millisecond})
	_, err := c.EmbedOne(context.Background(), "slow")
	assert.ErrorIs(t, err, apperr.ErrEmbeddingService)
}

func TestEmbedBatch_ReordersByIndex(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"a", "b", "c"}, body.Input)

		writeEmbeddings(w, []embeddingItem{
			{Object: "embedding", Embedding: []float32{3}, Index: 2},
			{Object: "embedding", Embedding: []float32{1}, Index: 0},
			{Object: "embedding", Embedding: []float32{2}, Index: 1},
		})
	})

	out, err := c.EmbedBatch(context.Background(), []string{"a", "", "b", "  ", "c"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {2}, {3}}, out)
}

func TestEmbedBatch_AllEmptySkipsCall(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	out, err := c.EmbedBatch(context.Background(), []string{"", " "})
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = c.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func TestEmbedBatch_CountMismatch(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEmbeddings(w, []embeddingItem{{Object: "embedding", Embedding: []float32{1}, Index: 0}})
	})

	out, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, apperr.ErrEmbeddingService)
	assert.Nil(t, out)
}

func TestEmbedBatch_ServiceError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("bad gateway"))
	})

	out, err := c.EmbedBatch(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, apperr.ErrEmbeddingService)
	assert.Nil(t, out)
}
