package router

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"iep-rag-go/internal/apperr"
	"iep-rag-go/internal/model"
	"iep-rag-go/internal/service"
	"iep-rag-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDocuments struct {
	docs      map[string]*model.Document
	uploaded  []string
	deleted   int
	reingestE error
}

func (s *stubDocuments) Upload(_ context.Context, fileName string, data []byte) (*model.Document, error) {
	if len(data) == 0 {
		return nil, apperr.InvalidInput("file %q is empty", fileName)
	}
	s.uploaded = append(s.uploaded, fileName)
	return &model.Document{ID: "doc-new", FileName: fileName, Status: model.DocumentProcessing, Size: int64(len(data))}, nil
}

func (s *stubDocuments) List(context.Context) ([]model.DocumentDTO, error) {
	var out []model.DocumentDTO
	for _, d := range s.docs {
		out = append(out, d.ToDTO())
	}
	return out, nil
}

func (s *stubDocuments) Get(_ context.Context, id string) (*model.Document, error) {
	if d, ok := s.docs[id]; ok {
		return d, nil
	}
	return nil, apperr.ErrNotFound
}

func (s *stubDocuments) Delete(_ context.Context, id string) (int, error) {
	if _, ok := s.docs[id]; !ok {
		return 0, apperr.ErrNotFound
	}
	return s.deleted, nil
}

func (s *stubDocuments) Reingest(_ context.Context, id string) (*model.Document, error) {
	if s.reingestE != nil {
		return nil, s.reingestE
	}
	return s.docs[id], nil
}

type stubSearch struct {
	last service.SearchRequest
	err  error
}

func (s *stubSearch) Search(_ context.Context, req service.SearchRequest) ([]model.ScoredChunk, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return []model.ScoredChunk{{Content: "A", DocumentID: "doc-1", Score: 0.9}}, nil
}

type stubRAG struct{ profile model.StudentProfile }

func (s *stubRAG) GetContext(_ context.Context, p model.StudentProfile) string {
	s.profile = p
	return "[1] A\n\n[2] B"
}

type testEnv struct {
	engine *gin.Engine
	token  string
	docs   *stubDocuments
	search *stubSearch
	rag    *stubRAG
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	jwt := token.NewJWTManager("secret", 1)
	tok, err := jwt.GenerateToken("casemanager", "editor")
	require.NoError(t, err)

	env := &testEnv{
		token: tok,
		docs: &stubDocuments{docs: map[string]*model.Document{
			"doc-1": {ID: "doc-1", FileName: "plan.pdf", Status: model.DocumentReady, ChunkCount: 12},
		}, deleted: 12},
		search: &stubSearch{},
		rag:    &stubRAG{},
	}
	env.engine = New(Deps{JWT: jwt, Documents: env.docs, Search: env.search, RAG: env.rag, MaxUploadBytes: 1 << 20})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer "+e.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestHealthzIsPublic(t *testing.T) {
	env := newTestEnv(t)
	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUploadDocument(t *testing.T) {
	env := newTestEnv(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "iep.txt")
	require.NoError(t, err)
	_, _ = part.Write([]byte("reading goals"))
	require.NoError(t, mw.Close())

	w := env.do(t, http.MethodPost, "/api/v1/documents", &body, mw.FormDataContentType())
	require.Equal(t, http.StatusAccepted, w.Code)
	resp := decode(t, w)
	var dto model.DocumentDTO
	require.NoError(t, json.Unmarshal(resp.Data, &dto))
	assert.Equal(t, "doc-new", dto.ID)
	assert.Equal(t, model.DocumentProcessing, dto.Status)
	assert.Equal(t, []string{"iep.txt"}, env.docs.uploaded)
}

func TestUploadWithoutFile(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/documents", bytes.NewBufferString("{}"), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetAndDeleteDocument(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/documents/doc-1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var dto model.DocumentDTO
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &dto))
	assert.Equal(t, 12, dto.ChunkCount)

	w = env.do(t, http.MethodGet, "/api/v1/documents/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodDelete, "/api/v1/documents/doc-1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deletedChunks":12}`, string(decode(t, w).Data))
}

func TestReingestConflict(t *testing.T) {
	env := newTestEnv(t)
	env.docs.reingestE = apperr.ErrConflict

	w := env.do(t, http.MethodPost, "/api/v1/documents/doc-1/reingest", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	env.docs.reingestE = nil
	w = env.do(t, http.MethodPost, "/api/v1/documents/doc-1/reingest", nil, "")
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/search", bytes.NewBufferString(`{"query":"reading","limit":5,"documentId":"doc-1"}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.SearchRequest{Query: "reading", Limit: 5, DocumentID: "doc-1"}, env.search.last)

	var results []model.ScoredChunk
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &results))
	require.Len(t, results, 1)
	assert.Equal(t, "A", results[0].Content)
}

func TestSearchErrorMapping(t *testing.T) {
	env := newTestEnv(t)

	env.search.err = apperr.InvalidInput("query or embedding is required")
	w := env.do(t, http.MethodPost, "/api/v1/search", bytes.NewBufferString(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env.search.err = &apperr.EmbeddingServiceError{Message: "quota exceeded"}
	w = env.do(t, http.MethodPost, "/api/v1/search", bytes.NewBufferString(`{"query":"x"}`), "application/json")
	assert.Equal(t, http.StatusBadGateway, w.Code)

	env.search.err = apperr.Store("search", assert.AnError)
	w = env.do(t, http.MethodPost, "/api/v1/search", bytes.NewBufferString(`{"query":"x"}`), "application/json")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
}

func TestRAGContext(t *testing.T) {
	env := newTestEnv(t)

	body := `{"exceptionalities":["Autism"],"customGoals":["Read fluently",{"title":"Count to 100"}]}`
	w := env.do(t, http.MethodPost, "/api/v1/rag/context", bytes.NewBufferString(body), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"context":"[1] A\n\n[2] B"}`, string(decode(t, w).Data))
	assert.Equal(t, []string{"Autism"}, env.rag.profile.Exceptionalities)
	require.Len(t, env.rag.profile.CustomGoals, 2)
	assert.Equal(t, "Count to 100", env.rag.profile.CustomGoals[1].Text())

	w = env.do(t, http.MethodPost, "/api/v1/rag/context", bytes.NewBufferString(`not json`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "error"))
}
