// Package embedding provides a client for an OpenAI-compatible embedding service.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"iep-rag-go/internal/apperr"
	"iep-rag-go/internal/config"
	"iep-rag-go/pkg/log"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Client converts text into fixed-length vectors.
// Calls are not retried; a failed call returns no partial results.
type Client interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

type openAICompatibleClient struct {
	cfg     config.EmbeddingConfig
	client  *openai.Client
	limiter *rate.Limiter
}

// NewClient creates an embedding client from explicit configuration.
func NewClient(cfg config.EmbeddingConfig) Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{}

	c := &openAICompatibleClient{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientCfg),
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c
}

func (c *openAICompatibleClient) Model() string {
	return c.cfg.Model
}

// EmbedOne returns the embedding of a single non-empty text.
func (c *openAICompatibleClient) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.InvalidInput("text to embed is empty")
	}
	log.Debugf("[EmbeddingClient] 调用 Embedding API, model: %s, input_len: %d", c.cfg.Model, len(text))

	resp, err := c.create(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		log.Warnf("[EmbeddingClient] Embedding API 返回了空的向量数据")
		return nil, &apperr.EmbeddingServiceError{Message: "received empty embedding from api"}
	}
	return resp.Data[0].Embedding, nil
}

// EmbedBatch embeds all non-empty texts in one request.
// Result i corresponds to the i-th non-empty input. The service may answer out
// of order, so results are re-sorted by the index it reports.
func (c *openAICompatibleClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	inputs := make([]string, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			inputs = append(inputs, t)
		}
	}
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	log.Debugf("[EmbeddingClient] 批量调用 Embedding API, model: %s, batch: %d", c.cfg.Model, len(inputs))

	resp, err := c.create(ctx, inputs)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(inputs) {
		return nil, &apperr.EmbeddingServiceError{
			Message: fmt.Sprintf("expected %d embeddings, got %d", len(inputs), len(resp.Data)),
		}
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float32, len(data))
	for i, d := range data {
		if d.Index != i {
			return nil, &apperr.EmbeddingServiceError{Message: fmt.Sprintf("unexpected embedding index %d at position %d", d.Index, i)}
		}
		if len(d.Embedding) == 0 {
			return nil, &apperr.EmbeddingServiceError{Message: fmt.Sprintf("empty embedding at index %d", i)}
		}
		out[i] = d.Embedding
	}
	return out, nil
}

// create applies the rate limit and per-call timeout, and classifies failures.
func (c *openAICompatibleClient) create(ctx context.Context, input any) (openai.EmbeddingResponse, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return openai.EmbeddingResponse{}, &apperr.EmbeddingServiceError{Message: "rate limiter: " + err.Error(), Err: err}
		}
	}

	start := time.Now()
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      input,
		Model:      openai.EmbeddingModel(c.cfg.Model),
		Dimensions: c.cfg.Dimensions,
	})
	if err != nil {
		log.Errorf("[EmbeddingClient] 调用 Embedding API 失败, elapsed: %s, error: %v", time.Since(start), err)
		return openai.EmbeddingResponse{}, classify(err)
	}
	return resp, nil
}

// classify converts client errors into EmbeddingServiceError, keeping the upstream message.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &apperr.EmbeddingServiceError{Message: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &apperr.EmbeddingServiceError{Message: fmt.Sprintf("status %d: %v", reqErr.HTTPStatusCode, reqErr.Err), Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &apperr.EmbeddingServiceError{Message: "request timed out", Err: err}
	}
	return &apperr.EmbeddingServiceError{Message: err.Error(), Err: err}
}
