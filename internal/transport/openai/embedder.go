// Package openai vectorizes query text through an OpenAI-compatible embeddings API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/metrics"
)

// DefaultMaxInputRunes bounds the query text sent to the provider.
const DefaultMaxInputRunes = 2048

// Embedder is a query embedder backed by an OpenAI-compatible API (OpenAI, Nebius, vLLM).
type Embedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	user       string
	provider   string
	maxRunes   int
	logger     *zap.Logger
}

// Config holds the embedding provider settings.
type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	Dimensions    int
	User          string
	Provider      string
	MaxInputRunes int
	Logger        *zap.Logger
}

// NewEmbedder creates an OpenAI-compatible query embedder.
func NewEmbedder(cfg *Config) *Embedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	maxRunes := cfg.MaxInputRunes
	if maxRunes <= 0 {
		maxRunes = DefaultMaxInputRunes
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Embedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		user:       cfg.User,
		provider:   cfg.Provider,
		maxRunes:   maxRunes,
		logger:     log,
	}
}

// Embed implements domain.Embedder and records transport-level metrics.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.EmbeddingResult{}, fmt.Errorf("empty query text: %w", domain.ErrInvalidRequest)
	}
	if r := []rune(text); len(r) > e.maxRunes {
		text = string(r[:e.maxRunes])
	}

	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           e.user,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	model := string(e.model)
	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, model, "api_error").Inc()
		e.logger.Warn("Embedding request failed",
			zap.String("provider", e.provider), zap.Duration("duration", duration), zap.Error(err))
		return domain.EmbeddingResult{}, parseAPIError(err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, model, "empty_response").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("empty embedding response: %w", domain.ErrEmbeddingProviderError)
	}
	if e.dimensions > 0 && len(resp.Data[0].Embedding) != e.dimensions {
		metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, model, "dimension_mismatch").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("embedding has %d dimensions, want %d: %w",
			len(resp.Data[0].Embedding), e.dimensions, domain.ErrEmbeddingProviderError)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(e.provider, model).Observe(duration.Seconds())
	if resp.Usage.TotalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, model, "prompt").Add(float64(resp.Usage.PromptTokens))
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, model, "total").Add(float64(resp.Usage.TotalTokens))
	}

	e.logger.Debug("Query embedded",
		zap.String("provider", e.provider),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(resp.Data[0].Embedding)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)

	return domain.EmbeddingResult{
		Embedding:    resp.Data[0].Embedding,
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}

// HealthCheck verifies API availability via ListModels.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// parseAPIError wraps every provider failure with domain.ErrEmbeddingProviderError.
func parseAPIError(err error) error {
	wrap := domain.ErrEmbeddingProviderError

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := extractDetail(reqErr.Body)
		if msg == "" {
			msg = string(reqErr.Body)
		}
		return fmt.Errorf("embedding API error %d: %s: %w", reqErr.HTTPStatusCode, msg, wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding API error %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("embedding request: %w: %w", err, wrap)
	}
	return fmt.Errorf("embedding request failed: %w", wrap)
}

// extractDetail reads the "detail" field some providers put in error bodies.
func extractDetail(body []byte) string {
	return jsoniter.Get(body, "detail").ToString()
}
