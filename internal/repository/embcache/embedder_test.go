package embcache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/fedsearch/internal/db"
	"github.com/kailas-cloud/fedsearch/internal/domain"
)

func TestEmbed_CacheMiss(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding:    []float32{0.1, 0.2, 0.3},
		PromptTokens: 10,
		TotalTokens:  10,
	}}
	ce, ms := newTestCachedEmbedder(t, inner)

	var setKey string
	var setTTL time.Duration
	ms.setFn = func(_ context.Context, key string, _ []byte, ttl time.Duration) error {
		setKey, setTTL = key, ttl
		return nil
	}

	result, err := ce.Embed(context.Background(), "quarterly invoices")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 || result.Embedding[0] != 0.1 {
		t.Fatalf("unexpected vector: %v", result.Embedding)
	}
	if result.TotalTokens != 10 {
		t.Fatalf("expected TotalTokens=10, got %d", result.TotalTokens)
	}
	if !strings.HasPrefix(setKey, "fedsearch:emb_cache:") {
		t.Errorf("unexpected cache key %q", setKey)
	}
	if setTTL != time.Hour {
		t.Errorf("expected ttl 1h, got %v", setTTL)
	}
}

func TestEmbed_CacheHit(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.1, 0.2, 0.3}}}
	ce, ms := newTestCachedEmbedder(t, inner)

	cached := vectorToCacheBytes([]float32{0.4, 0.5, 0.6})
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return cached, nil
	}

	result, err := ce.Embed(context.Background(), "quarterly invoices")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 || result.Embedding[0] != 0.4 {
		t.Fatalf("expected cached vector, got: %v", result.Embedding)
	}
	if result.TotalTokens != 0 || inner.calls != 0 {
		t.Fatalf("hit must not call provider: tokens=%d calls=%d", result.TotalTokens, inner.calls)
	}
}

func TestEmbed_SameTextSameKey(t *testing.T) {
	ce, _ := newTestCachedEmbedder(t, &mockEmbedder{})
	if ce.cacheKey("a") != ce.cacheKey("a") || ce.cacheKey("a") == ce.cacheKey("b") {
		t.Error("cache keys must be deterministic per text")
	}
}

func TestEmbed_CorruptEntryFallsThrough(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ms.getFn = func(context.Context, string) ([]byte, error) { return []byte{1, 2, 3}, nil }

	if _, err := ce.Embed(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}
	if inner.calls != 1 {
		t.Errorf("corrupt entry must fall through to provider")
	}
}

func TestEmbed_StoreErrorsAreNotFatal(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ms.getFn = func(context.Context, string) ([]byte, error) {
		return nil, &db.Error{Op: db.OpGet, Err: errors.New("timeout")}
	}
	ms.setFn = func(context.Context, string, []byte, time.Duration) error {
		return &db.Error{Op: db.OpSet, Err: errors.New("timeout")}
	}
	if _, err := ce.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("cache failures must not fail embedding: %v", err)
	}
}

func TestEmbed_InnerError(t *testing.T) {
	inner := &mockEmbedder{err: domain.ErrEmbeddingProviderError}
	ce, _ := newTestCachedEmbedder(t, inner)

	_, err := ce.Embed(context.Background(), "x")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected provider error, got %v", err)
	}
}
