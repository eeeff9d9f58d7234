// Package embedding provides the text embedding contract plus an
// OpenAI-compatible implementation with caching and retry.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	ottoerrors "otto/internal/errors"
	"otto/internal/logging"
)

// Embedder converts text into unit-normalized vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Config configures NewOpenAIEmbedder.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	CacheSize  int
	Timeout    time.Duration
	Logger     logging.Logger
}

type openAIEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	httpClient *http.Client
	cache      *lru.Cache[string, []float32]
	logger     logging.Logger
}

// NewOpenAIEmbedder builds an Embedder for an OpenAI-compatible /embeddings
// endpoint. Results are cached by input text.
func NewOpenAIEmbedder(cfg Config) (Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding: api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding: model is required")
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 1024
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 512
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	cache, err := lru.New[string, []float32](cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	return &openAIEmbedder{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      cache,
		logger:     logging.OrNop(cfg.Logger),
	}, nil
}

func (e *openAIEmbedder) Dimensions() int { return e.dimensions }

func (e *openAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("embedding: empty input")
	}
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}

	var vec []float32
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * 300 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		vec, lastErr = e.embedOnce(ctx, text)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil || !ottoerrors.IsTransient(lastErr) {
			return nil, lastErr
		}
		e.logger.Warn("embedding retry attempt=%d cause=%v", attempt+1, lastErr)
	}
	if lastErr != nil {
		return nil, lastErr
	}

	Normalize(vec)
	e.cache.Add(text, vec)
	return vec, nil
}

func (e *openAIEmbedder) embedOnce(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]any{
		"model":      e.model,
		"input":      text,
		"dimensions": e.dimensions,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, ottoerrors.NewTransientError(err, "embedding request failed")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, ottoerrors.NewTransientError(err, "read embedding response")
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := fmt.Errorf("embedding status %d: %s", resp.StatusCode, string(payload[:min(len(payload), 256)]))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, ottoerrors.NewTransientError(apiErr, "embedding service unavailable")
		}
		return nil, ottoerrors.NewPermanentError(apiErr, "embedding request rejected")
	}

	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding response is empty")
	}
	return parsed.Data[0].Embedding, nil
}

// Normalize scales vec to unit length in place. Zero vectors are left as is.
func Normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}

// Cosine returns the cosine similarity of two vectors. Mismatched lengths or
// zero vectors yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
