package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	lru "github.com/hashicorp/golang-lru/v2"

	"otto/internal/logging"
)

// cachingClient serves repeated identical requests from a process-wide LRU.
// Only zero-temperature requests are cached so sampling variety is preserved.
type cachingClient struct {
	inner  Client
	cache  *lru.Cache[string, *CompletionResponse]
	logger logging.Logger
}

// WithPromptCache decorates client with a response cache of the given size.
func WithPromptCache(client Client, size int, logger logging.Logger) (Client, error) {
	if size <= 0 {
		size = 64
	}
	cache, err := lru.New[string, *CompletionResponse](size)
	if err != nil {
		return nil, err
	}
	return &cachingClient{
		inner:  client,
		cache:  cache,
		logger: logging.OrNop(logger),
	}, nil
}

func (c *cachingClient) Model() string { return c.inner.Model() }

func (c *cachingClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if req.Temperature != 0 {
		return c.inner.Complete(ctx, req)
	}

	key, ok := cacheKey(req)
	if ok {
		if cached, hit := c.cache.Get(key); hit {
			c.logger.Debug("prompt cache hit key=%s", key[:12])
			clone := *cached
			clone.FromCache = true
			return &clone, nil
		}
	}

	resp, err := c.inner.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if ok {
		c.cache.Add(key, resp)
	}
	return resp, nil
}

func cacheKey(req CompletionRequest) (string, bool) {
	payload, err := json.Marshal(struct {
		Model    string
		Messages []Message
		Tools    []ToolDefinition
		Choice   string
		Max      int
	}{req.Model, req.Messages, req.Tools, req.ToolChoice, req.MaxTokens})
	if err != nil {
		return "", false
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), true
}
