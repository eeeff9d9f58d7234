// Package config carries the user-configurable settings shared across otto
// binaries: provider credentials, routing thresholds, TTLs, and deadlines.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	DefaultLLMProvider  = "openai"
	DefaultLLMModel     = "gpt-4o"
	DefaultSummaryModel = "gpt-4o-mini"
	DefaultLLMBaseURL   = "https://api.openai.com/v1"

	DefaultEmbeddingModel      = "text-embedding-3-large"
	DefaultEmbeddingDimensions = 1024

	DefaultMaxIterations = 8
	DefaultMaxTokens     = 4096

	// Similarity thresholds. Cache hits and discovery reuse require the strict
	// threshold; the agent-level search_knowledge tool is deliberately looser.
	DefaultReuseThreshold     = 0.85
	DefaultKnowledgeThreshold = 0.65

	DefaultHybridVectorWeight = 0.6
	DefaultHybridTextWeight   = 0.4

	DefaultWorkingTTL      = 2 * time.Hour
	DefaultHandoffTTL      = 5 * time.Minute
	DefaultKnowledgeTTL    = 7 * 24 * time.Hour
	DefaultSweepInterval   = 10 * time.Minute
	DefaultSummarizerModel = DefaultSummaryModel

	DefaultLLMTimeout       = 60 * time.Second
	DefaultExternalTimeout  = 30 * time.Second
	DefaultEmbeddingTimeout = 10 * time.Second
	DefaultStoreTimeout     = 5 * time.Second
	DefaultSummarizerBudget = 20 * time.Second

	DefaultMaxInflightRequests = 32
	DefaultMaxExternalCalls    = 8

	DefaultPromptCacheSize = 64
)

// ServerConfig describes one external tool server.
type ServerConfig struct {
	Name    string            `json:"name"`
	Command string            `json:"command,omitempty"` // stdio child process
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	SSEURL  string            `json:"sse_url,omitempty"` // SSE fallback endpoint
}

// Config captures every tunable the core reads. Zero values are replaced by
// defaults in Normalize.
type Config struct {
	LLMProvider  string `json:"llm_provider"`
	LLMModel     string `json:"llm_model"`
	SummaryModel string `json:"summary_model"`
	APIKey       string `json:"api_key"`
	BaseURL      string `json:"base_url"`

	EmbeddingModel      string `json:"embedding_model"`
	EmbeddingBaseURL    string `json:"embedding_base_url"`
	EmbeddingAPIKey     string `json:"embedding_api_key"`
	EmbeddingDimensions int    `json:"embedding_dimensions"`

	TavilyAPIKey string `json:"tavily_api_key"`

	MaxIterations int `json:"max_iterations"`
	MaxTokens     int `json:"max_tokens"`

	ReuseThreshold     float64 `json:"reuse_threshold"`
	KnowledgeThreshold float64 `json:"knowledge_threshold"`
	HybridVectorWeight float64 `json:"hybrid_vector_weight"`
	HybridTextWeight   float64 `json:"hybrid_text_weight"`

	WorkingTTL    Duration `json:"working_ttl"`
	HandoffTTL    Duration `json:"handoff_ttl"`
	KnowledgeTTL  Duration `json:"knowledge_ttl"`
	SweepInterval Duration `json:"sweep_interval"`

	LLMTimeout       Duration `json:"llm_timeout"`
	ExternalTimeout  Duration `json:"external_timeout"`
	EmbeddingTimeout Duration `json:"embedding_timeout"`
	StoreTimeout     Duration `json:"store_timeout"`

	MaxInflightRequests int `json:"max_inflight_requests"`
	MaxExternalCalls    int `json:"max_external_calls"`

	DiscoveryEnabled   bool `json:"discovery_enabled"`
	PromptCacheEnabled bool `json:"prompt_cache_enabled"`
	PromptCacheSize    int  `json:"prompt_cache_size"`

	Servers []ServerConfig `json:"servers,omitempty"`

	PersistPath string `json:"persist_path"`
	Verbose     bool   `json:"verbose"`
}

// Duration wraps time.Duration with JSON string support ("2h", "5m").
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*d = Duration(time.Duration(v))
		return nil
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
}

// Default returns a Config populated with every default.
func Default() Config {
	cfg := Config{
		PromptCacheEnabled: true,
	}
	cfg.Normalize()
	return cfg
}

// Normalize replaces zero values with defaults.
func (c *Config) Normalize() {
	if c.LLMProvider == "" {
		c.LLMProvider = DefaultLLMProvider
	}
	if c.LLMModel == "" {
		c.LLMModel = DefaultLLMModel
	}
	if c.SummaryModel == "" {
		c.SummaryModel = DefaultSummaryModel
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultLLMBaseURL
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = DefaultEmbeddingModel
	}
	if c.EmbeddingBaseURL == "" {
		c.EmbeddingBaseURL = c.BaseURL
	}
	if c.EmbeddingAPIKey == "" {
		c.EmbeddingAPIKey = c.APIKey
	}
	if c.EmbeddingDimensions == 0 {
		c.EmbeddingDimensions = DefaultEmbeddingDimensions
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.ReuseThreshold == 0 {
		c.ReuseThreshold = DefaultReuseThreshold
	}
	if c.KnowledgeThreshold == 0 {
		c.KnowledgeThreshold = DefaultKnowledgeThreshold
	}
	if c.HybridVectorWeight == 0 {
		c.HybridVectorWeight = DefaultHybridVectorWeight
	}
	if c.HybridTextWeight == 0 {
		c.HybridTextWeight = DefaultHybridTextWeight
	}
	if c.WorkingTTL == 0 {
		c.WorkingTTL = Duration(DefaultWorkingTTL)
	}
	if c.HandoffTTL == 0 {
		c.HandoffTTL = Duration(DefaultHandoffTTL)
	}
	if c.KnowledgeTTL == 0 {
		c.KnowledgeTTL = Duration(DefaultKnowledgeTTL)
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = Duration(DefaultSweepInterval)
	}
	if c.LLMTimeout == 0 {
		c.LLMTimeout = Duration(DefaultLLMTimeout)
	}
	if c.ExternalTimeout == 0 {
		c.ExternalTimeout = Duration(DefaultExternalTimeout)
	}
	if c.EmbeddingTimeout == 0 {
		c.EmbeddingTimeout = Duration(DefaultEmbeddingTimeout)
	}
	if c.StoreTimeout == 0 {
		c.StoreTimeout = Duration(DefaultStoreTimeout)
	}
	if c.MaxInflightRequests == 0 {
		c.MaxInflightRequests = DefaultMaxInflightRequests
	}
	if c.MaxExternalCalls == 0 {
		c.MaxExternalCalls = DefaultMaxExternalCalls
	}
	if c.PromptCacheSize == 0 {
		c.PromptCacheSize = DefaultPromptCacheSize
	}
}

// Load reads the config file at path (or the default location when empty),
// applies environment overrides, and normalizes.
func Load(path string) (Config, error) {
	cfg := Config{PromptCacheEnabled: true}

	if path == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, ".otto-config.json")
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.Normalize()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("OTTO_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.APIKey == "" {
		c.APIKey = v
	}
	if v := os.Getenv("OTTO_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("OTTO_MODEL"); v != "" {
		c.LLMModel = v
	}
	if v := os.Getenv("TAVILY_API_KEY"); v != "" {
		c.TavilyAPIKey = v
	}
	if v := os.Getenv("OTTO_DISCOVERY"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.DiscoveryEnabled = enabled
		}
	}
	if v := os.Getenv("OTTO_PROMPT_CACHE"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.PromptCacheEnabled = enabled
		}
	}
}

// Save writes the config back to path in indented JSON.
func Save(cfg Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0600)
}
