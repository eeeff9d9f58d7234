package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNormalizeDefaults(t *testing.T) {
	var cfg Config
	cfg.Normalize()

	if cfg.LLMModel == "" || cfg.EmbeddingModel == "" {
		t.Fatalf("models not defaulted: %+v", cfg)
	}
	if cfg.ReuseThreshold != 0.85 {
		t.Fatalf("reuse threshold %f", cfg.ReuseThreshold)
	}
	if cfg.KnowledgeThreshold != 0.65 {
		t.Fatalf("knowledge threshold %f", cfg.KnowledgeThreshold)
	}
	if cfg.HybridVectorWeight != 0.6 || cfg.HybridTextWeight != 0.4 {
		t.Fatalf("hybrid weights %f/%f", cfg.HybridVectorWeight, cfg.HybridTextWeight)
	}
	if cfg.WorkingTTL.Std() != 2*time.Hour {
		t.Fatalf("working ttl %s", cfg.WorkingTTL.Std())
	}
	if cfg.HandoffTTL.Std() != 5*time.Minute {
		t.Fatalf("handoff ttl %s", cfg.HandoffTTL.Std())
	}
	if cfg.KnowledgeTTL.Std() != 7*24*time.Hour {
		t.Fatalf("knowledge ttl %s", cfg.KnowledgeTTL.Std())
	}
	if cfg.MaxIterations != 8 {
		t.Fatalf("max iterations %d", cfg.MaxIterations)
	}
	if cfg.EmbeddingDimensions != 1024 {
		t.Fatalf("embedding dimensions %d", cfg.EmbeddingDimensions)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "otto-config.json")
	seed := map[string]any{
		"api_key":     "file-key",
		"llm_model":   "file-model",
		"working_ttl": "30m",
	}
	data, _ := json.Marshal(seed)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("OTTO_API_KEY", "env-key")
	t.Setenv("OTTO_MODEL", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OTTO_BASE_URL", "")
	t.Setenv("TAVILY_API_KEY", "")
	t.Setenv("OTTO_DISCOVERY", "true")
	t.Setenv("OTTO_PROMPT_CACHE", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	// Env overrides file.
	if cfg.APIKey != "env-key" {
		t.Fatalf("api key %q", cfg.APIKey)
	}
	if cfg.LLMModel != "file-model" {
		t.Fatalf("model %q", cfg.LLMModel)
	}
	if cfg.WorkingTTL.Std() != 30*time.Minute {
		t.Fatalf("working ttl %s", cfg.WorkingTTL.Std())
	}
	if !cfg.DiscoveryEnabled {
		t.Fatal("discovery env flag ignored")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("OTTO_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OTTO_BASE_URL", "")
	t.Setenv("OTTO_MODEL", "")
	t.Setenv("TAVILY_API_KEY", "")
	t.Setenv("OTTO_DISCOVERY", "")
	t.Setenv("OTTO_PROMPT_CACHE", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DiscoveryEnabled {
		t.Fatal("discovery should default off")
	}
	if !cfg.PromptCacheEnabled {
		t.Fatal("prompt cache should default on")
	}
}

func TestDurationJSONRoundTrip(t *testing.T) {
	in := Duration(90 * time.Second)
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out Duration
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Fatalf("round trip %s -> %s", in.Std(), out.Std())
	}
	// Bare numbers parse as nanoseconds for backward compatibility.
	if err := json.Unmarshal([]byte("1000000000"), &out); err != nil {
		t.Fatal(err)
	}
	if out.Std() != time.Second {
		t.Fatalf("numeric form %s", out.Std())
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("OTTO_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OTTO_BASE_URL", "")
	t.Setenv("OTTO_MODEL", "")
	t.Setenv("TAVILY_API_KEY", "")
	t.Setenv("OTTO_DISCOVERY", "")
	t.Setenv("OTTO_PROMPT_CACHE", "")

	path := filepath.Join(t.TempDir(), "cfg.json")
	cfg := Default()
	cfg.APIKey = "k"
	cfg.LLMModel = "custom-model"
	if err := Save(cfg, path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.LLMModel != "custom-model" || loaded.APIKey != "k" {
		t.Fatalf("got %+v", loaded)
	}
}
