// Package app wires the full assistant: adapters, memory, tools, agents, and
// the router. Everything hangs off an explicit Core handle; there are no
// package-level singletons.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"otto/internal/agent"
	"otto/internal/config"
	"otto/internal/discovery"
	"otto/internal/embedding"
	"otto/internal/entity"
	"otto/internal/llm"
	"otto/internal/logging"
	"otto/internal/mcp"
	"otto/internal/memory"
	"otto/internal/router"
	"otto/internal/tools"
	"otto/internal/vectorstore"
	"otto/internal/websearch"
)

// Core owns every component for one process.
type Core struct {
	cfg      config.Config
	logger   logging.Logger
	router   *router.Router
	memory   *memory.Manager
	store    *entity.MemStore
	sessions *mcp.SessionManager
	vectors  vectorstore.Store

	cancelSweeper context.CancelFunc
}

// New builds a Core from config. The registry, metrics, and background
// sweeper are all started here; Close tears them down.
func New(cfg config.Config, registerer prometheus.Registerer) (*Core, error) {
	cfg.Normalize()
	logger := logging.NewComponentLogger("Core")
	if cfg.Verbose {
		logging.SetLevel(logging.DEBUG)
	} else {
		logging.SetLevel(logging.INFO)
	}

	// Adapters.
	baseClient, err := llm.NewOpenAIClient(llm.Options{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.LLMModel,
		Timeout: cfg.LLMTimeout.Std(),
		Logger:  logging.NewComponentLogger("LLM"),
	})
	if err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}
	client := llm.WithRetry(baseClient, 2, logging.NewComponentLogger("LLM"))
	if cfg.PromptCacheEnabled {
		client, err = llm.WithPromptCache(client, cfg.PromptCacheSize, logging.NewComponentLogger("LLM"))
		if err != nil {
			return nil, fmt.Errorf("prompt cache: %w", err)
		}
	}

	summaryClient, err := llm.NewOpenAIClient(llm.Options{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.SummaryModel,
		Timeout: cfg.LLMTimeout.Std(),
		Logger:  logging.NewComponentLogger("Summarizer"),
	})
	if err != nil {
		return nil, fmt.Errorf("summary client: %w", err)
	}

	embedder, err := embedding.NewOpenAIEmbedder(embedding.Config{
		BaseURL:    cfg.EmbeddingBaseURL,
		APIKey:     cfg.EmbeddingAPIKey,
		Model:      cfg.EmbeddingModel,
		Dimensions: cfg.EmbeddingDimensions,
		Timeout:    cfg.EmbeddingTimeout.Std(),
		Logger:     logging.NewComponentLogger("Embedding"),
	})
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}

	vectors, err := vectorstore.New(cfg.PersistPath, embedder, logging.NewComponentLogger("VectorStore"))
	if err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}

	// Memory fabric and entity store.
	mem := memory.NewManager(memory.Config{
		WorkingTTL:         cfg.WorkingTTL.Std(),
		HandoffTTL:         cfg.HandoffTTL.Std(),
		KnowledgeTTL:       cfg.KnowledgeTTL.Std(),
		ReuseThreshold:     cfg.ReuseThreshold,
		KnowledgeThreshold: cfg.KnowledgeThreshold,
	}, vectors, embedder, logging.NewComponentLogger("Memory"))

	store := entity.NewMemStore(embedder, cfg.HybridVectorWeight, cfg.HybridTextWeight)

	// Tools.
	registry := tools.NewRegistry(logging.NewComponentLogger("Registry"))
	tools.RegisterBuiltins(registry, cfg.KnowledgeThreshold)
	executor := tools.NewExecutor(registry, cfg.StoreTimeout.Std(), logging.NewComponentLogger("Executor"))

	// External servers and discovery.
	sessions := mcp.NewSessionManager(cfg.Servers, cfg.ExternalTimeout.Std(), logging.NewComponentLogger("MCP"))
	var searcher websearch.Searcher
	if cfg.TavilyAPIKey != "" {
		searcher, err = websearch.NewTavily(cfg.TavilyAPIKey, cfg.ExternalTimeout.Std(), logging.NewComponentLogger("WebSearch"))
		if err != nil {
			return nil, fmt.Errorf("web search: %w", err)
		}
	}
	discoveryAgent := discovery.NewAgent(discovery.Config{
		ReuseThreshold:   cfg.ReuseThreshold,
		ExternalTimeout:  cfg.ExternalTimeout.Std(),
		LLMTimeout:       cfg.LLMTimeout.Std(),
		MaxExternalCalls: int64(cfg.MaxExternalCalls),
	}, mem, client, sessions, searcher, logging.NewComponentLogger("Discovery"))

	// Agents.
	summarizer := agent.NewSummarizer(summaryClient, mem, logging.NewComponentLogger("Summarizer"))
	loop := agent.NewLoop(client, executor, registry, cfg.MaxIterations, cfg.LLMTimeout.Std(), logging.NewComponentLogger("Agent"))

	research := func(ctx context.Context, query, userID string) (string, error) {
		resp, err := discoveryAgent.Handle(ctx, query, userID)
		if err != nil {
			return "", err
		}
		return resp.Result, nil
	}
	planner := agent.NewPlanner(client, executor, research, cfg.LLMTimeout.Std(), logging.NewComponentLogger("Planner"))

	newRunContext := func(sessionID, userID string) *tools.RunContext {
		return &tools.RunContext{
			SessionID: sessionID,
			UserID:    userID,
			Memory:    mem,
			Tasks:     store.Tasks(),
			Projects:  store.Projects(),
			Summarize: summarizer.Notify,
		}
	}

	var metrics *router.Metrics
	if registerer != nil {
		metrics = router.MustNewMetrics(registerer)
	}

	rt := router.New(router.Config{
		DiscoveryEnabled:    cfg.DiscoveryEnabled,
		MaxInflightRequests: int64(cfg.MaxInflightRequests),
	}, executor, loop, planner, discoveryAgent, mem, metrics, newRunContext, logging.NewComponentLogger("Router"))

	sweepCtx, cancel := context.WithCancel(context.Background())
	mem.StartSweeper(sweepCtx, cfg.SweepInterval.Std())

	logger.Info("core initialized model=%s discovery=%v", cfg.LLMModel, cfg.DiscoveryEnabled)
	return &Core{
		cfg:           cfg,
		logger:        logger,
		router:        rt,
		memory:        mem,
		store:         store,
		sessions:      sessions,
		vectors:       vectors,
		cancelSweeper: cancel,
	}, nil
}

// Handle routes one utterance.
func (c *Core) Handle(ctx context.Context, req router.Request) (*router.Response, error) {
	return c.router.Handle(ctx, req)
}

// Memory exposes the memory manager for seeding and diagnostics.
func (c *Core) Memory() *memory.Manager { return c.memory }

// Config returns the effective configuration.
func (c *Core) Config() config.Config { return c.cfg }

// Close stops background work and closes external sessions in reverse
// acquisition order.
func (c *Core) Close() {
	c.cancelSweeper()
	c.sessions.Shutdown()
	if err := c.vectors.Close(); err != nil {
		c.logger.Warn("close vector store: %v", err)
	}
}
