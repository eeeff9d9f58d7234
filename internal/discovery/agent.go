// Package discovery implements the tier-4 agent: knowledge-cache lookup,
// discovery reuse, and fresh external capability discovery.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"golang.org/x/sync/semaphore"

	ottoerrors "otto/internal/errors"
	"otto/internal/llm"
	"otto/internal/logging"
	"otto/internal/mcp"
	"otto/internal/memory"
	"otto/internal/websearch"
)

// Response sources.
const (
	SourceKnowledgeCache = "knowledge_cache"
	SourceDiscoveryReuse = "discovery_reuse"
	SourceNewDiscovery   = "new_discovery"
)

// webServer is the pseudo-server name for the built-in web search.
const webServer = "web"

// summarizeAbove is the raw-result size past which a structured summary is
// generated and cached alongside the raw text.
const summarizeAbove = 800

// Response is the discovery agent's answer.
type Response struct {
	Source string `json:"source"`
	Result string `json:"result"`
	Server string `json:"server,omitempty"`
}

// Config tunes the agent.
type Config struct {
	ReuseThreshold   float64 // cache hit and discovery reuse, inclusive
	ExternalTimeout  time.Duration
	LLMTimeout       time.Duration
	MaxExternalCalls int64 // concurrent external executions, process-wide
}

// Agent serves requests that built-in tools cannot.
type Agent struct {
	cfg      Config
	mem      *memory.Manager
	client   llm.Client
	sessions *mcp.SessionManager
	search   websearch.Searcher // nil disables the web pseudo-server
	external *semaphore.Weighted
	logger   logging.Logger
}

// NewAgent builds a discovery Agent.
func NewAgent(cfg Config, mem *memory.Manager, client llm.Client, sessions *mcp.SessionManager, search websearch.Searcher, logger logging.Logger) *Agent {
	if cfg.ReuseThreshold == 0 {
		cfg.ReuseThreshold = 0.85
	}
	if cfg.ExternalTimeout == 0 {
		cfg.ExternalTimeout = 30 * time.Second
	}
	if cfg.LLMTimeout == 0 {
		cfg.LLMTimeout = 60 * time.Second
	}
	if cfg.MaxExternalCalls <= 0 {
		cfg.MaxExternalCalls = 8
	}
	return &Agent{
		cfg:      cfg,
		mem:      mem,
		client:   client,
		sessions: sessions,
		search:   search,
		external: semaphore.NewWeighted(cfg.MaxExternalCalls),
		logger:   logging.OrNop(logger),
	}
}

// Handle runs the three-way decision: cache hit, discovery reuse, fresh
// discovery.
func (a *Agent) Handle(ctx context.Context, request, userID string) (*Response, error) {
	// 1. Knowledge cache.
	hits, err := a.mem.SearchKnowledge(ctx, userID, request, a.cfg.ReuseThreshold, 1)
	if err != nil {
		a.logger.Warn("cache lookup failed: %v", err)
	} else if len(hits) > 0 {
		entry := hits[0].Entry
		a.mem.TouchKnowledge(entry.ID)
		a.logger.Info("cache hit for %q (similarity %.3f)", request, hits[0].Similarity)
		result := entry.Summary
		if result == "" {
			result = entry.Results
		}
		return &Response{Source: SourceKnowledgeCache, Result: result}, nil
	}

	// 2. Discovery reuse.
	record, similarity, err := a.mem.FindSimilarDiscovery(ctx, userID, request, a.cfg.ReuseThreshold)
	if err != nil {
		a.logger.Warn("discovery lookup failed: %v", err)
	} else if record != nil {
		a.logger.Info("reusing discovery %s for %q (similarity %.3f)", record.ID, request, similarity)
		result, execErr := a.executeSolution(ctx, record.Solution)
		if execErr == nil {
			a.mem.TouchDiscovery(record.ID)
			return &Response{
				Source: SourceDiscoveryReuse,
				Result: result,
				Server: record.Solution.Server,
			}, nil
		}
		a.logger.Warn("recorded solution failed, falling through to fresh discovery: %v", execErr)
	}

	// 3. Fresh discovery.
	return a.discover(ctx, request, userID)
}

func (a *Agent) discover(ctx context.Context, request, userID string) (*Response, error) {
	solution, err := a.chooseSolution(ctx, request)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, execErr := a.executeSolution(ctx, *solution)
	elapsed := time.Since(start)

	if _, logErr := a.mem.LogDiscovery(ctx, userID, request, *solution, execErr == nil, elapsed); logErr != nil {
		a.logger.Warn("record discovery: %v", logErr)
	}
	if execErr != nil {
		return nil, ottoerrors.Wrap(ottoerrors.KindTransport,
			"I couldn't complete that lookup right now. Please try again.", execErr)
	}

	summary := ""
	if len(result) > summarizeAbove {
		summary = a.summarize(ctx, request, result)
	}
	if _, err := a.mem.CacheKnowledge(ctx, userID, request, result, summary, solution.Server, 0); err != nil {
		a.logger.Warn("cache discovery result: %v", err)
	}

	out := summary
	if out == "" {
		out = result
	}
	return &Response{Source: SourceNewDiscovery, Result: out, Server: solution.Server}, nil
}

// chooseSolution asks the model to pick (server, tool, arguments) from the
// union of available tools.
func (a *Agent) chooseSolution(ctx context.Context, request string) (*memory.Solution, error) {
	catalogue := a.describeTools(ctx)
	if catalogue == "" {
		return nil, ottoerrors.New(ottoerrors.KindNotFound, "no external tools are available")
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.LLMTimeout)
	defer cancel()
	resp, err := a.client.Complete(callCtx, llm.CompletionRequest{
		Temperature: 0,
		Messages: []llm.Message{
			{Role: "system", Content: `Pick the single best tool for the request.
Respond with strict JSON only: {"server":"...","tool":"...","arguments":{...}}.`},
			{Role: "user", Content: "Available tools:\n" + catalogue + "\n\nRequest: " + request},
		},
	})
	if err != nil {
		return nil, err
	}

	raw := strings.TrimSpace(resp.Content)
	if fixed, repairErr := jsonrepair.JSONRepair(raw); repairErr == nil {
		raw = fixed
	}
	var solution memory.Solution
	if err := json.Unmarshal([]byte(raw), &solution); err != nil {
		return nil, ottoerrors.Wrap(ottoerrors.KindValidation, "model produced an unusable tool plan", err)
	}
	if solution.Server == "" || solution.Tool == "" {
		return nil, ottoerrors.New(ottoerrors.KindValidation, "model produced an incomplete tool plan")
	}
	return &solution, nil
}

func (a *Agent) describeTools(ctx context.Context) string {
	var b strings.Builder
	if a.search != nil {
		b.WriteString("- server=web tool=web_search: search the public web; arguments: {\"query\": string}\n")
	}
	for _, name := range a.sessions.Servers() {
		client, err := a.sessions.Acquire(ctx, name)
		if err != nil {
			a.logger.Warn("server %s unavailable: %v", name, err)
			continue
		}
		infos, err := client.ListTools(ctx)
		a.sessions.Release(name)
		if err != nil {
			a.logger.Warn("list tools on %s: %v", name, err)
			continue
		}
		for _, info := range infos {
			fmt.Fprintf(&b, "- server=%s tool=%s: %s\n", name, info.Name, info.Description)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *Agent) executeSolution(ctx context.Context, solution memory.Solution) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.cfg.ExternalTimeout)
	defer cancel()

	// Waiting for a slot counts against the external deadline.
	if err := a.external.Acquire(callCtx, 1); err != nil {
		return "", ottoerrors.Wrap(ottoerrors.KindTimeout, "external call slot", err)
	}
	defer a.external.Release(1)

	if solution.Server == webServer {
		if a.search == nil {
			return "", ottoerrors.New(ottoerrors.KindNotFound, "web search is not configured")
		}
		query, _ := solution.Arguments["query"].(string)
		if query == "" {
			return "", ottoerrors.New(ottoerrors.KindValidation, "web search needs a query argument")
		}
		results, err := a.search.Search(callCtx, query, 5)
		if err != nil {
			return "", err
		}
		return websearch.Render(results), nil
	}

	client, err := a.sessions.Acquire(callCtx, solution.Server)
	if err != nil {
		return "", err
	}
	defer a.sessions.Release(solution.Server)

	result, err := client.CallTool(callCtx, solution.Tool, solution.Arguments)
	if err != nil {
		return "", err
	}
	if result.IsError {
		return "", ottoerrors.New(ottoerrors.KindTransport,
			"tool reported an error: "+result.Text())
	}
	return result.Text(), nil
}

// summarize produces the structured digest stored next to oversized raw
// results. A failed summarization just means the raw text is cached alone.
func (a *Agent) summarize(ctx context.Context, request, raw string) string {
	callCtx, cancel := context.WithTimeout(ctx, a.cfg.LLMTimeout)
	defer cancel()
	resp, err := a.client.Complete(callCtx, llm.CompletionRequest{
		Temperature: 0,
		MaxTokens:   400,
		Messages: []llm.Message{
			{Role: "system", Content: `Summarize search results. Structure:
Key findings: bullet list.
Sources: main sources with URLs.
Answer: one sentence directly answering the request.`},
			{Role: "user", Content: "Request: " + request + "\n\nResults:\n" + raw},
		},
	})
	if err != nil {
		a.logger.Warn("result summarization failed: %v", err)
		return ""
	}
	return strings.TrimSpace(resp.Content)
}
