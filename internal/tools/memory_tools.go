package tools

import (
	"context"
	"strings"
	"time"

	"otto/internal/llm"
	"otto/internal/memory"
	"otto/internal/shared/token"
)

// knowledgeResultBudget caps raw results returned when no summary exists.
const knowledgeResultBudget = 400

// --- search_knowledge ---

type searchKnowledgeTool struct {
	threshold float64
}

// NewSearchKnowledgeTool builds the permissive knowledge lookup used inside
// the agent loop. The threshold is deliberately lower than the cache-hit
// threshold so the model can surface partially relevant knowledge.
func NewSearchKnowledgeTool(threshold float64) Tool {
	if threshold == 0 {
		threshold = 0.65
	}
	return searchKnowledgeTool{threshold: threshold}
}

func (searchKnowledgeTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "search_knowledge",
		Description: "Search previously cached external knowledge by meaning.",
		Parameters: llm.ParameterSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"query": {Type: "string"},
				"limit": {Type: "integer"},
			},
			Required: []string{"query"},
		},
	}
}

func (t searchKnowledgeTool) Execute(ctx context.Context, args map[string]any, rctx *RunContext) (*Result, error) {
	query := strings.TrimSpace(stringArg(args, "query"))
	hits, err := rctx.Memory.SearchKnowledge(ctx, rctx.UserID, query,
		floatArg(args, "threshold", t.threshold), intArg(args, "limit", 5))
	if err != nil {
		return nil, err
	}

	type hit struct {
		Query      string  `json:"query"`
		Content    string  `json:"content"`
		Source     string  `json:"source"`
		Similarity float64 `json:"similarity"`
		CachedAt   string  `json:"cached_at"`
	}
	out := make([]hit, 0, len(hits))
	for _, h := range hits {
		content := h.Entry.Summary
		if content == "" {
			content = token.TruncateToTokens(h.Entry.Results, knowledgeResultBudget)
		}
		out = append(out, hit{
			Query:      h.Entry.Query,
			Content:    content,
			Source:     h.Entry.Source,
			Similarity: h.Similarity,
			CachedAt:   h.Entry.CreatedAt.Format(time.RFC3339),
		})
	}
	return jsonResult(map[string]any{"hits": out, "count": len(out)})
}

// --- list_templates ---

type listTemplatesTool struct{}

func (listTemplatesTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "list_templates",
		Description: "List the user's workflow templates with their phases.",
		Parameters:  llm.ParameterSchema{Type: "object"},
	}
}

func (listTemplatesTool) Execute(ctx context.Context, args map[string]any, rctx *RunContext) (*Result, error) {
	templates := rctx.Memory.ListTemplates(rctx.UserID)
	return jsonResult(map[string]any{"templates": templates, "count": len(templates)})
}

// --- analyze_tool_discoveries ---

type analyzeDiscoveriesTool struct{}

func (analyzeDiscoveriesTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "analyze_tool_discoveries",
		Description: "Analyze recorded discoveries: promotion candidates, repeated query shapes, template candidates, and failure clusters.",
		Parameters:  llm.ParameterSchema{Type: "object"},
	}
}

func (analyzeDiscoveriesTool) Execute(ctx context.Context, args map[string]any, rctx *RunContext) (*Result, error) {
	return jsonResult(AnalyzeDiscoveries(rctx.Memory, rctx.UserID))
}

// DiscoveryAnalysis is the four-way report produced by
// analyze_tool_discoveries.
type DiscoveryAnalysis struct {
	SuggestedTools     []memory.DiscoveryRecord `json:"suggested_tools"`
	AtlasOptimizations []QueryShape             `json:"atlas_optimizations"`
	TemplateCandidates []WorkflowCandidate      `json:"template_candidates"`
	FeatureGaps        []FeatureGap             `json:"feature_gaps"`
}

// QueryShape is a repeated (server, tool) pairing worth a dedicated index or
// built-in shortcut.
type QueryShape struct {
	Server string `json:"server"`
	Tool   string `json:"tool"`
	Count  int    `json:"count"`
}

// WorkflowCandidate is a repeated episodic action sequence that could become
// a procedural template.
type WorkflowCandidate struct {
	Actions []string `json:"actions"`
	Count   int      `json:"count"`
}

// FeatureGap is a cluster of failed discovery requests sharing a keyword.
type FeatureGap struct {
	Keyword  string   `json:"keyword"`
	Requests []string `json:"requests"`
}

const (
	promotionMinUses   = 3
	queryShapeMinCount = 3
	workflowMinRepeats = 2
)

// AnalyzeDiscoveries builds the discovery analysis report.
func AnalyzeDiscoveries(mem *memory.Manager, userID string) DiscoveryAnalysis {
	analysis := DiscoveryAnalysis{
		SuggestedTools: mem.PopularDiscoveries(promotionMinUses, true, 20),
	}

	// Query shapes: (server, tool) pairs used repeatedly across successes.
	shapeCounts := make(map[[2]string]int)
	for _, record := range mem.PopularDiscoveries(1, false, 200) {
		shapeCounts[[2]string{record.Solution.Server, record.Solution.Tool}]++
	}
	for shape, count := range shapeCounts {
		if count >= queryShapeMinCount {
			analysis.AtlasOptimizations = append(analysis.AtlasOptimizations, QueryShape{
				Server: shape[0], Tool: shape[1], Count: count,
			})
		}
	}

	// Template candidates: repeated action bigrams in recent episodic history.
	events := mem.ListEpisodic(userID, memory.EpisodicFilter{Limit: 200})
	bigramCounts := make(map[[2]string]int)
	for i := 0; i+1 < len(events); i++ {
		// Events are newest-first; read pairs in execution order.
		bigramCounts[[2]string{events[i+1].Action, events[i].Action}]++
	}
	for bigram, count := range bigramCounts {
		if count >= workflowMinRepeats && bigram[0] != bigram[1] {
			analysis.TemplateCandidates = append(analysis.TemplateCandidates, WorkflowCandidate{
				Actions: []string{bigram[0], bigram[1]},
				Count:   count,
			})
		}
	}

	// Feature gaps: failed requests grouped by their longest keyword.
	gaps := make(map[string][]string)
	for _, record := range mem.FailedDiscoveries(userID, 100) {
		keyword := dominantKeyword(record.Request)
		if keyword != "" {
			gaps[keyword] = append(gaps[keyword], record.Request)
		}
	}
	for keyword, requests := range gaps {
		if len(requests) >= 2 {
			analysis.FeatureGaps = append(analysis.FeatureGaps, FeatureGap{
				Keyword: keyword, Requests: requests,
			})
		}
	}
	return analysis
}

func dominantKeyword(request string) string {
	longest := ""
	for _, word := range strings.Fields(strings.ToLower(request)) {
		word = strings.Trim(word, `.,!?"'`)
		if len(word) > len(longest) {
			longest = word
		}
	}
	return longest
}

// --- resolve_disambiguation ---

type resolveDisambiguationTool struct{}

func (resolveDisambiguationTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "resolve_disambiguation",
		Description: "Consume the pending disambiguation for this session and return its candidates.",
		Parameters:  llm.ParameterSchema{Type: "object"},
	}
}

func (resolveDisambiguationTool) Execute(ctx context.Context, args map[string]any, rctx *RunContext) (*Result, error) {
	handoff, ok := rctx.Memory.ConsumePending(rctx.SessionID, "assistant")
	if !ok {
		// Losing the race or having nothing pending is a normal outcome.
		return jsonResult(map[string]any{"pending": false})
	}
	return jsonResult(map[string]any{
		"pending": true,
		"type":    handoff.Type,
		"payload": handoff.Payload,
	})
}
