// Package tools declares the built-in tool catalogue and the executor that
// applies mutation side effects.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"otto/internal/entity"
	"otto/internal/llm"
	"otto/internal/memory"
)

// SummaryTrigger is notified after entity mutations so the summarizer can
// decide whether to generate a digest. Implementations must not block.
type SummaryTrigger func(entityType, entityID, title string, activityCount int, contentChanged bool)

// RunContext carries the per-request state every tool executes against.
type RunContext struct {
	SessionID string
	UserID    string

	Memory   *memory.Manager
	Tasks    entity.TaskStore
	Projects entity.ProjectStore

	// Summarize may be nil when no summarizer is attached.
	Summarize SummaryTrigger
}

// Mutation describes an entity change for the executor's side effects.
type Mutation struct {
	EntityType    string // task | project
	EntityID      string
	Title         string
	Action        string // episodic action name, e.g. task_completed
	Description   string // episodic description
	ActivityCount int
	// ContentChanged marks project description/note changes, which trigger
	// summarization regardless of activity count.
	ContentChanged bool

	WorkingType  string
	WorkingValue string
}

// Result is a tool's output plus its optional mutation record.
type Result struct {
	Content  string
	Mutation *Mutation
}

// Tool is one callable capability.
type Tool interface {
	Definition() llm.ToolDefinition
	Execute(ctx context.Context, args map[string]any, rctx *RunContext) (*Result, error)
}

// Helpers shared by tool implementations.

func textResult(content string) *Result { return &Result{Content: content} }

func jsonResult(v any) (*Result, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return &Result{Content: string(data)}, nil
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

func floatArg(args map[string]any, key string, fallback float64) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}

func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
