// Package agent implements the bounded LLM reasoning loop, the multi-step
// planner, and the episodic summarizer.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"otto/internal/llm"
	"otto/internal/logging"
	"otto/internal/tools"
)

const defaultMaxIterations = 8

const systemPrompt = `You are Otto, a task and project assistant. Use the
available tools to read and change the user's tasks, projects, and memory.
Prefer acting over asking; only ask when a reference is genuinely ambiguous.
Answer concisely in plain text.`

// Loop runs bounded tool-using completions.
type Loop struct {
	client        llm.Client
	executor      *tools.Executor
	registry      *tools.Registry
	maxIterations int
	llmTimeout    time.Duration
	logger        logging.Logger
}

// NewLoop builds a Loop.
func NewLoop(client llm.Client, executor *tools.Executor, registry *tools.Registry, maxIterations int, llmTimeout time.Duration, logger logging.Logger) *Loop {
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	if llmTimeout == 0 {
		llmTimeout = 60 * time.Second
	}
	return &Loop{
		client:        client,
		executor:      executor,
		registry:      registry,
		maxIterations: maxIterations,
		llmTimeout:    llmTimeout,
		logger:        logging.OrNop(logger),
	}
}

// Reply is the loop's outcome.
type Reply struct {
	Text      string
	Truncated bool // iteration limit reached before a final answer
}

// Run executes the reasoning loop: complete, execute requested tools,
// compress their results, append, repeat. Tool failures become structured
// tool errors the model can recover from.
func (l *Loop) Run(ctx context.Context, memoryContext, userText string, history []llm.Message, rctx *tools.RunContext) (Reply, error) {
	system := systemPrompt
	if memoryContext != "" {
		system += "\n\n" + memoryContext
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: system, CacheControl: true})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: userText})

	catalogue := l.registry.Definitions(nil)

	var lastText string
	for iteration := 0; iteration < l.maxIterations; iteration++ {
		resp, err := l.complete(ctx, messages, catalogue)
		if err != nil {
			return Reply{}, err
		}
		if resp.Content != "" {
			lastText = resp.Content
		}
		if len(resp.ToolCalls) == 0 {
			return Reply{Text: resp.Content}, nil
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			messages = append(messages, l.runToolCall(ctx, call, rctx))
		}
	}

	l.logger.Warn("agent loop hit iteration limit (%d)", l.maxIterations)
	if lastText == "" {
		lastText = "I couldn't finish that within my step budget. Could you narrow the request?"
	}
	return Reply{Text: lastText, Truncated: true}, nil
}

func (l *Loop) complete(ctx context.Context, messages []llm.Message, catalogue []llm.ToolDefinition) (*llm.CompletionResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.llmTimeout)
	defer cancel()
	return l.client.Complete(callCtx, llm.CompletionRequest{
		Messages: messages,
		Tools:    catalogue,
	})
}

func (l *Loop) runToolCall(ctx context.Context, call llm.ToolCall, rctx *tools.RunContext) llm.Message {
	args, err := decodeArgs(call.Args)
	if err != nil {
		l.logger.Warn("malformed tool call %s: %v", call.Name, err)
		return toolErrorMessage(call.ID, fmt.Sprintf("invalid arguments for %s: %v", call.Name, err))
	}

	content, err := l.executor.Execute(ctx, call.Name, args, rctx)
	if err != nil {
		return toolErrorMessage(call.ID, fmt.Sprintf("%s failed: %v", call.Name, err))
	}
	return llm.Message{
		Role:       "tool",
		ToolCallID: call.ID,
		Content:    tools.CompressResult(call.Name, content),
	}
}

// decodeArgs parses tool-call arguments, repairing malformed JSON when the
// model emits almost-JSON.
func decodeArgs(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err == nil {
		return args, nil
	}
	repaired, repairErr := jsonrepair.JSONRepair(raw)
	if repairErr != nil {
		return nil, fmt.Errorf("unparseable arguments: %w", repairErr)
	}
	if err := json.Unmarshal([]byte(repaired), &args); err != nil {
		return nil, fmt.Errorf("arguments not an object: %w", err)
	}
	return args, nil
}

func toolErrorMessage(callID, message string) llm.Message {
	payload, _ := json.Marshal(map[string]any{"error": message})
	return llm.Message{Role: "tool", ToolCallID: callID, Content: string(payload)}
}
