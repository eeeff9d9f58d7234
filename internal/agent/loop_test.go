package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"otto/internal/embedding"
	"otto/internal/entity"
	"otto/internal/llm"
	"otto/internal/logging"
	"otto/internal/memory"
	"otto/internal/tools"
	"otto/internal/vectorstore"
)

type fixture struct {
	registry *tools.Registry
	executor *tools.Executor
	rctx     *tools.RunContext
	store    *entity.MemStore
	mem      *memory.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	embedder := embedding.NewMockEmbedder(8)
	vectors, err := vectorstore.New("", embedder, logging.Nop())
	if err != nil {
		t.Fatal(err)
	}
	mem := memory.NewManager(memory.Config{}, vectors, embedder, logging.Nop())
	store := entity.NewMemStore(embedder, 0.6, 0.4)

	registry := tools.NewRegistry(logging.Nop())
	tools.RegisterBuiltins(registry, 0.65)
	executor := tools.NewExecutor(registry, time.Second, logging.Nop())

	return &fixture{
		registry: registry,
		executor: executor,
		mem:      mem,
		store:    store,
		rctx: &tools.RunContext{
			SessionID: "sess_1",
			UserID:    "u1",
			Memory:    mem,
			Tasks:     store.Tasks(),
			Projects:  store.Projects(),
		},
	}
}

func TestLoopPlainAnswer(t *testing.T) {
	f := newFixture(t)
	client := llm.NewMockClient(&llm.CompletionResponse{Content: "All clear.", FinishReason: "stop"})
	loop := NewLoop(client, f.executor, f.registry, 8, time.Second, logging.Nop())

	reply, err := loop.Run(context.Background(), "", "how are things", nil, f.rctx)
	if err != nil {
		t.Fatal(err)
	}
	if reply.Text != "All clear." || reply.Truncated {
		t.Fatalf("got %+v", reply)
	}
	if client.Calls() != 1 {
		t.Fatalf("got %d calls", client.Calls())
	}
}

func TestLoopExecutesToolCalls(t *testing.T) {
	f := newFixture(t)
	client := llm.NewMockClient(
		&llm.CompletionResponse{
			ToolCalls: []llm.ToolCall{{
				ID:   "call_1",
				Name: "create_task",
				Args: `{"title": "Write release notes"}`,
			}},
		},
		&llm.CompletionResponse{Content: "Created the task.", FinishReason: "stop"},
	)
	loop := NewLoop(client, f.executor, f.registry, 8, time.Second, logging.Nop())

	reply, err := loop.Run(context.Background(), "", "remind me to write release notes", nil, f.rctx)
	if err != nil {
		t.Fatal(err)
	}
	if reply.Text != "Created the task." {
		t.Fatalf("got %q", reply.Text)
	}

	found, err := f.store.Tasks().Find(context.Background(), entity.TaskFilter{UserID: "u1"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].Title != "Write release notes" {
		t.Fatalf("got %+v", found)
	}

	// The second request must carry the tool result message back to the model.
	second := client.Requests()[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Role != "tool" || last.ToolCallID != "call_1" {
		t.Fatalf("got final message %+v", last)
	}
}

func TestLoopRepairsMalformedArguments(t *testing.T) {
	f := newFixture(t)
	client := llm.NewMockClient(
		&llm.CompletionResponse{
			ToolCalls: []llm.ToolCall{{
				ID:   "call_1",
				Name: "create_task",
				// Trailing comma and single quotes; jsonrepair territory.
				Args: `{'title': 'Fix the build',}`,
			}},
		},
		&llm.CompletionResponse{Content: "Done.", FinishReason: "stop"},
	)
	loop := NewLoop(client, f.executor, f.registry, 8, time.Second, logging.Nop())

	if _, err := loop.Run(context.Background(), "", "fix the build", nil, f.rctx); err != nil {
		t.Fatal(err)
	}
	found, err := f.store.Tasks().Find(context.Background(), entity.TaskFilter{UserID: "u1"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].Title != "Fix the build" {
		t.Fatalf("repaired arguments not applied, got %+v", found)
	}
}

func TestLoopToolFailureFeedsBackAsError(t *testing.T) {
	f := newFixture(t)
	client := llm.NewMockClient(
		&llm.CompletionResponse{
			ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "no_such_tool", Args: "{}"}},
		},
		&llm.CompletionResponse{Content: "That tool is unavailable.", FinishReason: "stop"},
	)
	loop := NewLoop(client, f.executor, f.registry, 8, time.Second, logging.Nop())

	reply, err := loop.Run(context.Background(), "", "do something odd", nil, f.rctx)
	if err != nil {
		t.Fatal(err)
	}
	if reply.Text != "That tool is unavailable." {
		t.Fatalf("got %q", reply.Text)
	}

	second := client.Requests()[1]
	last := second.Messages[len(second.Messages)-1]
	var payload map[string]string
	if err := json.Unmarshal([]byte(last.Content), &payload); err != nil {
		t.Fatalf("tool error not structured: %q", last.Content)
	}
	if payload["error"] == "" {
		t.Fatalf("got %v", payload)
	}
}

func TestLoopIterationLimit(t *testing.T) {
	f := newFixture(t)
	// The model never stops asking for tools.
	client := llm.NewMockClient(&llm.CompletionResponse{
		ToolCalls: []llm.ToolCall{{ID: "call_x", Name: "list_tasks", Args: "{}"}},
	})
	loop := NewLoop(client, f.executor, f.registry, 3, time.Second, logging.Nop())

	reply, err := loop.Run(context.Background(), "", "loop forever", nil, f.rctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reply.Truncated {
		t.Fatal("expected the truncated flag")
	}
	if reply.Text == "" {
		t.Fatal("expected a fallback reply")
	}
	if client.Calls() != 3 {
		t.Fatalf("got %d calls, want 3", client.Calls())
	}
}

func TestLoopMemoryContextInSystemMessage(t *testing.T) {
	f := newFixture(t)
	client := llm.NewMockClient(&llm.CompletionResponse{Content: "ok", FinishReason: "stop"})
	loop := NewLoop(client, f.executor, f.registry, 8, time.Second, logging.Nop())

	if _, err := loop.Run(context.Background(), "Current project: onboarding", "hi", nil, f.rctx); err != nil {
		t.Fatal(err)
	}
	system := client.LastRequest().Messages[0]
	if system.Role != "system" || !strings.Contains(system.Content, "Current project: onboarding") {
		t.Fatalf("got system message %+v", system)
	}
	if !system.CacheControl {
		t.Fatal("system message should be cache-marked")
	}
}
