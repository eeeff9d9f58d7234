package tools

import (
	"context"
	"sync"
	"testing"
	"time"

	"otto/internal/embedding"
	"otto/internal/entity"
	"otto/internal/llm"
	"otto/internal/logging"
	"otto/internal/memory"
	"otto/internal/vectorstore"
)

func newTestRunContext(t *testing.T) *RunContext {
	t.Helper()
	embedder := embedding.NewMockEmbedder(8)
	vectors, err := vectorstore.New("", embedder, logging.Nop())
	if err != nil {
		t.Fatal(err)
	}
	mem := memory.NewManager(memory.Config{}, vectors, embedder, logging.Nop())
	store := entity.NewMemStore(embedder, 0.6, 0.4)
	return &RunContext{
		SessionID: "sess_1",
		UserID:    "u1",
		Memory:    mem,
		Tasks:     store.Tasks(),
		Projects:  store.Projects(),
	}
}

func newTestExecutor() *Executor {
	registry := NewRegistry(logging.Nop())
	RegisterBuiltins(registry, 0.65)
	return NewExecutor(registry, time.Second, logging.Nop())
}

type summaryCall struct {
	entityType     string
	entityID       string
	activityCount  int
	contentChanged bool
}

type summaryRecorder struct {
	mu    sync.Mutex
	calls []summaryCall
}

func (r *summaryRecorder) record(entityType, entityID, title string, activityCount int, contentChanged bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, summaryCall{entityType, entityID, activityCount, contentChanged})
}

func (r *summaryRecorder) snapshot() []summaryCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]summaryCall(nil), r.calls...)
}

func TestExecuteAppliesMutationSideEffects(t *testing.T) {
	executor := newTestExecutor()
	rctx := newTestRunContext(t)
	recorder := &summaryRecorder{}
	rctx.Summarize = recorder.record
	ctx := context.Background()

	if _, err := executor.Execute(ctx, "create_task", map[string]any{"title": "Draft launch email"}, rctx); err != nil {
		t.Fatal(err)
	}

	// Episodic event recorded with entity metadata.
	events := rctx.Memory.ListEpisodic("u1", memory.EpisodicFilter{Limit: 10})
	if len(events) != 1 {
		t.Fatalf("got %d episodic events", len(events))
	}
	if events[0].Action != "task_created" {
		t.Fatalf("got action %q", events[0].Action)
	}
	if events[0].Metadata["entity_type"] != "task" || events[0].Metadata["entity_id"] == "" {
		t.Fatalf("got metadata %v", events[0].Metadata)
	}

	// Working memory points at the new task and the last action.
	if _, ok := rctx.Memory.GetWorking("sess_1", memory.WorkingCurrentTask); !ok {
		t.Fatal("current task not set in working memory")
	}
	if _, ok := rctx.Memory.GetWorking("sess_1", memory.WorkingLastAction); !ok {
		t.Fatal("last action not set in working memory")
	}

	// Summarizer notified with the first activity count.
	calls := recorder.snapshot()
	if len(calls) != 1 {
		t.Fatalf("got %d summary notifications", len(calls))
	}
	if calls[0].entityType != "task" || calls[0].activityCount != 1 {
		t.Fatalf("got %+v", calls[0])
	}
}

// Side effects run on a detached deadline: a context cancelled right after the
// mutation must not lose the episodic record.
func TestExecuteSideEffectsSurviveCancellation(t *testing.T) {
	executor := newTestExecutor()
	rctx := newTestRunContext(t)

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := executor.Execute(ctx, "create_task", map[string]any{"title": "Review contract"}, rctx); err != nil {
		t.Fatal(err)
	}
	cancel()

	events := rctx.Memory.ListEpisodic("u1", memory.EpisodicFilter{Limit: 10})
	if len(events) != 1 {
		t.Fatalf("got %d episodic events after cancellation", len(events))
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	executor := newTestExecutor()
	rctx := newTestRunContext(t)
	if _, err := executor.Execute(context.Background(), "no_such_tool", nil, rctx); err == nil {
		t.Fatal("expected an error for an unknown tool")
	}
}

func TestCompleteTaskUpdatesStatusAndCounts(t *testing.T) {
	executor := newTestExecutor()
	rctx := newTestRunContext(t)
	ctx := context.Background()

	content, err := executor.Execute(ctx, "create_task", map[string]any{"title": "Ship the beta"}, rctx)
	if err != nil {
		t.Fatal(err)
	}
	if content == "" {
		t.Fatal("empty create result")
	}

	if _, err := executor.Execute(ctx, "complete_task", map[string]any{"ref": "ship the beta"}, rctx); err != nil {
		t.Fatal(err)
	}

	done, err := rctx.Tasks.Find(ctx, entity.TaskFilter{UserID: "u1", Status: entity.StatusDone}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(done) != 1 {
		t.Fatalf("got %d done tasks", len(done))
	}
	if done[0].ActivityCount != 2 {
		t.Fatalf("got activity count %d, want 2", done[0].ActivityCount)
	}
}

func TestProjectContextAndDecisionAppend(t *testing.T) {
	executor := newTestExecutor()
	rctx := newTestRunContext(t)
	ctx := context.Background()

	if _, err := executor.Execute(ctx, "create_project", map[string]any{"name": "Mobile App"}, rctx); err != nil {
		t.Fatal(err)
	}
	if _, err := executor.Execute(ctx, "add_project_context", map[string]any{
		"ref": "mobile app", "text": "Targeting iOS first, Android in Q4",
	}, rctx); err != nil {
		t.Fatal(err)
	}
	if _, err := executor.Execute(ctx, "add_project_decision", map[string]any{
		"ref": "mobile app", "text": "Chose React Native over Flutter",
	}, rctx); err != nil {
		t.Fatal(err)
	}

	project, err := rctx.Projects.GetByName(ctx, "u1", "Mobile App")
	if err != nil {
		t.Fatal(err)
	}
	if len(project.Context) != 1 || len(project.Decisions) != 1 {
		t.Fatalf("context=%v decisions=%v", project.Context, project.Decisions)
	}

	if _, err := executor.Execute(ctx, "add_project_decision", map[string]any{
		"ref": "mobile app", "text": "  ",
	}, rctx); err == nil {
		t.Fatal("blank decision accepted")
	}
}

func TestDisambiguationHandoffRoundTrip(t *testing.T) {
	executor := newTestExecutor()
	rctx := newTestRunContext(t)
	ctx := context.Background()

	// Two near-identical titles force an ambiguity handoff instead of a guess.
	for _, title := range []string{"Update the docs", "Update the docs index"} {
		if _, err := executor.Execute(ctx, "create_task", map[string]any{"title": title}, rctx); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := executor.Execute(ctx, "complete_task", map[string]any{"ref": "update the docs"}, rctx); err != nil {
		t.Fatal(err)
	}

	// Either the resolver picked a clear winner or it parked a disambiguation
	// handoff; both are valid depending on scoring, but a handoff must be
	// consumable exactly once.
	if _, ok := rctx.Memory.PeekPending("sess_1", "assistant"); ok {
		if h, ok := rctx.Memory.ConsumePending("sess_1", "assistant"); !ok || h.Type != "disambiguation" {
			t.Fatalf("expected a consumable disambiguation handoff, got %+v ok=%v", h, ok)
		}
		if _, ok := rctx.Memory.ConsumePending("sess_1", "assistant"); ok {
			t.Fatal("handoff consumed twice")
		}
	}
}

// llm import is exercised through the registry's tool definitions.
func TestDefinitionsAreFiltered(t *testing.T) {
	registry := NewRegistry(logging.Nop())
	RegisterBuiltins(registry, 0.65)

	all := registry.Definitions(nil)
	if len(all) < 15 {
		t.Fatalf("got %d definitions", len(all))
	}

	enabled := map[string]bool{"create_task": true, "list_tasks": true}
	subset := registry.Definitions(enabled)
	if len(subset) != 2 {
		t.Fatalf("got %d filtered definitions", len(subset))
	}
	var _ llm.ToolDefinition = subset[0]
}
