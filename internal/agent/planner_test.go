package agent

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"otto/internal/entity"
	"otto/internal/llm"
	"otto/internal/logging"
	"otto/internal/memory"
)

func TestIsMultiStep(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"research GTM strategies for dev tools, then create a GTM project and generate tasks", true},
		{"look into competitor pricing and then set up a pricing project", true},
		{"create a task for the retro", false},
		{"research kubernetes operators", false},
		{"what's due today", false},
	}
	for _, tc := range cases {
		if got := IsMultiStep(tc.input); got != tc.want {
			t.Errorf("IsMultiStep(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func seedGTMTemplate(mem *memory.Manager) {
	mem.UpsertTemplate("u1", "create gtm project", []memory.TemplatePhase{
		{Name: "Research", Tasks: []string{"Identify target segments", "Interview 5 prospects", "Map competitor positioning"}},
		{Name: "Positioning", Tasks: []string{"Draft value proposition", "Write messaging doc", "Review with leadership"}},
		{Name: "Launch Prep", Tasks: []string{"Build landing page", "Draft launch email", "Prepare sales one-pager"}},
		{Name: "Launch", Tasks: []string{"Publish announcement", "Run launch webinar", "Collect first feedback"}},
	}, "user_taught", 0.9)
}

func TestPlannerGTMWorkflow(t *testing.T) {
	f := newFixture(t)
	seedGTMTemplate(f.mem)

	planJSON := `{"steps":[
		{"intent":"research","description":"research GTM strategies for developer tools"},
		{"intent":"create_project","description":"create a GTM project for the CLI launch"},
		{"intent":"generate_tasks","description":"generate tasks from the GTM template"}
	]}`
	client := llm.NewMockClient(&llm.CompletionResponse{Content: planJSON, FinishReason: "stop"})

	var researchedFor string
	research := func(ctx context.Context, query, userID string) (string, error) {
		researchedFor = userID
		return strings.Repeat("Developer tool GTM insight. ", 20), nil
	}
	planner := NewPlanner(client, f.executor, research, time.Second, logging.Nop())

	steps, ok := planner.Plan(context.Background(),
		"research GTM strategies for dev tools, then create a GTM project and generate tasks")
	if !ok {
		t.Fatal("expected a multi-step plan")
	}
	if len(steps) != 3 {
		t.Fatalf("got %d steps", len(steps))
	}

	outcome := planner.Execute(context.Background(), steps, f.rctx)
	if outcome.Partial {
		t.Fatalf("workflow aborted: %s", outcome.Reply)
	}
	// Research runs in the requesting user's scope, so its cached findings
	// are visible to that user's later lookups.
	if researchedFor != "u1" {
		t.Fatalf("research ran for user %q", researchedFor)
	}

	// One project, twelve templated tasks.
	projects, err := f.store.Projects().Find(context.Background(), entity.ProjectFilter{UserID: "u1"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 1 {
		t.Fatalf("got %d projects", len(projects))
	}
	created, err := f.store.Tasks().Find(context.Background(), entity.TaskFilter{UserID: "u1"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 12 {
		t.Fatalf("got %d tasks, want 12", len(created))
	}

	// Phase names prefix every generated title; the research preview is
	// threaded into task context, truncated.
	phasePrefixed := 0
	for _, task := range created {
		if strings.HasPrefix(task.Title, "[") {
			phasePrefixed++
		}
		if task.Context == "" {
			t.Fatalf("task %q missing research context", task.Title)
		}
		if len(task.Context) > 200 {
			t.Fatalf("research preview not truncated: %d chars", len(task.Context))
		}
	}
	if phasePrefixed != 12 {
		t.Fatalf("only %d tasks carry a phase prefix", phasePrefixed)
	}

	// The template counted exactly one use for the whole workflow.
	rule, ok := f.mem.PeekRuleForTrigger("u1", "create gtm project")
	if !ok {
		t.Fatal("template missing")
	}
	if rule.TimesUsed != 1 {
		t.Fatalf("template times_used = %d, want 1", rule.TimesUsed)
	}
}

func TestResearchPreviewKeepsRuneBoundaries(t *testing.T) {
	f := newFixture(t)
	seedGTMTemplate(f.mem)

	// Multibyte findings: a naive byte cut at the limit would split a rune.
	research := func(ctx context.Context, query, userID string) (string, error) {
		return strings.Repeat("任務管理助理", 40), nil
	}
	planner := NewPlanner(llm.NewMockClient(), f.executor, research, time.Second, logging.Nop())

	steps := []Step{
		{Intent: "research", Description: "research localization practices"},
		{Intent: "create_project", Description: "create a gtm project for the launch"},
		{Intent: "generate_tasks", Description: "generate tasks from the template"},
	}
	outcome := planner.Execute(context.Background(), steps, f.rctx)
	if outcome.Partial {
		t.Fatalf("workflow aborted: %s", outcome.Reply)
	}

	created, err := f.store.Tasks().Find(context.Background(), entity.TaskFilter{UserID: "u1"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(created) == 0 {
		t.Fatal("no tasks generated")
	}
	for _, task := range created {
		if len(task.Context) > 200 {
			t.Fatalf("preview not truncated: %d bytes", len(task.Context))
		}
		if !utf8.ValidString(task.Context) {
			t.Fatalf("preview split a rune: %q", task.Context)
		}
	}
}

func TestPlannerMalformedPlanDegrades(t *testing.T) {
	f := newFixture(t)
	client := llm.NewMockClient(&llm.CompletionResponse{Content: "sure, I'll do that!", FinishReason: "stop"})
	planner := NewPlanner(client, f.executor, nil, time.Second, logging.Nop())

	if _, ok := planner.Plan(context.Background(),
		"research GTM strategies for dev tools, then create a GTM project and generate tasks"); ok {
		t.Fatal("non-JSON plan output must degrade to single-step")
	}
}

func TestPlannerStepFailureAborts(t *testing.T) {
	f := newFixture(t)
	client := llm.NewMockClient()
	planner := NewPlanner(client, f.executor, nil, time.Second, logging.Nop())

	steps := []Step{
		{Intent: "research", Description: "research something"}, // no research fn configured
		{Intent: "create_project", Description: "create a launch project"},
	}
	outcome := planner.Execute(context.Background(), steps, f.rctx)
	if !outcome.Partial {
		t.Fatal("expected a partial outcome")
	}
	if len(outcome.Steps) != 1 {
		t.Fatalf("later steps ran after a failure: %+v", outcome.Steps)
	}
	if !strings.Contains(outcome.Reply, "✗") {
		t.Fatalf("reply does not mark the failed step: %q", outcome.Reply)
	}
}

func TestShouldSummarize(t *testing.T) {
	cases := []struct {
		entityType     string
		activityCount  int
		contentChanged bool
		want           bool
	}{
		{"task", 1, false, true},
		{"task", 2, false, false},
		{"task", 4, false, false},
		{"task", 5, false, true},
		{"task", 9, false, true},
		{"project", 3, false, false},
		{"project", 3, true, true},
		{"note", 1, true, false},
	}
	for _, tc := range cases {
		got := ShouldSummarize(tc.entityType, tc.activityCount, tc.contentChanged)
		if got != tc.want {
			t.Errorf("ShouldSummarize(%s, %d, %v) = %v, want %v",
				tc.entityType, tc.activityCount, tc.contentChanged, got, tc.want)
		}
	}
}
