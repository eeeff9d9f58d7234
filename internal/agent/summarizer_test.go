package agent

import (
	"testing"
	"time"

	"otto/internal/llm"
	"otto/internal/logging"
)

func waitForSummary(t *testing.T, f *fixture, entityType, entityID string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if summary, ok := f.mem.LatestSummary(entityType, entityID); ok {
			return summary.Summary
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no summary stored for %s %s", entityType, entityID)
	return ""
}

func TestSummarizerNotifyStoresDigest(t *testing.T) {
	f := newFixture(t)
	client := llm.NewMockClient(&llm.CompletionResponse{
		Content:      "The task just started. Nothing is blocked.",
		FinishReason: "stop",
	})
	s := NewSummarizer(client, f.mem, logging.Nop())

	s.Notify("task", "task_1", "Ship the beta", 1, false)
	got := waitForSummary(t, f, "task", "task_1")
	if got != "The task just started. Nothing is blocked." {
		t.Fatalf("got %q", got)
	}
}

func TestSummarizerSkipsOffTrigger(t *testing.T) {
	f := newFixture(t)
	client := llm.NewMockClient(&llm.CompletionResponse{Content: "should not run", FinishReason: "stop"})
	s := NewSummarizer(client, f.mem, logging.Nop())

	s.Notify("task", "task_2", "Ship the beta", 2, false)
	s.Notify("project", "proj_1", "Launch", 7, false)

	time.Sleep(50 * time.Millisecond)
	if client.Calls() != 0 {
		t.Fatalf("summarizer ran %d times off-trigger", client.Calls())
	}
	if _, ok := f.mem.LatestSummary("task", "task_2"); ok {
		t.Fatal("unexpected summary stored")
	}
}

func TestSummarizerProjectContentChange(t *testing.T) {
	f := newFixture(t)
	client := llm.NewMockClient(&llm.CompletionResponse{
		Content:      "Scope updated. Launch still on track.",
		FinishReason: "stop",
	})
	s := NewSummarizer(client, f.mem, logging.Nop())

	s.Notify("project", "proj_2", "Launch", 3, true)
	got := waitForSummary(t, f, "project", "proj_2")
	if got == "" {
		t.Fatal("empty summary")
	}
}
