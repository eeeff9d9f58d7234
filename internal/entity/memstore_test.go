package entity

import (
	"context"
	"testing"
	"time"

	"otto/internal/embedding"
	ottoerrors "otto/internal/errors"
)

func seedTask(t *testing.T, s *MemStore, task Task) Task {
	t.Helper()
	if task.UserID == "" {
		task.UserID = "u1"
	}
	created, err := s.Insert(context.Background(), task)
	if err != nil {
		t.Fatal(err)
	}
	return created
}

func TestInsertDefaults(t *testing.T) {
	s := NewMemStore(embedding.NewMockEmbedder(8), 0, 0)
	task := seedTask(t, s, Task{Title: "Write spec"})
	if task.ID == "" {
		t.Fatal("missing id")
	}
	if task.Status != StatusTodo {
		t.Fatalf("got status %q", task.Status)
	}
	if task.ActivityCount != 1 {
		t.Fatalf("got activity count %d", task.ActivityCount)
	}
}

func TestUpdateIncrementsActivity(t *testing.T) {
	s := NewMemStore(embedding.NewMockEmbedder(8), 0, 0)
	task := seedTask(t, s, Task{Title: "Write spec"})

	status := StatusInProgress
	updated, err := s.Update(context.Background(), task.ID, TaskPatch{Status: &status})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != StatusInProgress || updated.ActivityCount != 2 {
		t.Fatalf("got %+v", updated)
	}

	note := "waiting on review"
	updated, err = s.Update(context.Background(), task.ID, TaskPatch{AddNote: &note})
	if err != nil {
		t.Fatal(err)
	}
	if len(updated.Notes) != 1 || updated.ActivityCount != 3 {
		t.Fatalf("got %+v", updated)
	}
}

func TestGetUnknownTaskIsNotFound(t *testing.T) {
	s := NewMemStore(embedding.NewMockEmbedder(8), 0, 0)
	_, err := s.Get(context.Background(), "task_missing")
	if !ottoerrors.Is(err, ottoerrors.KindNotFound) {
		t.Fatalf("got %v", err)
	}
}

func TestFindFilters(t *testing.T) {
	s := NewMemStore(embedding.NewMockEmbedder(8), 0, 0)
	seedTask(t, s, Task{Title: "A", Status: StatusTodo, Priority: "high", Project: "Onboarding", Assignee: "Sarah"})
	seedTask(t, s, Task{Title: "B", Status: StatusInProgress, Priority: "low", Project: "Onboarding", Assignee: "sarah"})
	seedTask(t, s, Task{Title: "C", Status: StatusDone, Project: "Billing"})
	seedTask(t, s, Task{Title: "D", UserID: "u2", Status: StatusTodo})

	cases := []struct {
		name   string
		filter TaskFilter
		want   int
	}{
		{"by user", TaskFilter{UserID: "u1"}, 3},
		{"by status", TaskFilter{UserID: "u1", Status: StatusTodo}, 1},
		{"by priority", TaskFilter{UserID: "u1", Priority: "high"}, 1},
		{"project case-insensitive", TaskFilter{UserID: "u1", Project: "onboarding"}, 2},
		{"assignee case-insensitive", TaskFilter{UserID: "u1", Assignee: "SARAH"}, 2},
		{"no cross-user leak", TaskFilter{UserID: "u2"}, 1},
	}
	for _, tc := range cases {
		got, err := s.Find(context.Background(), tc.filter, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != tc.want {
			t.Errorf("%s: got %d tasks, want %d", tc.name, len(got), tc.want)
		}
	}
}

func TestFindDueWindow(t *testing.T) {
	s := NewMemStore(embedding.NewMockEmbedder(8), 0, 0)
	seedTask(t, s, Task{Title: "Today", DueDate: "2026-08-25"})
	seedTask(t, s, Task{Title: "Next week", DueDate: "2026-09-03"})
	seedTask(t, s, Task{Title: "Dateless"})

	from, _ := time.Parse("2006-01-02", "2026-08-25")
	to := from.AddDate(0, 0, 1)
	got, err := s.Find(context.Background(), TaskFilter{UserID: "u1", DueFrom: from, DueTo: to}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Title != "Today" {
		t.Fatalf("got %+v", got)
	}
}

func TestHybridSearchFusesRankings(t *testing.T) {
	embedder := embedding.NewMockEmbedder(4)
	// Pin vectors so "login bug" is the clear vector match for the query while
	// "payment bug" only overlaps lexically.
	embedder.Pin("the login bug", []float32{1, 0, 0, 0})
	embedder.Pin("Fix login bug", []float32{1, 0, 0, 0})
	embedder.Pin("Fix payment bug", []float32{0, 1, 0, 0})
	embedder.Pin("Write docs", []float32{0, 0, 1, 0})

	s := NewMemStore(embedder, 0.6, 0.4)
	seedTask(t, s, Task{Title: "Fix login bug"})
	seedTask(t, s, Task{Title: "Fix payment bug"})
	seedTask(t, s, Task{Title: "Write docs"})

	got, err := s.HybridSearch(context.Background(), "u1", "the login bug", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results", len(got))
	}
	if got[0].Task.Title != "Fix login bug" {
		t.Fatalf("top hit %q", got[0].Task.Title)
	}
	// Both channels contributed: the top score exceeds a single-channel
	// maximum at rank 1.
	maxSingle := 0.6 / 61.0
	if got[0].Score <= maxSingle {
		t.Fatalf("score %f suggests only one ranking contributed", got[0].Score)
	}
}

func TestTextSearchOverlap(t *testing.T) {
	s := NewMemStore(nil, 0, 0)
	seedTask(t, s, Task{Title: "Refactor billing pipeline"})
	seedTask(t, s, Task{Title: "Write onboarding guide"})

	got, err := s.TextSearch(context.Background(), "u1", "billing pipeline work", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Task.Title != "Refactor billing pipeline" {
		t.Fatalf("got %+v", got)
	}
	if got[0].Score <= 0 || got[0].Score > 1 {
		t.Fatalf("score out of range: %f", got[0].Score)
	}
}

func TestHybridSearchTextOnlyFallback(t *testing.T) {
	// No embedder at all: hybrid degrades to the text ranking.
	s := NewMemStore(nil, 0.6, 0.4)
	seedTask(t, s, Task{Title: "Ship the beta"})

	got, err := s.HybridSearch(context.Background(), "u1", "ship beta", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Task.Title != "Ship the beta" {
		t.Fatalf("got %+v", got)
	}
}

func TestProjectLifecycle(t *testing.T) {
	s := NewMemStore(embedding.NewMockEmbedder(8), 0, 0)
	projects := s.Projects()
	ctx := context.Background()

	created, err := projects.Insert(ctx, Project{UserID: "u1", Name: "Onboarding"})
	if err != nil {
		t.Fatal(err)
	}
	if created.ID == "" || created.Status != "active" {
		t.Fatalf("got %+v", created)
	}

	byName, err := projects.GetByName(ctx, "u1", "onboarding")
	if err != nil {
		t.Fatal(err)
	}
	if byName.ID != created.ID {
		t.Fatal("name lookup resolved a different project")
	}

	desc := "New-hire onboarding overhaul"
	updated, err := projects.Update(ctx, created.ID, ProjectPatch{Description: &desc})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Description != desc {
		t.Fatalf("got %+v", updated)
	}

	if _, err := projects.GetByName(ctx, "u2", "Onboarding"); !ottoerrors.Is(err, ottoerrors.KindNotFound) {
		t.Fatalf("cross-user lookup should miss, got %v", err)
	}
}
