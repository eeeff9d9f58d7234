// Package entity models tasks and projects and the store interfaces the
// tool layer operates against.
package entity

import "time"

// Task statuses.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
)

// Task priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Task is one unit of work.
type Task struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Priority string `json:"priority,omitempty"`
	Project  string `json:"project,omitempty"`

	// Enrichment fields. When present they must survive result compression.
	Assignee string   `json:"assignee,omitempty"`
	DueDate  string   `json:"due_date,omitempty"`
	Blockers []string `json:"blockers,omitempty"`

	Context string `json:"context,omitempty"`
	Notes   []string `json:"notes,omitempty"`

	ActivityCount int       `json:"activity_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Project groups tasks.
type Project struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	Description string    `json:"description,omitempty"`
	Notes       []string  `json:"notes,omitempty"`
	// Context holds background the user attached to the project; Decisions
	// is the append-only record of choices made on it.
	Context   []string  `json:"context,omitempty"`
	Decisions []string  `json:"decisions,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TaskFilter narrows task queries. Zero fields are ignored.
type TaskFilter struct {
	UserID   string
	Status   string
	Priority string
	Project  string
	Assignee string
	// DueWithin keeps tasks whose due date falls inside [From, To).
	DueFrom time.Time
	DueTo   time.Time
	// UpdatedSince keeps tasks touched at or after the given instant.
	UpdatedSince time.Time
}

// ProjectFilter narrows project queries.
type ProjectFilter struct {
	UserID string
	Status string
	Name   string
}

// TaskPatch describes a partial update. Nil fields are untouched.
type TaskPatch struct {
	Title    *string
	Status   *string
	Priority *string
	Project  *string
	Assignee *string
	DueDate  *string
	Blockers *[]string
	Context  *string
	AddNote  *string
}

// ProjectPatch describes a partial project update.
type ProjectPatch struct {
	Name        *string
	Status      *string
	Description *string
	AddNote     *string
	AddContext  *string
	AddDecision *string
}

// ScoredTask pairs a task with a retrieval score.
type ScoredTask struct {
	Task  Task
	Score float64
}
