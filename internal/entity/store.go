package entity

import "context"

// TaskStore is the task persistence contract consumed by the tool layer.
type TaskStore interface {
	Insert(ctx context.Context, task Task) (Task, error)
	Get(ctx context.Context, id string) (Task, error)
	Update(ctx context.Context, id string, patch TaskPatch) (Task, error)
	Find(ctx context.Context, filter TaskFilter, limit int) ([]Task, error)

	// VectorSearch ranks tasks by embedding similarity to the query.
	VectorSearch(ctx context.Context, userID, query string, limit int) ([]ScoredTask, error)
	// TextSearch ranks tasks by lexical overlap with the query.
	TextSearch(ctx context.Context, userID, query string, limit int) ([]ScoredTask, error)
	// HybridSearch fuses vector and text rankings with reciprocal rank fusion.
	HybridSearch(ctx context.Context, userID, query string, limit int) ([]ScoredTask, error)
}

// ProjectStore is the project persistence contract.
type ProjectStore interface {
	Insert(ctx context.Context, project Project) (Project, error)
	Get(ctx context.Context, id string) (Project, error)
	GetByName(ctx context.Context, userID, name string) (Project, error)
	Update(ctx context.Context, id string, patch ProjectPatch) (Project, error)
	Find(ctx context.Context, filter ProjectFilter, limit int) ([]Project, error)
}
