package entity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"otto/internal/embedding"
	ottoerrors "otto/internal/errors"
	"otto/internal/utils/id"
)

// rrfK is the reciprocal-rank-fusion constant.
const rrfK = 60

// MemStore is an in-memory TaskStore and ProjectStore. It keeps task
// embeddings alongside the documents so hybrid search needs no external
// vector service.
type MemStore struct {
	mu       sync.RWMutex
	tasks    map[string]Task
	projects map[string]Project
	vectors  map[string][]float32 // task id -> title embedding

	embedder     embedding.Embedder
	vectorWeight float64
	textWeight   float64

	now func() time.Time
}

// NewMemStore builds a MemStore. Weights default to 0.6 vector / 0.4 text
// when zero.
func NewMemStore(embedder embedding.Embedder, vectorWeight, textWeight float64) *MemStore {
	if vectorWeight == 0 && textWeight == 0 {
		vectorWeight, textWeight = 0.6, 0.4
	}
	return &MemStore{
		tasks:        make(map[string]Task),
		projects:     make(map[string]Project),
		vectors:      make(map[string][]float32),
		embedder:     embedder,
		vectorWeight: vectorWeight,
		textWeight:   textWeight,
		now:          time.Now,
	}
}

func (s *MemStore) Insert(ctx context.Context, task Task) (Task, error) {
	if task.ID == "" {
		task.ID = id.NewTaskID()
	}
	if task.Status == "" {
		task.Status = StatusTodo
	}
	now := s.now()
	task.CreatedAt = now
	task.UpdatedAt = now
	task.ActivityCount = 1

	var vec []float32
	if s.embedder != nil {
		// Best effort: a missing embedding only disables vector ranking.
		if v, err := s.embedder.Embed(ctx, task.Title); err == nil {
			vec = v
		}
	}

	s.mu.Lock()
	s.tasks[task.ID] = task
	if vec != nil {
		s.vectors[task.ID] = vec
	}
	s.mu.Unlock()
	return task, nil
}

func (s *MemStore) Get(ctx context.Context, taskID string) (Task, error) {
	s.mu.RLock()
	task, ok := s.tasks[taskID]
	s.mu.RUnlock()
	if !ok {
		return Task{}, ottoerrors.New(ottoerrors.KindNotFound, "task not found: "+taskID)
	}
	return task, nil
}

func (s *MemStore) Update(ctx context.Context, taskID string, patch TaskPatch) (Task, error) {
	s.mu.Lock()
	task, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return Task{}, ottoerrors.New(ottoerrors.KindNotFound, "task not found: "+taskID)
	}

	titleChanged := false
	if patch.Title != nil {
		task.Title = *patch.Title
		titleChanged = true
	}
	if patch.Status != nil {
		task.Status = *patch.Status
	}
	if patch.Priority != nil {
		task.Priority = *patch.Priority
	}
	if patch.Project != nil {
		task.Project = *patch.Project
	}
	if patch.Assignee != nil {
		task.Assignee = *patch.Assignee
	}
	if patch.DueDate != nil {
		task.DueDate = *patch.DueDate
	}
	if patch.Blockers != nil {
		task.Blockers = append([]string(nil), (*patch.Blockers)...)
	}
	if patch.Context != nil {
		task.Context = *patch.Context
	}
	if patch.AddNote != nil {
		task.Notes = append(task.Notes, *patch.AddNote)
	}
	task.ActivityCount++
	task.UpdatedAt = s.now()
	s.tasks[taskID] = task
	s.mu.Unlock()

	if titleChanged && s.embedder != nil {
		if vec, err := s.embedder.Embed(ctx, task.Title); err == nil {
			s.mu.Lock()
			s.vectors[taskID] = vec
			s.mu.Unlock()
		}
	}
	return task, nil
}

func (s *MemStore) Find(ctx context.Context, filter TaskFilter, limit int) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Task
	for _, task := range s.tasks {
		if !matchesTask(task, filter) {
			continue
		}
		out = append(out, task)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matchesTask(task Task, f TaskFilter) bool {
	if f.UserID != "" && task.UserID != f.UserID {
		return false
	}
	if f.Status != "" && task.Status != f.Status {
		return false
	}
	if f.Priority != "" && task.Priority != f.Priority {
		return false
	}
	if f.Project != "" && !strings.EqualFold(task.Project, f.Project) {
		return false
	}
	if f.Assignee != "" && !strings.EqualFold(task.Assignee, f.Assignee) {
		return false
	}
	if !f.UpdatedSince.IsZero() && task.UpdatedAt.Before(f.UpdatedSince) {
		return false
	}
	if !f.DueFrom.IsZero() || !f.DueTo.IsZero() {
		due, err := time.Parse("2006-01-02", task.DueDate)
		if err != nil {
			return false
		}
		if !f.DueFrom.IsZero() && due.Before(f.DueFrom) {
			return false
		}
		if !f.DueTo.IsZero() && !due.Before(f.DueTo) {
			return false
		}
	}
	return true
}

func (s *MemStore) VectorSearch(ctx context.Context, userID, query string, limit int) ([]ScoredTask, error) {
	if s.embedder == nil {
		return nil, nil
	}
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	var scored []ScoredTask
	for taskID, task := range s.tasks {
		if userID != "" && task.UserID != userID {
			continue
		}
		vec, ok := s.vectors[taskID]
		if !ok {
			continue
		}
		scored = append(scored, ScoredTask{Task: task, Score: embedding.Cosine(queryVec, vec)})
	}
	s.mu.RUnlock()

	sortScored(scored)
	return capScored(scored, limit), nil
}

func (s *MemStore) TextSearch(ctx context.Context, userID, query string, limit int) ([]ScoredTask, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	var scored []ScoredTask
	for _, task := range s.tasks {
		if userID != "" && task.UserID != userID {
			continue
		}
		score := overlapScore(terms, task.Title+" "+task.Context)
		if score > 0 {
			scored = append(scored, ScoredTask{Task: task, Score: score})
		}
	}
	s.mu.RUnlock()

	sortScored(scored)
	return capScored(scored, limit), nil
}

// HybridSearch fuses vector and text rankings with weighted reciprocal rank
// fusion: score(d) = w_v/(k+rank_v) + w_t/(k+rank_t), k=60.
func (s *MemStore) HybridSearch(ctx context.Context, userID, query string, limit int) ([]ScoredTask, error) {
	fetchLimit := limit * 3
	if fetchLimit < 20 {
		fetchLimit = 20
	}

	vecResults, err := s.VectorSearch(ctx, userID, query, fetchLimit)
	if err != nil {
		// Fall back to text-only ranking when embeddings are unavailable.
		vecResults = nil
	}
	textResults, err := s.TextSearch(ctx, userID, query, fetchLimit)
	if err != nil {
		return nil, err
	}
	if len(vecResults) == 0 && len(textResults) == 0 {
		return nil, nil
	}

	fused := make(map[string]*ScoredTask)
	for rank, st := range vecResults {
		task := st.Task
		fused[task.ID] = &ScoredTask{Task: task, Score: s.vectorWeight / float64(rrfK+rank+1)}
	}
	for rank, st := range textResults {
		contribution := s.textWeight / float64(rrfK+rank+1)
		if existing, ok := fused[st.Task.ID]; ok {
			existing.Score += contribution
		} else {
			fused[st.Task.ID] = &ScoredTask{Task: st.Task, Score: contribution}
		}
	}

	out := make([]ScoredTask, 0, len(fused))
	for _, st := range fused {
		out = append(out, *st)
	}
	sortScored(out)
	return capScored(out, limit), nil
}

// Project store.

func (s *MemStore) InsertProject(ctx context.Context, project Project) (Project, error) {
	if project.ID == "" {
		project.ID = id.NewProjectID()
	}
	if project.Status == "" {
		project.Status = "active"
	}
	now := s.now()
	project.CreatedAt = now
	project.UpdatedAt = now

	s.mu.Lock()
	s.projects[project.ID] = project
	s.mu.Unlock()
	return project, nil
}

func (s *MemStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	s.mu.RLock()
	project, ok := s.projects[projectID]
	s.mu.RUnlock()
	if !ok {
		return Project{}, ottoerrors.New(ottoerrors.KindNotFound, "project not found: "+projectID)
	}
	return project, nil
}

func (s *MemStore) GetProjectByName(ctx context.Context, userID, name string) (Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, project := range s.projects {
		if userID != "" && project.UserID != userID {
			continue
		}
		if strings.EqualFold(project.Name, name) {
			return project, nil
		}
	}
	return Project{}, ottoerrors.New(ottoerrors.KindNotFound, "project not found: "+name)
}

func (s *MemStore) UpdateProject(ctx context.Context, projectID string, patch ProjectPatch) (Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	project, ok := s.projects[projectID]
	if !ok {
		return Project{}, ottoerrors.New(ottoerrors.KindNotFound, "project not found: "+projectID)
	}
	if patch.Name != nil {
		project.Name = *patch.Name
	}
	if patch.Status != nil {
		project.Status = *patch.Status
	}
	if patch.Description != nil {
		project.Description = *patch.Description
	}
	if patch.AddNote != nil {
		project.Notes = append(project.Notes, *patch.AddNote)
	}
	if patch.AddContext != nil {
		project.Context = append(project.Context, *patch.AddContext)
	}
	if patch.AddDecision != nil {
		project.Decisions = append(project.Decisions, *patch.AddDecision)
	}
	project.UpdatedAt = s.now()
	s.projects[projectID] = project
	return project, nil
}

func (s *MemStore) FindProjects(ctx context.Context, filter ProjectFilter, limit int) ([]Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Project
	for _, project := range s.projects {
		if filter.UserID != "" && project.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && project.Status != filter.Status {
			continue
		}
		if filter.Name != "" && !strings.EqualFold(project.Name, filter.Name) {
			continue
		}
		out = append(out, project)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Tasks exposes the store through the TaskStore contract.
func (s *MemStore) Tasks() TaskStore { return s }

// Projects exposes the store through the ProjectStore contract.
func (s *MemStore) Projects() ProjectStore { return projectView{s} }

type projectView struct{ s *MemStore }

func (p projectView) Insert(ctx context.Context, project Project) (Project, error) {
	return p.s.InsertProject(ctx, project)
}

func (p projectView) Get(ctx context.Context, projectID string) (Project, error) {
	return p.s.GetProject(ctx, projectID)
}

func (p projectView) GetByName(ctx context.Context, userID, name string) (Project, error) {
	return p.s.GetProjectByName(ctx, userID, name)
}

func (p projectView) Update(ctx context.Context, projectID string, patch ProjectPatch) (Project, error) {
	return p.s.UpdateProject(ctx, projectID, patch)
}

func (p projectView) Find(ctx context.Context, filter ProjectFilter, limit int) ([]Project, error) {
	return p.s.FindProjects(ctx, filter, limit)
}

// Helpers.

func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, `.,;:!?"'()`)
		if len(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}

func overlapScore(terms []string, text string) float64 {
	haystack := strings.ToLower(text)
	matched := 0
	for _, term := range terms {
		if strings.Contains(haystack, term) {
			matched++
		}
	}
	if matched == 0 {
		return 0
	}
	return float64(matched) / float64(len(terms))
}

func sortScored(scored []ScoredTask) {
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Task.ID < scored[j].Task.ID
	})
}

func capScored(scored []ScoredTask, limit int) []ScoredTask {
	if limit > 0 && len(scored) > limit {
		return scored[:limit]
	}
	return scored
}
