package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"otto/internal/entity"
	ottoerrors "otto/internal/errors"
	"otto/internal/llm"
	"otto/internal/memory"
)

// ambiguityMargin is the score gap below which two search hits are treated
// as indistinguishable and the user is asked to pick.
const ambiguityMargin = 0.05

func taskRefProperty() llm.Property {
	return llm.Property{Type: "string", Description: "Task id (task_...) or a title fragment to resolve via search"}
}

// resolveTask finds one task by id or by search. On an ambiguous match it
// stores a disambiguation handoff and returns a question for the user.
func resolveTask(ctx context.Context, rctx *RunContext, ref string) (entity.Task, *Result, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return entity.Task{}, nil, ottoerrors.New(ottoerrors.KindValidation, "task reference is required")
	}
	if strings.HasPrefix(ref, "task_") {
		task, err := rctx.Tasks.Get(ctx, ref)
		if err != nil {
			return entity.Task{}, nil, err
		}
		return task, nil, nil
	}

	hits, err := rctx.Tasks.HybridSearch(ctx, rctx.UserID, ref, 5)
	if err != nil {
		return entity.Task{}, nil, err
	}
	if len(hits) == 0 {
		return entity.Task{}, nil, ottoerrors.New(ottoerrors.KindNotFound, "no task matches "+fmt.Sprintf("%q", ref))
	}
	if len(hits) > 1 && hits[0].Score-hits[1].Score < ambiguityMargin {
		candidates := make([]map[string]any, 0, len(hits))
		var titles []string
		for i, hit := range hits {
			if i >= 3 {
				break
			}
			candidates = append(candidates, map[string]any{
				"id":    hit.Task.ID,
				"title": hit.Task.Title,
			})
			titles = append(titles, fmt.Sprintf("%d. %s", i+1, hit.Task.Title))
		}
		rctx.Memory.CreateHandoff(rctx.SessionID, "tool_executor", "assistant", "disambiguation", map[string]any{
			"ref":        ref,
			"candidates": candidates,
		})
		question := fmt.Sprintf("Multiple tasks match %q:\n%s\nWhich one did you mean?",
			ref, strings.Join(titles, "\n"))
		return entity.Task{}, textResult(question), nil
	}
	return hits[0].Task, nil, nil
}

// --- create_task ---

type createTaskTool struct{}

func (createTaskTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "create_task",
		Description: "Create a new task. Returns the created task.",
		Parameters: llm.ParameterSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"title":    {Type: "string", Description: "Task title"},
				"project":  {Type: "string", Description: "Project name"},
				"priority": {Type: "string", Enum: []string{"low", "medium", "high"}},
				"assignee": {Type: "string"},
				"due_date": {Type: "string", Description: "Due date, YYYY-MM-DD"},
				"context":  {Type: "string", Description: "Background context for the task"},
			},
			Required: []string{"title"},
		},
	}
}

func (createTaskTool) Execute(ctx context.Context, args map[string]any, rctx *RunContext) (*Result, error) {
	title := strings.TrimSpace(stringArg(args, "title"))
	if title == "" {
		return nil, ottoerrors.New(ottoerrors.KindValidation, "title is required")
	}
	task, err := rctx.Tasks.Insert(ctx, entity.Task{
		UserID:   rctx.UserID,
		Title:    title,
		Project:  stringArg(args, "project"),
		Priority: stringArg(args, "priority"),
		Assignee: stringArg(args, "assignee"),
		DueDate:  stringArg(args, "due_date"),
		Context:  stringArg(args, "context"),
	})
	if err != nil {
		return nil, err
	}
	result, err := jsonResult(task)
	if err != nil {
		return nil, err
	}
	result.Mutation = &Mutation{
		EntityType:    "task",
		EntityID:      task.ID,
		Title:         task.Title,
		Action:        "task_created",
		Description:   fmt.Sprintf("created task %q", task.Title),
		ActivityCount: task.ActivityCount,
		WorkingType:   memory.WorkingCurrentTask,
		WorkingValue:  task.Title,
	}
	return result, nil
}

// --- status transitions ---

type statusTool struct {
	name      string
	desc      string
	newStatus string
	action    string
	pastTense string
}

func completeTaskTool() Tool {
	return statusTool{
		name: "complete_task", desc: "Mark a task as done.",
		newStatus: entity.StatusDone, action: "task_completed", pastTense: "completed",
	}
}

func startTaskTool() Tool {
	return statusTool{
		name: "start_task", desc: "Move a task to in_progress.",
		newStatus: entity.StatusInProgress, action: "task_started", pastTense: "started",
	}
}

func stopTaskTool() Tool {
	return statusTool{
		name: "stop_task", desc: "Move a task back to todo.",
		newStatus: entity.StatusTodo, action: "task_stopped", pastTense: "stopped",
	}
}

func (t statusTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        t.name,
		Description: t.desc,
		Parameters: llm.ParameterSchema{
			Type:       "object",
			Properties: map[string]llm.Property{"ref": taskRefProperty()},
			Required:   []string{"ref"},
		},
	}
}

func (t statusTool) Execute(ctx context.Context, args map[string]any, rctx *RunContext) (*Result, error) {
	task, ambiguous, err := resolveTask(ctx, rctx, stringArg(args, "ref"))
	if err != nil {
		return nil, err
	}
	if ambiguous != nil {
		return ambiguous, nil
	}

	status := t.newStatus
	updated, err := rctx.Tasks.Update(ctx, task.ID, entity.TaskPatch{Status: &status})
	if err != nil {
		return nil, err
	}
	result, err := jsonResult(updated)
	if err != nil {
		return nil, err
	}
	result.Mutation = &Mutation{
		EntityType:    "task",
		EntityID:      updated.ID,
		Title:         updated.Title,
		Action:        t.action,
		Description:   fmt.Sprintf("%s task %q", t.pastTense, updated.Title),
		ActivityCount: updated.ActivityCount,
		WorkingType:   memory.WorkingCurrentTask,
		WorkingValue:  updated.Title,
	}
	return result, nil
}

// --- update_task ---

type updateTaskTool struct{}

func (updateTaskTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "update_task",
		Description: "Update task fields. Only provided fields change.",
		Parameters: llm.ParameterSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"ref":      taskRefProperty(),
				"title":    {Type: "string"},
				"priority": {Type: "string", Enum: []string{"low", "medium", "high"}},
				"project":  {Type: "string"},
				"assignee": {Type: "string"},
				"due_date": {Type: "string", Description: "YYYY-MM-DD"},
				"blockers": {Type: "array", Items: &llm.Property{Type: "string"}},
			},
			Required: []string{"ref"},
		},
	}
}

func (updateTaskTool) Execute(ctx context.Context, args map[string]any, rctx *RunContext) (*Result, error) {
	task, ambiguous, err := resolveTask(ctx, rctx, stringArg(args, "ref"))
	if err != nil {
		return nil, err
	}
	if ambiguous != nil {
		return ambiguous, nil
	}

	var patch entity.TaskPatch
	if v := stringArg(args, "title"); v != "" {
		patch.Title = &v
	}
	if v := stringArg(args, "priority"); v != "" {
		patch.Priority = &v
	}
	if v := stringArg(args, "project"); v != "" {
		patch.Project = &v
	}
	if v := stringArg(args, "assignee"); v != "" {
		patch.Assignee = &v
	}
	if v := stringArg(args, "due_date"); v != "" {
		patch.DueDate = &v
	}
	if _, present := args["blockers"]; present {
		blockers := stringSliceArg(args, "blockers")
		patch.Blockers = &blockers
	}

	updated, err := rctx.Tasks.Update(ctx, task.ID, patch)
	if err != nil {
		return nil, err
	}
	result, err := jsonResult(updated)
	if err != nil {
		return nil, err
	}
	result.Mutation = &Mutation{
		EntityType:    "task",
		EntityID:      updated.ID,
		Title:         updated.Title,
		Action:        "task_updated",
		Description:   fmt.Sprintf("updated task %q", updated.Title),
		ActivityCount: updated.ActivityCount,
		WorkingType:   memory.WorkingCurrentTask,
		WorkingValue:  updated.Title,
	}
	return result, nil
}

// --- add_note ---

type addNoteTool struct{}

func (addNoteTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "add_note",
		Description: "Append a note to a task or project.",
		Parameters: llm.ParameterSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"ref":    {Type: "string", Description: "Task or project reference"},
				"text":   {Type: "string", Description: "Note body"},
				"target": {Type: "string", Enum: []string{"task", "project"}, Description: "Defaults to task"},
			},
			Required: []string{"ref", "text"},
		},
	}
}

func (addNoteTool) Execute(ctx context.Context, args map[string]any, rctx *RunContext) (*Result, error) {
	text := strings.TrimSpace(stringArg(args, "text"))
	if text == "" {
		return nil, ottoerrors.New(ottoerrors.KindValidation, "note text is required")
	}

	if stringArg(args, "target") == "project" {
		project, err := resolveProject(ctx, rctx, stringArg(args, "ref"))
		if err != nil {
			return nil, err
		}
		updated, err := rctx.Projects.Update(ctx, project.ID, entity.ProjectPatch{AddNote: &text})
		if err != nil {
			return nil, err
		}
		result, err := jsonResult(updated)
		if err != nil {
			return nil, err
		}
		result.Mutation = &Mutation{
			EntityType:     "project",
			EntityID:       updated.ID,
			Title:          updated.Name,
			Action:         "project_note_added",
			Description:    fmt.Sprintf("added note to project %q", updated.Name),
			ContentChanged: true,
			WorkingType:    memory.WorkingCurrentProject,
			WorkingValue:   updated.Name,
		}
		return result, nil
	}

	task, ambiguous, err := resolveTask(ctx, rctx, stringArg(args, "ref"))
	if err != nil {
		return nil, err
	}
	if ambiguous != nil {
		return ambiguous, nil
	}
	updated, err := rctx.Tasks.Update(ctx, task.ID, entity.TaskPatch{AddNote: &text})
	if err != nil {
		return nil, err
	}
	result, err := jsonResult(updated)
	if err != nil {
		return nil, err
	}
	result.Mutation = &Mutation{
		EntityType:    "task",
		EntityID:      updated.ID,
		Title:         updated.Title,
		Action:        "task_note_added",
		Description:   fmt.Sprintf("added note to task %q", updated.Title),
		ActivityCount: updated.ActivityCount,
		WorkingType:   memory.WorkingCurrentTask,
		WorkingValue:  updated.Title,
	}
	return result, nil
}

// --- get_task ---

type getTaskTool struct{}

func (getTaskTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "get_task",
		Description: "Fetch one task by id or title, including its latest summary.",
		Parameters: llm.ParameterSchema{
			Type:       "object",
			Properties: map[string]llm.Property{"ref": taskRefProperty()},
			Required:   []string{"ref"},
		},
	}
}

func (getTaskTool) Execute(ctx context.Context, args map[string]any, rctx *RunContext) (*Result, error) {
	task, ambiguous, err := resolveTask(ctx, rctx, stringArg(args, "ref"))
	if err != nil {
		return nil, err
	}
	if ambiguous != nil {
		return ambiguous, nil
	}
	payload := map[string]any{"task": task}
	if summary, ok := rctx.Memory.LatestSummary("task", task.ID); ok {
		payload["summary"] = summary.Summary
	}
	return jsonResult(payload)
}

// --- list_tasks ---

type listTasksTool struct{}

func (listTasksTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "list_tasks",
		Description: "List tasks with optional filters.",
		Parameters: llm.ParameterSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"status":   {Type: "string", Enum: []string{"todo", "in_progress", "done"}},
				"priority": {Type: "string", Enum: []string{"low", "medium", "high"}},
				"project":  {Type: "string"},
				"assignee": {Type: "string"},
				"due":      {Type: "string", Enum: []string{"today", "this_week", "yesterday"}},
				"updated":  {Type: "string", Enum: []string{"today", "this_week", "yesterday"}},
				"limit":    {Type: "integer"},
			},
		},
	}
}

func (listTasksTool) Execute(ctx context.Context, args map[string]any, rctx *RunContext) (*Result, error) {
	filter := entity.TaskFilter{
		UserID:   rctx.UserID,
		Status:   stringArg(args, "status"),
		Priority: stringArg(args, "priority"),
		Project:  stringArg(args, "project"),
		Assignee: stringArg(args, "assignee"),
	}
	applyTemporal(&filter, stringArg(args, "due"), stringArg(args, "updated"))

	tasks, err := rctx.Tasks.Find(ctx, filter, intArg(args, "limit", 50))
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{"tasks": tasks, "count": len(tasks)})
}

func applyTemporal(filter *entity.TaskFilter, due, updated string) {
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch due {
	case "today":
		filter.DueFrom, filter.DueTo = today, today.AddDate(0, 0, 1)
	case "this_week":
		filter.DueFrom, filter.DueTo = today, today.AddDate(0, 0, 7)
	case "yesterday":
		filter.DueFrom, filter.DueTo = today.AddDate(0, 0, -1), today
	}
	switch updated {
	case "today":
		filter.UpdatedSince = today
	case "this_week":
		filter.UpdatedSince = today.AddDate(0, 0, -7)
	case "yesterday":
		filter.UpdatedSince = today.AddDate(0, 0, -1)
	}
}

// --- search_tasks ---

type searchTasksTool struct{}

func (searchTasksTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "search_tasks",
		Description: "Search tasks by meaning and text. Mode hybrid fuses both rankings.",
		Parameters: llm.ParameterSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"query": {Type: "string"},
				"mode":  {Type: "string", Enum: []string{"hybrid", "vector", "text"}},
				"limit": {Type: "integer"},
			},
			Required: []string{"query"},
		},
	}
}

func (searchTasksTool) Execute(ctx context.Context, args map[string]any, rctx *RunContext) (*Result, error) {
	query := strings.TrimSpace(stringArg(args, "query"))
	if query == "" {
		return nil, ottoerrors.New(ottoerrors.KindValidation, "query is required")
	}
	limit := intArg(args, "limit", 10)

	var hits []entity.ScoredTask
	var err error
	switch stringArg(args, "mode") {
	case "vector":
		hits, err = rctx.Tasks.VectorSearch(ctx, rctx.UserID, query, limit)
	case "text":
		hits, err = rctx.Tasks.TextSearch(ctx, rctx.UserID, query, limit)
	default:
		hits, err = rctx.Tasks.HybridSearch(ctx, rctx.UserID, query, limit)
	}
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{"hits": hits, "count": len(hits)})
}

// --- recent_activity ---

type recentActivityTool struct{}

func (recentActivityTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "recent_activity",
		Description: "List the user's recent actions from episodic memory.",
		Parameters: llm.ParameterSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"days":   {Type: "integer", Description: "Lookback window, default 7"},
				"action": {Type: "string", Description: "Filter by action type"},
				"limit":  {Type: "integer"},
			},
		},
	}
}

func (recentActivityTool) Execute(ctx context.Context, args map[string]any, rctx *RunContext) (*Result, error) {
	days := intArg(args, "days", 7)
	events := rctx.Memory.ListEpisodic(rctx.UserID, memory.EpisodicFilter{
		Since:      time.Now().AddDate(0, 0, -days),
		ActionType: stringArg(args, "action"),
		Limit:      intArg(args, "limit", 20),
	})
	return jsonResult(map[string]any{"events": events, "count": len(events)})
}
