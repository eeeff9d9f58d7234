package tools

import (
	"encoding/json"

	"otto/internal/entity"
)

// Compression boundaries: lists at or below these sizes pass through
// unchanged.
const (
	taskListLimit    = 10
	projectListLimit = 5
	topItems         = 5
)

// CompressResult shrinks oversized tool results before they enter the LLM
// message list. Only list_tasks, search_tasks, and list_projects are
// compressed; everything else passes through unchanged. Enrichment fields
// (assignee, due date, blockers) always survive compression.
func CompressResult(toolName, content string) string {
	switch toolName {
	case "list_tasks":
		return compressTaskList(content)
	case "search_tasks":
		return compressSearchHits(content)
	case "list_projects":
		return compressProjectList(content)
	}
	return content
}

type compactTask struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Status   string   `json:"status"`
	Project  string   `json:"project,omitempty"`
	Priority string   `json:"priority,omitempty"`
	Assignee string   `json:"assignee,omitempty"`
	DueDate  string   `json:"due_date,omitempty"`
	Blockers []string `json:"blockers,omitempty"`
}

func compact(task entity.Task) compactTask {
	return compactTask{
		ID:       task.ID,
		Title:    task.Title,
		Status:   task.Status,
		Project:  task.Project,
		Priority: task.Priority,
		Assignee: task.Assignee,
		DueDate:  task.DueDate,
		Blockers: task.Blockers,
	}
}

func compressTaskList(content string) string {
	var payload struct {
		Tasks []entity.Task `json:"tasks"`
		Count int           `json:"count"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return content
	}
	if len(payload.Tasks) <= taskListLimit {
		return content
	}

	byStatus := make(map[string]int)
	for _, task := range payload.Tasks {
		byStatus[task.Status]++
	}
	top := make([]compactTask, 0, topItems)
	for i, task := range payload.Tasks {
		if i >= topItems {
			break
		}
		top = append(top, compact(task))
	}

	out, err := json.Marshal(map[string]any{
		"total_count":       len(payload.Tasks),
		"summary_by_status": byStatus,
		"top_5":             top,
		"note":              "List compressed; use filters or search for specific items.",
	})
	if err != nil {
		return content
	}
	return string(out)
}

func compressSearchHits(content string) string {
	var payload struct {
		Hits  []entity.ScoredTask `json:"hits"`
		Count int                 `json:"count"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return content
	}

	type compactHit struct {
		compactTask
		Score float64 `json:"score"`
	}
	hits := make([]compactHit, 0, len(payload.Hits))
	for _, hit := range payload.Hits {
		hits = append(hits, compactHit{compactTask: compact(hit.Task), Score: hit.Score})
	}
	out, err := json.Marshal(map[string]any{"hits": hits, "count": len(hits)})
	if err != nil {
		return content
	}
	return string(out)
}

func compressProjectList(content string) string {
	var payload struct {
		Projects []entity.Project `json:"projects"`
		Count    int              `json:"count"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return content
	}
	if len(payload.Projects) <= projectListLimit {
		return content
	}

	byStatus := make(map[string]int)
	for _, project := range payload.Projects {
		byStatus[project.Status]++
	}
	type compactProject struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Status string `json:"status"`
	}
	top := make([]compactProject, 0, topItems)
	for i, project := range payload.Projects {
		if i >= topItems {
			break
		}
		top = append(top, compactProject{ID: project.ID, Name: project.Name, Status: project.Status})
	}

	out, err := json.Marshal(map[string]any{
		"total_count":       len(payload.Projects),
		"summary_by_status": byStatus,
		"top_5":             top,
		"note":              "List compressed; ask for a specific project for detail.",
	})
	if err != nil {
		return content
	}
	return string(out)
}
