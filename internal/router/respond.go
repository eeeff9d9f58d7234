package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"otto/internal/entity"
	"otto/internal/tools"
)

// executeCommand runs a structured command through the tool executor and
// renders a short human answer. Tiers 1 and 2 both land here; only store
// operations are involved, never the LLM.
func (r *Router) executeCommand(ctx context.Context, cmd Command, rctx *tools.RunContext) (string, error) {
	switch cmd.Verb {
	case VerbTasks:
		if cmd.Query != "" {
			return r.runSearch(ctx, cmd.Query, ModeHybrid, rctx)
		}
		args := map[string]any{}
		for key, value := range cmd.Filters {
			args[key] = value
		}
		content, err := r.executor.Execute(ctx, "list_tasks", args, rctx)
		if err != nil {
			return "", err
		}
		return renderTaskList(content, cmd.Filters), nil

	case VerbCompleted:
		content, err := r.executor.Execute(ctx, "list_tasks", map[string]any{"status": "done"}, rctx)
		if err != nil {
			return "", err
		}
		return renderTaskList(content, map[string]string{"status": "done"}), nil

	case VerbProjects:
		if cmd.Query != "" {
			content, err := r.executor.Execute(ctx, "get_project", map[string]any{"ref": cmd.Query}, rctx)
			if err != nil {
				return "", err
			}
			return renderProjectDetail(content), nil
		}
		content, err := r.executor.Execute(ctx, "list_projects", map[string]any{}, rctx)
		if err != nil {
			return "", err
		}
		return renderProjectList(content), nil

	case VerbSearch:
		return r.runSearch(ctx, cmd.Query, cmd.Mode, rctx)

	case VerbDo:
		return r.runDo(ctx, cmd, rctx)

	case VerbHelp:
		return helpText(cmd.Topic), nil
	}
	return "", fmt.Errorf("unroutable command verb %q", cmd.Verb)
}

func (r *Router) runSearch(ctx context.Context, query, mode string, rctx *tools.RunContext) (string, error) {
	args := map[string]any{"query": query}
	if mode != ModeHybrid {
		args["mode"] = mode
	}
	content, err := r.executor.Execute(ctx, "search_tasks", args, rctx)
	if err != nil {
		return "", err
	}
	return renderSearchHits(content, query), nil
}

func (r *Router) runDo(ctx context.Context, cmd Command, rctx *tools.RunContext) (string, error) {
	switch cmd.Action {
	case ActionComplete, ActionStart, ActionStop:
		toolName := map[string]string{
			ActionComplete: "complete_task",
			ActionStart:    "start_task",
			ActionStop:     "stop_task",
		}[cmd.Action]
		content, err := r.executor.Execute(ctx, toolName, map[string]any{"ref": cmd.Ref}, rctx)
		if err != nil {
			return "", err
		}
		return renderStatusChange(content, cmd.Action), nil

	case ActionNote:
		content, err := r.executor.Execute(ctx, "add_note",
			map[string]any{"ref": cmd.Ref, "text": cmd.Text}, rctx)
		if err != nil {
			return "", err
		}
		return renderNoteAdded(content), nil

	case ActionCreate:
		content, err := r.executor.Execute(ctx, "create_task",
			map[string]any{"title": cmd.Text}, rctx)
		if err != nil {
			return "", err
		}
		var task entity.Task
		if err := json.Unmarshal([]byte(content), &task); err == nil && task.Title != "" {
			return fmt.Sprintf("Created %q.", task.Title), nil
		}
		return "Task created.", nil
	}
	return "", fmt.Errorf("unroutable do action %q", cmd.Action)
}

// Rendering helpers. Tool results that fail to parse (e.g. a disambiguation
// question) are returned as-is.

func renderTaskList(content string, filters map[string]string) string {
	var payload struct {
		Tasks []entity.Task `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return content
	}
	if len(payload.Tasks) == 0 {
		return "No tasks" + filterSuffix(filters) + "."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d task%s%s:\n", len(payload.Tasks), plural(len(payload.Tasks)), filterSuffix(filters))
	for i, task := range payload.Tasks {
		if i >= 10 {
			fmt.Fprintf(&b, "...and %d more.\n", len(payload.Tasks)-i)
			break
		}
		line := fmt.Sprintf("- %s [%s]", task.Title, task.Status)
		if task.Project != "" {
			line += " (" + task.Project + ")"
		}
		if task.DueDate != "" {
			line += " due " + task.DueDate
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderSearchHits(content, query string) string {
	var payload struct {
		Hits []entity.ScoredTask `json:"hits"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return content
	}
	if len(payload.Hits) == 0 {
		return fmt.Sprintf("Nothing matches %q.", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Matches for %q:\n", query)
	for i, hit := range payload.Hits {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&b, "- %s [%s]\n", hit.Task.Title, hit.Task.Status)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderProjectList(content string) string {
	var payload struct {
		Projects []entity.Project `json:"projects"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return content
	}
	if len(payload.Projects) == 0 {
		return "No projects yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d project%s:\n", len(payload.Projects), plural(len(payload.Projects)))
	for _, project := range payload.Projects {
		fmt.Fprintf(&b, "- %s [%s]\n", project.Name, project.Status)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderProjectDetail(content string) string {
	var payload struct {
		Project entity.Project `json:"project"`
		Tasks   []entity.Task  `json:"tasks"`
		Summary string         `json:"summary"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return content
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s]\n", payload.Project.Name, payload.Project.Status)
	if payload.Summary != "" {
		b.WriteString(payload.Summary + "\n")
	} else if payload.Project.Description != "" {
		b.WriteString(payload.Project.Description + "\n")
	}
	if len(payload.Tasks) > 0 {
		fmt.Fprintf(&b, "%d task%s:\n", len(payload.Tasks), plural(len(payload.Tasks)))
		for _, task := range payload.Tasks {
			fmt.Fprintf(&b, "- %s [%s]\n", task.Title, task.Status)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderStatusChange(content, action string) string {
	var task entity.Task
	if err := json.Unmarshal([]byte(content), &task); err != nil || task.Title == "" {
		return content
	}
	switch action {
	case ActionComplete:
		return fmt.Sprintf("Marked %q as done.", task.Title)
	case ActionStart:
		return fmt.Sprintf("Started %q.", task.Title)
	case ActionStop:
		return fmt.Sprintf("Moved %q back to todo.", task.Title)
	}
	return content
}

func renderNoteAdded(content string) string {
	var task entity.Task
	if err := json.Unmarshal([]byte(content), &task); err != nil || task.Title == "" {
		return content
	}
	return fmt.Sprintf("Noted on %q.", task.Title)
}

func filterSuffix(filters map[string]string) string {
	if len(filters) == 0 {
		return ""
	}
	var parts []string
	for _, key := range []string{"status", "priority", "project", "assignee", "due", "updated"} {
		if value, ok := filters[key]; ok {
			parts = append(parts, strings.ReplaceAll(value, "_", " "))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func helpText(topic string) string {
	switch topic {
	case VerbTasks:
		return "/tasks [status:todo|in_progress|done] [priority:low|medium|high] [project:<name>] [assignee:<name>] [due:today|this_week]"
	case VerbSearch:
		return "/search <query> — hybrid search; /search:vector and /search:text force one ranking"
	case VerbDo:
		return `/do complete <ref> | /do start <ref> | /do stop <ref> | /do note <ref> "text" | /do create "<title>"`
	case VerbProjects:
		return "/projects — list projects; /projects <name> — project detail"
	}
	return strings.Join([]string{
		"Commands:",
		"/tasks [filters]        list tasks",
		"/projects [name]        list projects or show one",
		"/search <query>         search tasks (also /search:vector, /search:text)",
		"/completed              recently completed tasks",
		`/do complete|start|stop <ref>`,
		`/do note <ref> "text"   add a note`,
		`/do create "<title>"    create a task`,
		"/help [verb]            detail on one command",
	}, "\n")
}
