package tools

import (
	"context"
	"fmt"
	"strings"

	"otto/internal/entity"
	ottoerrors "otto/internal/errors"
	"otto/internal/llm"
	"otto/internal/memory"
)

func resolveProject(ctx context.Context, rctx *RunContext, ref string) (entity.Project, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return entity.Project{}, ottoerrors.New(ottoerrors.KindValidation, "project reference is required")
	}
	if strings.HasPrefix(ref, "proj_") {
		return rctx.Projects.Get(ctx, ref)
	}
	return rctx.Projects.GetByName(ctx, rctx.UserID, ref)
}

// --- create_project ---

type createProjectTool struct{}

func (createProjectTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "create_project",
		Description: "Create a new project.",
		Parameters: llm.ParameterSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"name":        {Type: "string"},
				"description": {Type: "string"},
			},
			Required: []string{"name"},
		},
	}
}

func (createProjectTool) Execute(ctx context.Context, args map[string]any, rctx *RunContext) (*Result, error) {
	name := strings.TrimSpace(stringArg(args, "name"))
	if name == "" {
		return nil, ottoerrors.New(ottoerrors.KindValidation, "name is required")
	}
	project, err := rctx.Projects.Insert(ctx, entity.Project{
		UserID:      rctx.UserID,
		Name:        name,
		Description: stringArg(args, "description"),
	})
	if err != nil {
		return nil, err
	}
	result, err := jsonResult(project)
	if err != nil {
		return nil, err
	}
	result.Mutation = &Mutation{
		EntityType:     "project",
		EntityID:       project.ID,
		Title:          project.Name,
		Action:         "project_created",
		Description:    fmt.Sprintf("created project %q", project.Name),
		ContentChanged: project.Description != "",
		WorkingType:    memory.WorkingCurrentProject,
		WorkingValue:   project.Name,
	}
	return result, nil
}

// --- update_project ---

type updateProjectTool struct{}

func (updateProjectTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "update_project",
		Description: "Update project fields. Only provided fields change.",
		Parameters: llm.ParameterSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"ref":         {Type: "string", Description: "Project id or name"},
				"name":        {Type: "string"},
				"status":      {Type: "string"},
				"description": {Type: "string"},
			},
			Required: []string{"ref"},
		},
	}
}

func (updateProjectTool) Execute(ctx context.Context, args map[string]any, rctx *RunContext) (*Result, error) {
	project, err := resolveProject(ctx, rctx, stringArg(args, "ref"))
	if err != nil {
		return nil, err
	}

	var patch entity.ProjectPatch
	contentChanged := false
	if v := stringArg(args, "name"); v != "" {
		patch.Name = &v
	}
	if v := stringArg(args, "status"); v != "" {
		patch.Status = &v
	}
	if v := stringArg(args, "description"); v != "" {
		patch.Description = &v
		contentChanged = true
	}

	updated, err := rctx.Projects.Update(ctx, project.ID, patch)
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
		Action:         "project_updated",
		Description:    fmt.Sprintf("updated project %q", updated.Name),
		ContentChanged: contentChanged,
		WorkingType:    memory.WorkingCurrentProject,
		WorkingValue:   updated.Name,
	}
	return result, nil
}

// --- add_project_context / add_project_decision ---

// projectAppendTool appends one line to a project list field. Context and
// decisions share the shape; notes go through add_note because they also
// retrigger summarization.
type projectAppendTool struct {
	name   string
	desc   string
	field  string
	action string
}

func addProjectContextTool() Tool {
	return projectAppendTool{
		name: "add_project_context", desc: "Attach background context to a project.",
		field: "context", action: "project_context_added",
	}
}

func addProjectDecisionTool() Tool {
	return projectAppendTool{
		name: "add_project_decision", desc: "Record a decision made on a project.",
		field: "decision", action: "project_decision_added",
	}
}

func (t projectAppendTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        t.name,
		Description: t.desc,
		Parameters: llm.ParameterSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"ref":  {Type: "string", Description: "Project id or name"},
				"text": {Type: "string", Description: "Entry body"},
			},
			Required: []string{"ref", "text"},
		},
	}
}

func (t projectAppendTool) Execute(ctx context.Context, args map[string]any, rctx *RunContext) (*Result, error) {
	text := strings.TrimSpace(stringArg(args, "text"))
	if text == "" {
		return nil, ottoerrors.New(ottoerrors.KindValidation, t.field+" text is required")
	}
	project, err := resolveProject(ctx, rctx, stringArg(args, "ref"))
	if err != nil {
		return nil, err
	}

	var patch entity.ProjectPatch
	if t.field == "decision" {
		patch.AddDecision = &text
	} else {
		patch.AddContext = &text
	}
	updated, err := rctx.Projects.Update(ctx, project.ID, patch)
	if err != nil {
		return nil, err
	}
	result, err := jsonResult(updated)
	if err != nil {
		return nil, err
	}
	result.Mutation = &Mutation{
		EntityType:   "project",
		EntityID:     updated.ID,
		Title:        updated.Name,
		Action:       t.action,
		Description:  fmt.Sprintf("added %s to project %q", t.field, updated.Name),
		WorkingType:  memory.WorkingCurrentProject,
		WorkingValue: updated.Name,
	}
	return result, nil
}

// --- get_project ---

type getProjectTool struct{}

func (getProjectTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "get_project",
		Description: "Fetch one project with its tasks and latest summary.",
		Parameters: llm.ParameterSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"ref": {Type: "string", Description: "Project id or name"},
			},
			Required: []string{"ref"},
		},
	}
}

func (getProjectTool) Execute(ctx context.Context, args map[string]any, rctx *RunContext) (*Result, error) {
	project, err := resolveProject(ctx, rctx, stringArg(args, "ref"))
	if err != nil {
		return nil, err
	}
	tasks, err := rctx.Tasks.Find(ctx, entity.TaskFilter{
		UserID:  rctx.UserID,
		Project: project.Name,
	}, 50)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{"project": project, "tasks": tasks}
	if summary, ok := rctx.Memory.LatestSummary("project", project.ID); ok {
		payload["summary"] = summary.Summary
	}
	return jsonResult(payload)
}

// --- list_projects ---

type listProjectsTool struct{}

func (listProjectsTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "list_projects",
		Description: "List projects with optional status filter.",
		Parameters: llm.ParameterSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"status": {Type: "string"},
				"limit":  {Type: "integer"},
			},
		},
	}
}

func (listProjectsTool) Execute(ctx context.Context, args map[string]any, rctx *RunContext) (*Result, error) {
	projects, err := rctx.Projects.Find(ctx, entity.ProjectFilter{
		UserID: rctx.UserID,
		Status: stringArg(args, "status"),
	}, intArg(args, "limit", 50))
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{"projects": projects, "count": len(projects)})
}
