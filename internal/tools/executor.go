package tools

import (
	"context"
	"time"

	ottoerrors "otto/internal/errors"
	"otto/internal/logging"
	"otto/internal/memory"
)

// Executor resolves tools from the registry, runs them with the store
// deadline, and applies mutation side effects: episodic append, working
// memory update, and summarizer notification.
type Executor struct {
	registry     *Registry
	storeTimeout time.Duration
	logger       logging.Logger
}

// NewExecutor builds an Executor over the registry.
func NewExecutor(registry *Registry, storeTimeout time.Duration, logger logging.Logger) *Executor {
	if storeTimeout == 0 {
		storeTimeout = 5 * time.Second
	}
	return &Executor{
		registry:     registry,
		storeTimeout: storeTimeout,
		logger:       logging.OrNop(logger),
	}
}

// Execute runs one tool call and returns its content. Side effects of a
// successful mutation are applied before returning; failures there are
// logged, not propagated, since the mutation itself already happened.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any, rctx *RunContext) (string, error) {
	tool, ok := e.registry.Get(name)
	if !ok {
		return "", ottoerrors.New(ottoerrors.KindValidation, "unknown tool: "+name)
	}

	start := time.Now()
	result, err := tool.Execute(ctx, args, rctx)
	if err != nil {
		e.logger.Warn("tool %s failed after %s: %v", name, time.Since(start), err)
		return "", err
	}
	e.logger.Debug("tool %s done in %s", name, time.Since(start))

	if result.Mutation != nil {
		e.applyMutation(ctx, result.Mutation, rctx)
	}
	return result.Content, nil
}

func (e *Executor) applyMutation(ctx context.Context, mutation *Mutation, rctx *RunContext) {
	// Side effects run on a detached deadline so request cancellation after
	// the mutation cannot lose the episodic record.
	sideCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.storeTimeout)
	defer cancel()

	_, err := rctx.Memory.RecordEpisodic(sideCtx, rctx.UserID,
		mutation.Action, mutation.Description,
		map[string]string{
			"entity_type": mutation.EntityType,
			"entity_id":   mutation.EntityID,
		}, true)
	if err != nil {
		e.logger.Warn("episodic append failed for %s: %v", mutation.EntityID, err)
	}

	if mutation.WorkingType != "" {
		rctx.Memory.SetWorking(rctx.SessionID, mutation.WorkingType, mutation.WorkingValue)
	}
	rctx.Memory.SetWorking(rctx.SessionID, memory.WorkingLastAction, mutation.Description)

	if rctx.Summarize != nil {
		rctx.Summarize(mutation.EntityType, mutation.EntityID, mutation.Title,
			mutation.ActivityCount, mutation.ContentChanged)
	}
}

// RegisterBuiltins installs the static tool catalogue.
func RegisterBuiltins(registry *Registry, knowledgeThreshold float64) {
	for _, tool := range []Tool{
		createTaskTool{},
		completeTaskTool(),
		startTaskTool(),
		stopTaskTool(),
		updateTaskTool{},
		addNoteTool{},
		getTaskTool{},
		listTasksTool{},
		searchTasksTool{},
		recentActivityTool{},
		createProjectTool{},
		updateProjectTool{},
		addProjectContextTool(),
		addProjectDecisionTool(),
		getProjectTool{},
		listProjectsTool{},
		NewSearchKnowledgeTool(knowledgeThreshold),
		listTemplatesTool{},
		analyzeDiscoveriesTool{},
		resolveDisambiguationTool{},
	} {
		registry.RegisterStatic(tool)
	}
}
