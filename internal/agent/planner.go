package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"otto/internal/llm"
	"otto/internal/logging"
	"otto/internal/memory"
	"otto/internal/tools"
)

const researchPreviewLimit = 200

// ResearchFunc performs one research step on behalf of userID and returns
// its textual findings.
type ResearchFunc func(ctx context.Context, query, userID string) (string, error)

// Planner detects and executes multi-step workflows such as
// "research X and then create a project with tasks".
type Planner struct {
	client     llm.Client
	executor   *tools.Executor
	research   ResearchFunc
	llmTimeout time.Duration
	logger     logging.Logger
}

// NewPlanner builds a Planner. research may be nil when no external research
// path is available; research steps then fail gracefully.
func NewPlanner(client llm.Client, executor *tools.Executor, research ResearchFunc, llmTimeout time.Duration, logger logging.Logger) *Planner {
	if llmTimeout == 0 {
		llmTimeout = 60 * time.Second
	}
	return &Planner{
		client:     client,
		executor:   executor,
		research:   research,
		llmTimeout: llmTimeout,
		logger:     logging.OrNop(logger),
	}
}

// WithoutResearch returns a planner without the external research capability.
// Research steps then degrade to a reported per-step failure instead of
// reaching any external service.
func (p *Planner) WithoutResearch() *Planner {
	if p.research == nil {
		return p
	}
	clone := *p
	clone.research = nil
	return &clone
}

// Step is one planned unit of work.
type Step struct {
	Intent      string `json:"intent"`
	Description string `json:"description"`
}

// StepOutcome reports one executed step.
type StepOutcome struct {
	Step    Step   `json:"step"`
	Success bool   `json:"success"`
	Detail  string `json:"detail"`
}

// Outcome is the planner's overall result.
type Outcome struct {
	MultiStep bool
	Partial   bool
	Steps     []StepOutcome
	Reply     string
}

var sequentialIndicators = []string{" and then ", " then ", " followed by ", " after that ", " and "}

var researchVerbs = []string{"research", "investigate", "analyze", "find out", "look into", "explore"}

var actionVerbs = []string{"create", "make", "build", "set up", "add", "generate", "start"}

// IsMultiStep is the cheap pre-check: sequential indicators plus at least one
// research verb and one action verb. No LLM call.
func IsMultiStep(text string) bool {
	lower := strings.ToLower(text)
	sequential := false
	for _, indicator := range sequentialIndicators {
		if strings.Contains(lower, indicator) {
			sequential = true
			break
		}
	}
	if !sequential {
		return false
	}
	return containsAny(lower, researchVerbs) && containsAny(lower, actionVerbs)
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}

// Plan asks the model to split the utterance into ordered steps. Any
// malformed output degrades to non-multi-step rather than guessing.
func (p *Planner) Plan(ctx context.Context, text string) ([]Step, bool) {
	if !IsMultiStep(text) {
		return nil, false
	}

	callCtx, cancel := context.WithTimeout(ctx, p.llmTimeout)
	defer cancel()
	resp, err := p.client.Complete(callCtx, llm.CompletionRequest{
		Temperature: 0,
		Messages: []llm.Message{
			{Role: "system", Content: `Split the user's request into ordered steps.
Respond with strict JSON only: {"steps":[{"intent":"research|create_project|generate_tasks","description":"..."}]}.
No prose, no markdown.`},
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		p.logger.Warn("planner llm call failed: %v", err)
		return nil, false
	}

	var parsed struct {
		Steps []Step `json:"steps"`
	}
	if err := json.Unmarshal([]byte(stripFences(resp.Content)), &parsed); err != nil {
		p.logger.Warn("planner output not valid JSON, treating as single-step: %v", err)
		return nil, false
	}
	if len(parsed.Steps) == 0 {
		return nil, false
	}
	for _, step := range parsed.Steps {
		switch step.Intent {
		case "research", "create_project", "generate_tasks":
		default:
			p.logger.Warn("planner emitted unknown intent %q, treating as single-step", step.Intent)
			return nil, false
		}
	}
	return parsed.Steps, true
}

// Execute runs steps sequentially, threading the accumulated context. A step
// failure aborts the remainder; the outcome reports per-step results.
func (p *Planner) Execute(ctx context.Context, steps []Step, rctx *tools.RunContext) Outcome {
	outcome := Outcome{MultiStep: true}
	state := &planState{}

	for _, step := range steps {
		detail, err := p.executeStep(ctx, step, state, rctx)
		if err != nil {
			p.logger.Warn("step %q failed: %v", step.Intent, err)
			outcome.Steps = append(outcome.Steps, StepOutcome{Step: step, Success: false, Detail: err.Error()})
			outcome.Partial = true
			break
		}
		outcome.Steps = append(outcome.Steps, StepOutcome{Step: step, Success: true, Detail: detail})
	}

	outcome.Reply = renderOutcome(outcome)
	return outcome
}

type planState struct {
	researchResults string
	projectID       string
	projectName     string
	template        *memory.ProceduralRule
	tasksGenerated  int
}

func (p *Planner) executeStep(ctx context.Context, step Step, state *planState, rctx *tools.RunContext) (string, error) {
	switch step.Intent {
	case "research":
		if p.research == nil {
			return "", fmt.Errorf("no research capability configured")
		}
		results, err := p.research(ctx, step.Description, rctx.UserID)
		if err != nil {
			return "", err
		}
		state.researchResults = results
		return "research complete", nil

	case "create_project":
		name := extractProjectName(step.Description)
		content, err := p.executor.Execute(ctx, "create_project", map[string]any{
			"name":        name,
			"description": step.Description,
		}, rctx)
		if err != nil {
			return "", err
		}
		var project struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		}
		if err := json.Unmarshal([]byte(content), &project); err != nil {
			return "", fmt.Errorf("unexpected create_project result: %w", err)
		}
		state.projectID = project.ID
		state.projectName = project.Name

		lower := strings.ToLower(step.Description)
		if strings.Contains(lower, "gtm") || strings.Contains(lower, "go-to-market") {
			// GetRuleForTrigger increments times_used exactly once per workflow.
			if template, ok := rctx.Memory.GetRuleForTrigger(rctx.UserID, "create_gtm_project"); ok {
				state.template = &template
			}
		}
		return fmt.Sprintf("created project %q", project.Name), nil

	case "generate_tasks":
		if state.template == nil {
			return "", fmt.Errorf("no workflow template available for task generation")
		}
		preview := truncatePreview(state.researchResults, researchPreviewLimit)
		for _, phase := range state.template.Phases {
			for _, title := range phase.Tasks {
				args := map[string]any{
					"title":   fmt.Sprintf("[%s] %s", phase.Name, title),
					"project": state.projectName,
				}
				if preview != "" {
					args["context"] = preview
				}
				if _, err := p.executor.Execute(ctx, "create_task", args, rctx); err != nil {
					return "", fmt.Errorf("create task %q: %w", title, err)
				}
				state.tasksGenerated++
			}
		}
		return fmt.Sprintf("generated %d tasks", state.tasksGenerated), nil
	}
	return "", fmt.Errorf("unknown step intent %q", step.Intent)
}

// truncatePreview cuts text to at most limit bytes without splitting a rune.
func truncatePreview(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

var projectNamePattern = regexp.MustCompile(`(?i)create\s+(?:a\s+|an\s+|the\s+)?(.+?)\s+project`)

func extractProjectName(description string) string {
	if matches := projectNamePattern.FindStringSubmatch(description); matches != nil {
		return strings.ToUpper(matches[1][:1]) + matches[1][1:]
	}
	return "New Project"
}

func renderOutcome(outcome Outcome) string {
	var b strings.Builder
	if outcome.Partial {
		b.WriteString("I completed part of that:\n")
	} else {
		b.WriteString("Done:\n")
	}
	for _, step := range outcome.Steps {
		mark := "✓"
		if !step.Success {
			mark = "✗"
		}
		fmt.Fprintf(&b, "%s %s — %s\n", mark, step.Step.Description, step.Detail)
	}
	return strings.TrimRight(b.String(), "\n")
}

// stripFences removes a markdown code fence wrapper if present.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
