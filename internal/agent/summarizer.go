package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"otto/internal/async"
	"otto/internal/llm"
	"otto/internal/logging"
	"otto/internal/memory"
)

// summarizerBudget is the detached deadline for one digest generation.
const summarizerBudget = 20 * time.Second

// Summarizer generates entity digests on a small model, detached from the
// mutating request. Failures are logged and swallowed.
type Summarizer struct {
	client llm.Client
	memory *memory.Manager
	logger logging.Logger
}

// NewSummarizer builds a Summarizer.
func NewSummarizer(client llm.Client, mem *memory.Manager, logger logging.Logger) *Summarizer {
	return &Summarizer{
		client: client,
		memory: mem,
		logger: logging.OrNop(logger),
	}
}

// ShouldSummarize applies the trigger rules: tasks on activity counts
// 1, 5, 9, ...; projects whenever description or notes changed.
func ShouldSummarize(entityType string, activityCount int, contentChanged bool) bool {
	switch entityType {
	case "task":
		return activityCount > 0 && activityCount%4 == 1
	case "project":
		return contentChanged
	}
	return false
}

// Notify is the fire-and-forget entry point wired into the tool executor.
// It returns immediately; generation runs on its own deadline.
func (s *Summarizer) Notify(entityType, entityID, title string, activityCount int, contentChanged bool) {
	if !ShouldSummarize(entityType, activityCount, contentChanged) {
		return
	}
	async.Go(s.logger, "summarizer", func() {
		ctx, cancel := context.WithTimeout(context.Background(), summarizerBudget)
		defer cancel()
		if err := s.generate(ctx, entityType, entityID, title, activityCount); err != nil {
			s.logger.Warn("summary generation for %s %s failed: %v", entityType, entityID, err)
		}
	})
}

func (s *Summarizer) generate(ctx context.Context, entityType, entityID, title string, activityCount int) error {
	var relevant []string
	for _, event := range s.memory.ListEpisodicByEntity(entityID, 10) {
		relevant = append(relevant, fmt.Sprintf("[%s] %s", event.Action, event.Description))
	}

	prompt := fmt.Sprintf("Summarize the current state of %s %q in two sentences.", entityType, title)
	if len(relevant) > 0 {
		prompt += "\nRecent activity:\n" + strings.Join(relevant, "\n")
	}

	resp, err := s.client.Complete(ctx, llm.CompletionRequest{
		Temperature: 0,
		MaxTokens:   200,
		Messages: []llm.Message{
			{Role: "system", Content: "You write terse status digests. Two sentences, no preamble."},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return fmt.Errorf("model returned an empty summary")
	}

	s.memory.StoreSummary(entityType, entityID, strings.TrimSpace(resp.Content), activityCount)
	s.logger.Debug("stored summary for %s %s at activity %d", entityType, entityID, activityCount)
	return nil
}
