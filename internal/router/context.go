package router

import (
	"fmt"
	"strings"
	"time"

	"otto/internal/memory"
	"otto/internal/shared/token"
)

// memoryContextBudget caps the injected block so it cannot crowd out the
// conversation itself.
const memoryContextBudget = 1500

// BuildMemoryContext assembles the system-prompt suffix injected before each
// LLM call: working memory, confident preferences, confident rules, recent
// episodic events, and any pending disambiguation, in that order. Empty
// sections are omitted; an entirely empty context returns "".
func BuildMemoryContext(mem *memory.Manager, sessionID, userID string) string {
	var sections []string

	var working []string
	for _, workingType := range []string{
		memory.WorkingCurrentProject,
		memory.WorkingCurrentTask,
		memory.WorkingLastAction,
	} {
		if value, ok := mem.GetWorking(sessionID, workingType); ok {
			working = append(working, fmt.Sprintf("- %s: %s", workingType, value))
		}
	}
	if len(working) > 0 {
		sections = append(sections, "Current context:\n"+strings.Join(working, "\n"))
	}

	if prefs := mem.GetPreferences(userID, 0.5); len(prefs) > 0 {
		var lines []string
		for _, pref := range prefs {
			lines = append(lines, fmt.Sprintf("- %s: %s", pref.Key, pref.Value))
		}
		sections = append(sections, "User preferences:\n"+strings.Join(lines, "\n"))
	}

	if rules := mem.ListRules(userID, 0.5); len(rules) > 0 {
		var lines []string
		for _, rule := range rules {
			lines = append(lines, fmt.Sprintf("- when %q: %s", rule.Trigger, rule.Action))
		}
		sections = append(sections, "Learned rules:\n"+strings.Join(lines, "\n"))
	}

	recent := mem.ListEpisodic(userID, memory.EpisodicFilter{
		Since: time.Now().Add(-7 * 24 * time.Hour),
		Limit: 5,
	})
	if len(recent) > 0 {
		var lines []string
		for _, event := range recent {
			lines = append(lines, fmt.Sprintf("- [%s] %s", event.Action, event.Description))
		}
		sections = append(sections, "Recent activity:\n"+strings.Join(lines, "\n"))
	}

	if handoff, ok := mem.PeekPending(sessionID, "assistant"); ok {
		sections = append(sections, fmt.Sprintf(
			"Pending disambiguation (%s): %v", handoff.Type, handoff.Payload))
	}

	if len(sections) == 0 {
		return ""
	}
	block := strings.Join(sections, "\n\n")
	return token.TruncateToTokens(block, memoryContextBudget)
}
