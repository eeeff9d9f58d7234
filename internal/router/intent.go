package router

import "strings"

// Intent classifies an utterance for tier-3/4 dispatch.
type Intent string

const (
	IntentTaskManagement Intent = "task_management"
	IntentMemoryQuery    Intent = "memory_query"
	IntentResearch       Intent = "research"
	IntentWebSearch      Intent = "web_search"
	IntentComplexQuery   Intent = "complex_query"
	IntentUnknown        Intent = "unknown"
)

// RequiresDiscovery reports whether the intent may only be served by the
// external discovery agent.
func (i Intent) RequiresDiscovery() bool {
	switch i {
	case IntentResearch, IntentWebSearch, IntentComplexQuery, IntentUnknown:
		return true
	}
	return false
}

var intentKeywords = []struct {
	intent   Intent
	keywords []string
}{
	{IntentWebSearch, []string{"latest", "news", "current", "recent developments", "search the web", "online", "look up online"}},
	{IntentResearch, []string{"research", "investigate", "market analysis", "competitive", "find out about", "deep dive"}},
	{IntentMemoryQuery, []string{"remember", "preference", "what do we know", "what did i", "history", "summary", "recall"}},
	{IntentTaskManagement, []string{"task", "project", "todo", "deadline", "assign", "complete", "start", "note", "create", "priority", "status", "work"}},
}

// ClassifyIntent is a keyword classifier; it never calls the LLM. Utterances
// with sequential connectors and mixed verbs are complex queries handled by
// the planner path.
func ClassifyIntent(text string) Intent {
	lower := strings.ToLower(text)

	if hasSequentialIndicator(lower) {
		return IntentComplexQuery
	}
	for _, group := range intentKeywords {
		for _, keyword := range group.keywords {
			if strings.Contains(lower, keyword) {
				return group.intent
			}
		}
	}
	return IntentUnknown
}

var sequentialIndicators = []string{" and then ", " then ", " followed by ", " after that "}

var researchVerbs = []string{"research", "investigate", "analyze", "find out", "look into", "explore"}

var actionVerbs = []string{"create", "make", "build", "set up", "add", "generate", "start"}

func hasSequentialIndicator(lower string) bool {
	sequential := false
	for _, indicator := range sequentialIndicators {
		if strings.Contains(lower, indicator) {
			sequential = true
			break
		}
	}
	if !sequential && strings.Contains(lower, " and ") {
		sequential = true
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
