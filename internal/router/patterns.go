package router

import (
	"regexp"
	"strings"
)

// patternRule pairs a compiled regex with an extractor that builds the
// structured command from the submatches.
type patternRule struct {
	name    string
	pattern *regexp.Regexp
	extract func(matches []string) Command
}

// patternRules is scanned in order; the first match wins. The ordering is
// load-bearing: action verbs outrank status words ("I finished X" must become
// a completion, not a done-filter), temporal filters outrank plain status
// filters, and the open search rule is last.
var patternRules = []patternRule{
	// 1. Action verbs.
	{
		name:    "complete_task",
		pattern: regexp.MustCompile(`(?i)^(?:i(?:'ve| have| just)?\s+)?(?:finished|completed|done with|wrapped up)\s+(?:the\s+|my\s+)?(.+?)[.!]?$`),
		extract: func(m []string) Command {
			return Command{Verb: VerbDo, Action: ActionComplete, Ref: cleanRef(m[1])}
		},
	},
	{
		name:    "mark_done",
		pattern: regexp.MustCompile(`(?i)^(?:please\s+)?(?:mark|set)\s+(?:the\s+)?(.+?)\s+(?:as\s+)?(?:done|complete|completed|finished)[.!]?$`),
		extract: func(m []string) Command {
			return Command{Verb: VerbDo, Action: ActionComplete, Ref: cleanRef(m[1])}
		},
	},
	{
		name:    "start_task",
		pattern: regexp.MustCompile(`(?i)^(?:i(?:'m| am)?\s+)?(?:start(?:ing|ed)?|begin(?:ning)?|working on)\s+(?:the\s+|my\s+|on\s+)?(.+?)[.!]?$`),
		extract: func(m []string) Command {
			return Command{Verb: VerbDo, Action: ActionStart, Ref: cleanRef(m[1])}
		},
	},
	// 2. Temporal filters.
	{
		name:    "due_today",
		pattern: regexp.MustCompile(`(?i)^(?:what(?:'s| is)?\s+|show\s+(?:me\s+)?|list\s+)?(?:tasks?\s+)?due\s+today\??$|(?i)^what(?:'s| is)? due today\??$`),
		extract: func([]string) Command {
			return Command{Verb: VerbTasks, Filters: map[string]string{"due": "today"}}
		},
	},
	{
		name:    "due_this_week",
		pattern: regexp.MustCompile(`(?i)(?:tasks?|work|anything)?\s*due\s+this\s+week\??`),
		extract: func([]string) Command {
			return Command{Verb: VerbTasks, Filters: map[string]string{"due": "this_week"}}
		},
	},
	{
		name:    "updated_yesterday",
		pattern: regexp.MustCompile(`(?i)^what\s+(?:happened|changed|did i do)\s+yesterday\??$`),
		extract: func([]string) Command {
			return Command{Verb: VerbTasks, Filters: map[string]string{"updated": "yesterday"}}
		},
	},
	// 3. Explicit project-detail lookup.
	{
		name:    "show_project",
		pattern: regexp.MustCompile(`(?i)^(?:show\s+(?:me\s+)?|open\s+|what about\s+)(?:the\s+)?(.+?)\s+project\??$`),
		extract: func(m []string) Command {
			return Command{Verb: VerbProjects, Filters: map[string]string{}, Query: cleanRef(m[1])}
		},
	},
	// 4. Compound filter: assignee + status.
	{
		name:    "assignee_in_progress",
		pattern: regexp.MustCompile(`(?i)^what(?:'s| is)?\s+(\w+)\s+working\s+on\??$`),
		extract: func(m []string) Command {
			return Command{Verb: VerbTasks, Filters: map[string]string{
				"assignee": strings.ToLower(m[1]),
				"status":   "in_progress",
			}}
		},
	},
	// 5. Single-attribute filters.
	{
		name:    "status_in_progress",
		pattern: regexp.MustCompile(`(?i)^(?:what(?:'s| is)?\s+)?(?:currently\s+)?in\s+progress\??$|(?i)^what am i working on\??$`),
		extract: func([]string) Command {
			return Command{Verb: VerbTasks, Filters: map[string]string{"status": "in_progress"}}
		},
	},
	{
		name:    "status_todo",
		pattern: regexp.MustCompile(`(?i)^(?:what(?:'s| is)?\s+)?(?:left\s+)?(?:to\s*do|todo|outstanding|remaining)\??$|(?i)^what(?:'s| is)? left\??$`),
		extract: func([]string) Command {
			return Command{Verb: VerbTasks, Filters: map[string]string{"status": "todo"}}
		},
	},
	{
		name:    "status_done",
		pattern: regexp.MustCompile(`(?i)^(?:what(?:'s| is)?\s+|show\s+(?:me\s+)?)?(?:recently\s+)?(?:completed|done|finished)(?:\s+tasks?)?\??$`),
		extract: func([]string) Command {
			return Command{Verb: VerbCompleted, Filters: map[string]string{}}
		},
	},
	{
		name:    "priority_filter",
		pattern: regexp.MustCompile(`(?i)^(?:show\s+(?:me\s+)?|list\s+|what are\s+(?:the\s+)?)?(low|medium|high)[\s-]priority(?:\s+tasks?)?\??$`),
		extract: func(m []string) Command {
			return Command{Verb: VerbTasks, Filters: map[string]string{"priority": strings.ToLower(m[1])}}
		},
	},
	// 6. List-all projects.
	{
		name:    "list_projects",
		pattern: regexp.MustCompile(`(?i)^(?:show\s+(?:me\s+)?|list\s+)?(?:all\s+|my\s+)?projects\??$`),
		extract: func([]string) Command {
			return Command{Verb: VerbProjects, Filters: map[string]string{}}
		},
	},
	// 7. General status.
	{
		name:    "general_status",
		pattern: regexp.MustCompile(`(?i)^(?:how(?:'s| is| are)\s+(?:it|things|everything)\s+(?:going|looking)\??|status\??|what(?:'s| is)\s+(?:the\s+)?status\??|give me an? (?:overview|update)\.?)$`),
		extract: func([]string) Command {
			return Command{Verb: VerbTasks, Filters: map[string]string{}}
		},
	},
	// 8. Open search (fallback).
	{
		name:    "open_search",
		pattern: regexp.MustCompile(`(?i)^(?:find|search(?:\s+for)?|look\s+(?:for|up))\s+(.+?)\??$`),
		extract: func(m []string) Command {
			return Command{Verb: VerbSearch, Query: cleanRef(m[1])}
		},
	},
}

// MatchPattern scans the ordered rules and returns the first matching
// command. Pure function, no I/O; returns false on no match, never errors.
func MatchPattern(text string) (Command, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Command{}, false
	}
	for _, rule := range patternRules {
		if matches := rule.pattern.FindStringSubmatch(trimmed); matches != nil {
			return rule.extract(matches), true
		}
	}
	return Command{}, false
}

func cleanRef(ref string) string {
	ref = strings.TrimSpace(ref)
	ref = strings.Trim(ref, `"'`)
	return strings.TrimSuffix(ref, ".")
}
