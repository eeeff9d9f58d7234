// Package router implements the four-tier dispatch cascade: regex patterns,
// the explicit slash-command dialect, the LLM tool loop, and the discovery
// agent.
package router

import (
	"fmt"
	"sort"
	"strings"

	ottoerrors "otto/internal/errors"
)

// Command verbs.
const (
	VerbTasks     = "tasks"
	VerbProjects  = "projects"
	VerbSearch    = "search"
	VerbCompleted = "completed"
	VerbDo        = "do"
	VerbHelp      = "help"
)

// Do-command actions.
const (
	ActionComplete = "complete"
	ActionStart    = "start"
	ActionStop     = "stop"
	ActionNote     = "note"
	ActionCreate   = "create"
)

// Search modes.
const (
	ModeHybrid = ""
	ModeVector = "vector"
	ModeText   = "text"
)

// Command is the structured form shared by the pattern matcher and the
// slash-command parser. Every pattern match renders back to a valid
// slash-command string via String.
type Command struct {
	Verb    string
	Action  string            // set when Verb == do
	Ref     string            // do-command target reference
	Text    string            // note body or create title
	Filters map[string]string // closed vocabulary, see filterKeys
	Query   string            // free-form search query
	Mode    string            // search mode: "", vector, text
	Topic   string            // help topic
}

var filterKeys = map[string]map[string]bool{
	"status":   {"todo": true, "in_progress": true, "done": true},
	"priority": {"low": true, "medium": true, "high": true},
	"project":  nil, // open values
	"assignee": nil,
	"due":      {"today": true, "this_week": true, "yesterday": true},
	"updated":  {"today": true, "this_week": true, "yesterday": true},
}

// String renders the command in the explicit slash dialect.
func (c Command) String() string {
	var b strings.Builder
	b.WriteString("/")
	b.WriteString(c.Verb)
	if c.Mode != ModeHybrid {
		b.WriteString(":")
		b.WriteString(c.Mode)
	}

	switch c.Verb {
	case VerbDo:
		b.WriteString(" ")
		b.WriteString(c.Action)
		if c.Action == ActionCreate {
			fmt.Fprintf(&b, " %q", c.Text)
			return b.String()
		}
		if c.Ref != "" {
			b.WriteString(" ")
			b.WriteString(c.Ref)
		}
		if c.Action == ActionNote {
			fmt.Fprintf(&b, " %q", c.Text)
		}
		return b.String()
	case VerbHelp:
		if c.Topic != "" {
			b.WriteString(" ")
			b.WriteString(c.Topic)
		}
		return b.String()
	}

	keys := make([]string, 0, len(c.Filters))
	for key := range c.Filters {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := c.Filters[key]
		if strings.ContainsAny(value, " \t") {
			fmt.Fprintf(&b, " %s:%q", key, value)
		} else {
			fmt.Fprintf(&b, " %s:%s", key, value)
		}
	}
	if c.Query != "" {
		b.WriteString(" ")
		b.WriteString(c.Query)
	}
	return b.String()
}

// ParseCommand parses an explicit slash command. A nil error means the
// command is well formed; callers render returned parse errors to the user
// verbatim. No side effects.
func ParseCommand(input string) (Command, error) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return Command{}, parseError("commands start with /")
	}

	tokens, err := splitTokens(input[1:])
	if err != nil {
		return Command{}, err
	}
	if len(tokens) == 0 || tokens[0] == "" {
		return Command{}, parseError("missing verb")
	}

	verb, mode, ok := splitVerb(tokens[0])
	if !ok {
		return Command{}, parseError("unknown verb /" + tokens[0])
	}
	rest := tokens[1:]

	switch verb {
	case VerbDo:
		return parseDo(rest)
	case VerbHelp:
		cmd := Command{Verb: VerbHelp}
		if len(rest) > 0 {
			cmd.Topic = rest[0]
		}
		return cmd, nil
	case VerbCompleted:
		cmd := Command{Verb: VerbCompleted, Filters: map[string]string{}}
		return parseFilters(cmd, rest)
	case VerbSearch:
		cmd := Command{Verb: VerbSearch, Mode: mode}
		cmd.Query = strings.Join(rest, " ")
		if cmd.Query == "" {
			return Command{}, parseError("search needs a query")
		}
		return cmd, nil
	case VerbTasks, VerbProjects:
		cmd := Command{Verb: verb, Filters: map[string]string{}}
		return parseFilters(cmd, rest)
	}
	return Command{}, parseError("unknown verb /" + verb)
}

func splitVerb(token string) (verb, mode string, ok bool) {
	if idx := strings.IndexByte(token, ':'); idx > 0 {
		verb, mode = token[:idx], token[idx+1:]
		if verb != VerbSearch || (mode != ModeVector && mode != ModeText) {
			return "", "", false
		}
		return verb, mode, true
	}
	switch token {
	case VerbTasks, VerbProjects, VerbSearch, VerbCompleted, VerbDo, VerbHelp:
		return token, ModeHybrid, true
	}
	return "", "", false
}

func parseDo(tokens []string) (Command, error) {
	if len(tokens) == 0 {
		return Command{}, parseError("do needs an action (complete, start, stop, note, create)")
	}
	cmd := Command{Verb: VerbDo, Action: tokens[0]}
	rest := tokens[1:]

	switch cmd.Action {
	case ActionComplete, ActionStart, ActionStop:
		if len(rest) == 0 {
			return Command{}, parseError("do " + cmd.Action + " needs a task reference")
		}
		cmd.Ref = strings.Join(rest, " ")
		return cmd, nil
	case ActionNote:
		if len(rest) < 2 {
			return Command{}, parseError(`do note needs a reference and quoted text`)
		}
		cmd.Text = rest[len(rest)-1]
		cmd.Ref = strings.Join(rest[:len(rest)-1], " ")
		return cmd, nil
	case ActionCreate:
		if len(rest) == 0 {
			return Command{}, parseError(`do create needs a quoted title`)
		}
		cmd.Text = strings.Join(rest, " ")
		return cmd, nil
	}
	return Command{}, parseError("unknown action: do " + cmd.Action)
}

func parseFilters(cmd Command, tokens []string) (Command, error) {
	var free []string
	for _, token := range tokens {
		idx := strings.IndexByte(token, ':')
		if idx <= 0 {
			free = append(free, token)
			continue
		}
		key, value := token[:idx], token[idx+1:]
		allowed, known := filterKeys[key]
		if !known {
			free = append(free, token)
			continue
		}
		if value == "" {
			return Command{}, parseError("filter " + key + ": needs a value")
		}
		if allowed != nil && !allowed[value] {
			return Command{}, parseError(fmt.Sprintf("invalid %s value %q", key, value))
		}
		cmd.Filters[key] = value
	}
	cmd.Query = strings.Join(free, " ")
	return cmd, nil
}

// splitTokens splits on whitespace, honoring double-quoted segments.
func splitTokens(input string) ([]string, error) {
	var tokens []string
	var current strings.Builder
	inQuote := false
	for _, r := range input {
		switch {
		case r == '"':
			if inQuote {
				tokens = append(tokens, current.String())
				current.Reset()
			}
			inQuote = !inQuote
		case !inQuote && (r == ' ' || r == '\t'):
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if inQuote {
		return nil, parseError("unterminated quote")
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens, nil
}

func parseError(message string) error {
	return ottoerrors.New(ottoerrors.KindParse, message)
}
