package router

import (
	"reflect"
	"testing"
)

func TestMatchPatternActionVerbs(t *testing.T) {
	cases := []struct {
		input  string
		action string
		ref    string
	}{
		{"I finished the debugging doc", ActionComplete, "debugging doc"},
		{"finished the quarterly report", ActionComplete, "quarterly report"},
		{"I've completed my expense report.", ActionComplete, "expense report"},
		{"done with onboarding slides", ActionComplete, "onboarding slides"},
		{"wrapped up the retro notes!", ActionComplete, "retro notes"},
		{"mark the api review as done", ActionComplete, "api review"},
		{"I'm starting the migration plan", ActionStart, "migration plan"},
		{"working on the billing fix", ActionStart, "billing fix"},
	}
	for _, tc := range cases {
		cmd, ok := MatchPattern(tc.input)
		if !ok {
			t.Errorf("%q: no pattern matched", tc.input)
			continue
		}
		if cmd.Verb != VerbDo || cmd.Action != tc.action || cmd.Ref != tc.ref {
			t.Errorf("%q: got %s/%s ref=%q, want do/%s ref=%q",
				tc.input, cmd.Verb, cmd.Action, cmd.Ref, tc.action, tc.ref)
		}
	}
}

// "I finished X" carries a status word but must route as a completion action,
// not a done-filter query.
func TestMatchPatternActionBeatsStatus(t *testing.T) {
	cmd, ok := MatchPattern("I finished the debugging doc")
	if !ok {
		t.Fatal("expected a match")
	}
	if cmd.Verb != VerbDo || cmd.Action != ActionComplete {
		t.Fatalf("got %s/%s, want do/complete", cmd.Verb, cmd.Action)
	}

	cmd, ok = MatchPattern("show me completed tasks")
	if !ok {
		t.Fatal("expected a match")
	}
	if cmd.Verb != VerbCompleted {
		t.Fatalf("got verb %s, want completed", cmd.Verb)
	}
}

func TestMatchPatternFilters(t *testing.T) {
	cases := []struct {
		input   string
		verb    string
		filters map[string]string
	}{
		{"what's due today?", VerbTasks, map[string]string{"due": "today"}},
		{"anything due this week?", VerbTasks, map[string]string{"due": "this_week"}},
		{"what happened yesterday?", VerbTasks, map[string]string{"updated": "yesterday"}},
		{"what's in progress?", VerbTasks, map[string]string{"status": "in_progress"}},
		{"what am i working on?", VerbTasks, map[string]string{"status": "in_progress"}},
		{"what's left?", VerbTasks, map[string]string{"status": "todo"}},
		{"high priority tasks", VerbTasks, map[string]string{"priority": "high"}},
		{"what's sarah working on?", VerbTasks, map[string]string{"assignee": "sarah", "status": "in_progress"}},
	}
	for _, tc := range cases {
		cmd, ok := MatchPattern(tc.input)
		if !ok {
			t.Errorf("%q: no pattern matched", tc.input)
			continue
		}
		if cmd.Verb != tc.verb {
			t.Errorf("%q: got verb %s, want %s", tc.input, cmd.Verb, tc.verb)
		}
		if !reflect.DeepEqual(cmd.Filters, tc.filters) {
			t.Errorf("%q: got filters %v, want %v", tc.input, cmd.Filters, tc.filters)
		}
	}
}

func TestMatchPatternProjects(t *testing.T) {
	cmd, ok := MatchPattern("show me the onboarding project")
	if !ok || cmd.Verb != VerbProjects || cmd.Query != "onboarding" {
		t.Fatalf("got %+v ok=%v, want projects query=onboarding", cmd, ok)
	}

	cmd, ok = MatchPattern("list my projects")
	if !ok || cmd.Verb != VerbProjects || cmd.Query != "" {
		t.Fatalf("got %+v ok=%v, want bare projects", cmd, ok)
	}
}

func TestMatchPatternOpenSearch(t *testing.T) {
	cmd, ok := MatchPattern("find the auth refactor tasks")
	if !ok || cmd.Verb != VerbSearch {
		t.Fatalf("got %+v ok=%v, want a search", cmd, ok)
	}
	if cmd.Query != "the auth refactor tasks" {
		t.Fatalf("got query %q", cmd.Query)
	}
}

func TestMatchPatternNoMatch(t *testing.T) {
	for _, input := range []string{
		"",
		"plan a launch campaign for the new feature and create tasks",
		"why is the deploy pipeline flaky lately",
	} {
		if cmd, ok := MatchPattern(input); ok {
			t.Errorf("%q unexpectedly matched as %+v", input, cmd)
		}
	}
}

// Every pattern result renders to a slash command that parses back to an
// equivalent structured command.
func TestPatternRoundTrip(t *testing.T) {
	inputs := []string{
		"I finished the debugging doc",
		"what's due today?",
		"what's sarah working on?",
		"high priority tasks",
		"show me completed tasks",
		"find database migration",
		"status",
	}
	for _, input := range inputs {
		cmd, ok := MatchPattern(input)
		if !ok {
			t.Errorf("%q: no pattern matched", input)
			continue
		}
		parsed, err := ParseCommand(cmd.String())
		if err != nil {
			t.Errorf("%q: rendered %q failed to parse: %v", input, cmd.String(), err)
			continue
		}
		if parsed.Verb != cmd.Verb || parsed.Action != cmd.Action || parsed.Ref != cmd.Ref {
			t.Errorf("%q: round trip mismatch: %+v vs %+v", input, cmd, parsed)
		}
		if len(cmd.Filters) > 0 && !reflect.DeepEqual(parsed.Filters, cmd.Filters) {
			t.Errorf("%q: filter mismatch: %v vs %v", input, cmd.Filters, parsed.Filters)
		}
	}
}
