package discovery

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"otto/internal/embedding"
	ottoerrors "otto/internal/errors"
	"otto/internal/llm"
	"otto/internal/logging"
	"otto/internal/mcp"
	"otto/internal/memory"
	"otto/internal/vectorstore"
	"otto/internal/websearch"
)

type fakeSearcher struct {
	results []websearch.Result
	err     error
	queries []string
}

func (f *fakeSearcher) Search(ctx context.Context, query string, maxResults int) ([]websearch.Result, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func newTestAgent(t *testing.T, client llm.Client, search websearch.Searcher) (*Agent, *memory.Manager) {
	t.Helper()
	embedder := embedding.NewMockEmbedder(8)
	vectors, err := vectorstore.New("", embedder, logging.Nop())
	if err != nil {
		t.Fatal(err)
	}
	mem := memory.NewManager(memory.Config{}, vectors, embedder, logging.Nop())
	sessions := mcp.NewSessionManager(nil, time.Second, logging.Nop())
	return NewAgent(Config{}, mem, client, sessions, search, logging.Nop()), mem
}

func TestHandleCacheHitSkipsModelAndSearch(t *testing.T) {
	client := llm.NewMockClient()
	search := &fakeSearcher{}
	agent, mem := newTestAgent(t, client, search)
	ctx := context.Background()

	request := "what is the weather in tokyo"
	if _, err := mem.CacheKnowledge(ctx, "u1", request, "raw forecast data", "Sunny, 25C", "web", 0); err != nil {
		t.Fatal(err)
	}

	resp, err := agent.Handle(ctx, request, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Source != SourceKnowledgeCache {
		t.Fatalf("source %q", resp.Source)
	}
	// Summary wins over raw results when present.
	if resp.Result != "Sunny, 25C" {
		t.Fatalf("result %q", resp.Result)
	}
	if client.Calls() != 0 || len(search.queries) != 0 {
		t.Fatalf("cache hit reached model (%d) or search (%d)", client.Calls(), len(search.queries))
	}

	hits, err := mem.SearchKnowledge(ctx, "u1", request, 0.85, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Entry.TimesAccessed != 1 {
		t.Fatalf("hit not touched: %+v", hits)
	}
}

func TestHandleReusesRecordedDiscovery(t *testing.T) {
	client := llm.NewMockClient()
	search := &fakeSearcher{results: []websearch.Result{{Title: "Go 1.24", URL: "https://go.dev", Content: "released"}}}
	agent, mem := newTestAgent(t, client, search)
	ctx := context.Background()

	request := "latest golang release news"
	solution := memory.Solution{Server: "web", Tool: "web_search", Arguments: map[string]any{"query": "golang release"}}
	if _, err := mem.LogDiscovery(ctx, "u1", request, solution, true, 100*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	resp, err := agent.Handle(ctx, request, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Source != SourceDiscoveryReuse || resp.Server != "web" {
		t.Fatalf("got source %q server %q", resp.Source, resp.Server)
	}
	if client.Calls() != 0 {
		t.Fatalf("reuse consulted the model %d times", client.Calls())
	}
	if len(search.queries) != 1 || search.queries[0] != "golang release" {
		t.Fatalf("recorded arguments not replayed: %v", search.queries)
	}

	record, _, err := mem.FindSimilarDiscovery(ctx, "u1", request, 0.85)
	if err != nil {
		t.Fatal(err)
	}
	if record == nil || record.TimesUsed != 1 {
		t.Fatalf("times_used not incremented: %+v", record)
	}
}

func TestHandleFreshDiscoveryRepairsPlanAndCaches(t *testing.T) {
	// Single-quoted JSON exercises the repair path before unmarshalling.
	client := llm.NewMockClient(&llm.CompletionResponse{
		Content: `{'server': 'web', 'tool': 'web_search', 'arguments': {'query': 'go releases'}}`,
	})
	search := &fakeSearcher{results: []websearch.Result{{Title: "Go blog", URL: "https://go.dev/blog", Content: "short answer"}}}
	agent, mem := newTestAgent(t, client, search)
	ctx := context.Background()

	request := "find recent go releases"
	resp, err := agent.Handle(ctx, request, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Source != SourceNewDiscovery || resp.Server != "web" {
		t.Fatalf("got source %q server %q", resp.Source, resp.Server)
	}
	if len(search.queries) != 1 || search.queries[0] != "go releases" {
		t.Fatalf("plan arguments not used: %v", search.queries)
	}

	hits, err := mem.SearchKnowledge(ctx, "u1", request, 0.85, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("result not cached: %d hits", len(hits))
	}
	record, _, err := mem.FindSimilarDiscovery(ctx, "u1", request, 0.85)
	if err != nil {
		t.Fatal(err)
	}
	if record == nil || !record.Success {
		t.Fatalf("discovery not recorded as success: %+v", record)
	}
}

func TestHandleSummarizesOversizedResults(t *testing.T) {
	summary := "Key findings: long read.\nSources: https://go.dev\nAnswer: yes."
	client := llm.NewMockClient(
		&llm.CompletionResponse{Content: `{"server":"web","tool":"web_search","arguments":{"query":"go history"}}`},
		&llm.CompletionResponse{Content: summary},
	)
	search := &fakeSearcher{results: []websearch.Result{{
		Title: "History", URL: "https://go.dev", Content: strings.Repeat("x", 900),
	}}}
	agent, mem := newTestAgent(t, client, search)
	ctx := context.Background()

	resp, err := agent.Handle(ctx, "history of the go language", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Result != summary {
		t.Fatalf("summary not returned: %q", resp.Result)
	}
	if client.Calls() != 2 {
		t.Fatalf("got %d model calls, want plan + summary", client.Calls())
	}

	hits, err := mem.SearchKnowledge(ctx, "u1", "history of the go language", 0.85, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Entry.Summary != summary {
		t.Fatal("summary not cached alongside raw results")
	}
}

func TestHandleFailureRecordsFailedDiscovery(t *testing.T) {
	client := llm.NewMockClient(&llm.CompletionResponse{
		Content: `{"server":"web","tool":"web_search","arguments":{"query":"anything"}}`,
	})
	search := &fakeSearcher{err: ottoerrors.New(ottoerrors.KindTransport, "upstream down")}
	agent, mem := newTestAgent(t, client, search)
	ctx := context.Background()

	_, err := agent.Handle(ctx, "look something up", "u1")
	if !ottoerrors.Is(err, ottoerrors.KindTransport) {
		t.Fatalf("got %v", err)
	}

	failed := mem.FailedDiscoveries("u1", 10)
	if len(failed) != 1 {
		t.Fatalf("got %d failed records", len(failed))
	}
}

type meteredSearcher struct {
	mu      sync.Mutex
	current int
	peak    int
}

func (s *meteredSearcher) Search(ctx context.Context, query string, maxResults int) ([]websearch.Result, error) {
	s.mu.Lock()
	s.current++
	if s.current > s.peak {
		s.peak = s.current
	}
	s.mu.Unlock()

	time.Sleep(30 * time.Millisecond)

	s.mu.Lock()
	s.current--
	s.mu.Unlock()
	return []websearch.Result{{Title: "t", URL: "https://example.com", Content: "c"}}, nil
}

func TestExternalCallsBoundedBySemaphore(t *testing.T) {
	client := llm.NewMockClient()
	client.Handler = func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{
			Content: `{"server":"web","tool":"web_search","arguments":{"query":"q"}}`,
		}, nil
	}
	search := &meteredSearcher{}

	embedder := embedding.NewMockEmbedder(8)
	// Orthogonal queries so neither request reuses the other's fresh result.
	embedder.Pin("look up the first thing", []float32{1, 0, 0, 0, 0, 0, 0, 0})
	embedder.Pin("look up the second thing", []float32{0, 1, 0, 0, 0, 0, 0, 0})
	vectors, err := vectorstore.New("", embedder, logging.Nop())
	if err != nil {
		t.Fatal(err)
	}
	mem := memory.NewManager(memory.Config{}, vectors, embedder, logging.Nop())
	sessions := mcp.NewSessionManager(nil, time.Second, logging.Nop())
	agent := NewAgent(Config{MaxExternalCalls: 1}, mem, client, sessions, search, logging.Nop())

	var wg sync.WaitGroup
	for _, request := range []string{"look up the first thing", "look up the second thing"} {
		wg.Add(1)
		go func(request string) {
			defer wg.Done()
			if _, err := agent.Handle(context.Background(), request, "u1"); err != nil {
				t.Errorf("%q: %v", request, err)
			}
		}(request)
	}
	wg.Wait()

	if search.peak != 1 {
		t.Fatalf("observed %d concurrent external calls, want at most 1", search.peak)
	}
}

func TestHandleWithoutAnyToolsErrs(t *testing.T) {
	agent, _ := newTestAgent(t, llm.NewMockClient(), nil)

	_, err := agent.Handle(context.Background(), "search the web for something", "u1")
	if !ottoerrors.Is(err, ottoerrors.KindNotFound) {
		t.Fatalf("got %v", err)
	}
}
