package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"otto/internal/logging"
)

type fakeTransport struct {
	methods []string
	params  []any
	reply   map[string]json.RawMessage
	err     error
	closed  bool
}

func (f *fakeTransport) Call(ctx context.Context, method string, params any) ([]byte, error) {
	f.methods = append(f.methods, method)
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	return f.reply[method], nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func TestClientHandshakeAndToolList(t *testing.T) {
	transport := &fakeTransport{reply: map[string]json.RawMessage{
		MethodInitialize: json.RawMessage(`{"protocolVersion":"2024-11-05"}`),
		MethodListTools: json.RawMessage(`{"tools":[
			{"name":"fetch_page","description":"Fetch a URL","inputSchema":{"type":"object"}},
			{"name":"read_feed","description":"Read an RSS feed","inputSchema":{"type":"object"}}
		]}`),
	}}
	client := NewClient("browser", transport, 0, logging.Nop())
	ctx := context.Background()

	if err := client.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	tools, err := client.ListTools(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tools) != 2 || tools[0].Name != "fetch_page" {
		t.Fatalf("got tools %+v", tools)
	}
	if transport.methods[0] != MethodInitialize || transport.methods[1] != MethodListTools {
		t.Fatalf("method order %v", transport.methods)
	}
}

func TestClientCallToolDecodesResult(t *testing.T) {
	transport := &fakeTransport{reply: map[string]json.RawMessage{
		MethodCallTool: json.RawMessage(`{"content":[
			{"type":"text","text":"line one"},
			{"type":"image","text":"ignored"},
			{"type":"text","text":"line two"}
		]}`),
	}}
	client := NewClient("browser", transport, 0, logging.Nop())

	result, err := client.CallTool(context.Background(), "fetch_page", map[string]any{"url": "https://example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatal("unexpected error flag")
	}
	// Only text fragments survive the join.
	if got := result.Text(); got != "line one\nline two" {
		t.Fatalf("joined text %q", got)
	}

	sent, ok := transport.params[0].(callToolParams)
	if !ok || sent.Name != "fetch_page" || sent.Arguments["url"] != "https://example.com" {
		t.Fatalf("sent params %+v", transport.params[0])
	}
}

func TestClientCallToolErrorFlag(t *testing.T) {
	transport := &fakeTransport{reply: map[string]json.RawMessage{
		MethodCallTool: json.RawMessage(`{"isError":true,"content":[{"type":"text","text":"no such page"}]}`),
	}}
	client := NewClient("browser", transport, 0, logging.Nop())

	result, err := client.CallTool(context.Background(), "fetch_page", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError || result.Text() != "no such page" {
		t.Fatalf("got %+v", result)
	}
}

func TestClientClosePropagates(t *testing.T) {
	transport := &fakeTransport{}
	client := NewClient("browser", transport, 0, logging.Nop())
	if err := client.Close(); err != nil {
		t.Fatal(err)
	}
	if !transport.closed {
		t.Fatal("transport not closed")
	}
}
