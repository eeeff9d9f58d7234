package mcp

import "context"

// Transport moves JSON-RPC requests to a server and returns raw results.
type Transport interface {
	// Call sends one request and waits for its response.
	Call(ctx context.Context, method string, params any) ([]byte, error)
	Close() error
}
