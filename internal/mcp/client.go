package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"otto/internal/logging"
)

// Client wraps a Transport with the protocol handshake and typed calls.
type Client struct {
	name      string
	transport Transport
	timeout   time.Duration
	logger    logging.Logger
}

// NewClient wraps transport for the named server.
func NewClient(name string, transport Transport, timeout time.Duration, logger logging.Logger) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		name:      name,
		transport: transport,
		timeout:   timeout,
		logger:    logging.OrNop(logger),
	}
}

// Name returns the server name this client talks to.
func (c *Client) Name() string { return c.name }

// Initialize performs the protocol handshake.
func (c *Client) Initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.transport.Call(ctx, MethodInitialize, initializeParams{
		ProtocolVersion: "2024-11-05",
		ClientInfo:      map[string]any{"name": "otto", "version": "1.0"},
	})
	if err != nil {
		return fmt.Errorf("initialize %s: %w", c.name, err)
	}
	c.logger.Info("initialized server %s", c.name)
	return nil
}

// ListTools returns the tools the server exposes.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.transport.Call(ctx, MethodListTools, nil)
	if err != nil {
		return nil, fmt.Errorf("list tools on %s: %w", c.name, err)
	}
	var result listToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode tool list from %s: %w", c.name, err)
	}
	return result.Tools, nil
}

// CallTool invokes one tool with a wall-clock deadline.
func (c *Client) CallTool(ctx context.Context, tool string, args map[string]any) (CallResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	raw, err := c.transport.Call(ctx, MethodCallTool, callToolParams{Name: tool, Arguments: args})
	if err != nil {
		return CallResult{}, err
	}
	var result CallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return CallResult{}, fmt.Errorf("decode %s result from %s: %w", tool, c.name, err)
	}
	c.logger.Debug("call %s/%s done in %s", c.name, tool, time.Since(start))
	return result, nil
}

// Close releases the underlying transport.
func (c *Client) Close() error { return c.transport.Close() }
