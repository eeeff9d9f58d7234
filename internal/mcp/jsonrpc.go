// Package mcp speaks the MCP-style JSON-RPC 2.0 protocol to external tool
// servers over stdio or SSE.
package mcp

import (
	"encoding/json"
	"fmt"
)

const jsonRPCVersion = "2.0"

// Protocol methods every server must answer.
const (
	MethodInitialize = "initialize"
	MethodListTools  = "tools/list"
	MethodCallTool   = "tools/call"
)

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ToolInfo describes one tool exposed by a server.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type listToolsResult struct {
	Tools []ToolInfo `json:"tools"`
}

// ContentFragment is one piece of a tool result.
type ContentFragment struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallResult is the outcome of tools/call.
type CallResult struct {
	Content []ContentFragment `json:"content"`
	IsError bool              `json:"isError,omitempty"`
}

// Text joins the textual fragments of a call result.
func (r CallResult) Text() string {
	var out string
	for _, fragment := range r.Content {
		if fragment.Type == "text" {
			if out != "" {
				out += "\n"
			}
			out += fragment.Text
		}
	}
	return out
}

type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	ClientInfo      map[string]any `json:"clientInfo"`
}
