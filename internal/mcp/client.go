// Package mcp provides the platform's two MCP roles:
// a client that dispatches tool calls to an agent's registered remote
// MCPUrl endpoints, and local in-process servers each capability module
// binds its own tools to (ChatModule :7804, JobModule :7803, RAGModule
// :7805).
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/agentctx/platform/internal/entity"
	"github.com/agentctx/platform/internal/llm"
	"github.com/agentctx/platform/internal/logger"
)

const protocolVersion = "2024-11-05"

// clientInfo identifies the platform to every MCP server it connects to.
var clientInfo = mcp.Implementation{Name: "agentctx-platform", Version: "0.1.0"}

// RemoteClient is a lazily-connected handle to one agent's MCPUrl
// endpoint, used by Dispatcher to expose and invoke its tools.
type RemoteClient struct {
	url entity.MCPUrl
	log hclog.Logger

	mu        sync.Mutex
	sse       *client.Client
	connected bool
	tools     []llm.ToolDefinition
}

// NewRemoteClient builds a handle with a no-op logger; use
// NewRemoteClientWithLogger to route connection lifecycle events through
// the platform's structured logging.
func NewRemoteClient(url entity.MCPUrl) *RemoteClient {
	return &RemoteClient{url: url, log: hclog.NewNullLogger()}
}

// NewRemoteClientWithLogger is NewRemoteClient plus an hclog.Logger
// bridged from base and named after the endpoint, so remote MCP traffic
// is attributable in the logs.
func NewRemoteClientWithLogger(url entity.MCPUrl, base *slog.Logger) *RemoteClient {
	return &RemoteClient{url: url, log: logger.NewHCLogBridge(base, "mcp.client").Named(url.Name)}
}

func (c *RemoteClient) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}
	c.log.Debug("dialing", "url", c.url.URL)

	cli, err := client.NewSSEMCPClient(c.url.URL)
	if err != nil {
		c.log.Error("dial failed", "error", err)
		return fmt.Errorf("mcp: dial %s: %w", c.url.Name, err)
	}
	if err := cli.Start(ctx); err != nil {
		c.log.Error("start failed", "error", err)
		return fmt.Errorf("mcp: start %s: %w", c.url.Name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = clientInfo
	initReq.Params.ProtocolVersion = protocolVersion
	if _, err := cli.Initialize(ctx, initReq); err != nil {
		cli.Close()
		c.log.Error("initialize failed", "error", err)
		return fmt.Errorf("mcp: initialize %s: %w", c.url.Name, err)
	}
	c.log.Info("connected")

	listResp, err := cli.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		cli.Close()
		return fmt.Errorf("mcp: list tools %s: %w", c.url.Name, err)
	}

	tools := make([]llm.ToolDefinition, 0, len(listResp.Tools))
	for _, t := range listResp.Tools {
		tools = append(tools, llm.ToolDefinition{
			Name:        qualifiedName(c.url.Name, t.Name),
			Description: t.Description,
			Parameters:  schemaToMap(t.InputSchema),
		})
	}

	c.sse = cli
	c.tools = tools
	c.connected = true
	return nil
}

// Tools returns this endpoint's tool catalogue, connecting lazily.
func (c *RemoteClient) Tools(ctx context.Context) ([]llm.ToolDefinition, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.ToolDefinition{}, c.tools...), nil
}

// Call invokes localName (the bare tool name, without the endpoint
// qualifier) against the remote server.
func (c *RemoteClient) Call(ctx context.Context, localName string, args map[string]any) (string, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	cli := c.sse
	c.mu.Unlock()

	req := mcp.CallToolRequest{}
	req.Params.Name = localName
	req.Params.Arguments = args

	resp, err := cli.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("mcp: call %s/%s: %w", c.url.Name, localName, err)
	}
	return textOf(resp), nil
}

func (c *RemoteClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sse == nil {
		return nil
	}
	err := c.sse.Close()
	c.connected = false
	return err
}

// qualifiedName disambiguates identically-named tools across multiple
// MCPUrl endpoints the same agent has registered.
func qualifiedName(endpoint, tool string) string {
	return fmt.Sprintf("%s__%s", endpoint, tool)
}

func textOf(resp *mcp.CallToolResult) string {
	if resp == nil {
		return ""
	}
	if resp.IsError {
		for _, c := range resp.Content {
			if tc, ok := c.(mcp.TextContent); ok {
				return "error: " + tc.Text
			}
		}
		return "error: unknown MCP tool failure"
	}
	var out string
	for _, c := range resp.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			out += tc.Text
		}
	}
	return out
}

func schemaToMap(schema mcp.ToolInputSchema) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": schema.Properties,
		"required":   schema.Required,
	}
}

// ValidateURL performs the full SSE handshake against an MCPUrl
// endpoint and returns the resulting connection status without leaving
// the connection open.
func ValidateURL(ctx context.Context, url string) (status entity.ConnectionStatus, lastErr string) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cli, err := client.NewSSEMCPClient(url)
	if err != nil {
		return entity.ConnectionFailed, err.Error()
	}
	defer cli.Close()

	if err := cli.Start(ctx); err != nil {
		return entity.ConnectionFailed, err.Error()
	}
	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = clientInfo
	initReq.Params.ProtocolVersion = protocolVersion
	if _, err := cli.Initialize(ctx, initReq); err != nil {
		return entity.ConnectionFailed, err.Error()
	}
	return entity.ConnectionConnected, ""
}
