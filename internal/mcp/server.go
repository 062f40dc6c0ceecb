package mcp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	mcpsrv "github.com/mark3labs/mcp-go/server"

	"github.com/agentctx/platform/internal/entity"
)

// ModulePort is the fixed local-MCP-server port each capability module
// binds. Modules absent here (AwarenessModule, BasicInfoModule,
// SocialNetworkModule) expose no tool surface and are never started.
var ModulePort = map[entity.ModuleClass]int{
	entity.ModuleChat:      7804,
	entity.ModuleJob:       7803,
	entity.ModuleGeminiRAG: 7805,
}

// LocalTool is one module-contributed tool: name/description/schema plus
// the handler that executes it against the module's own dedicated store
// client.
type LocalTool struct {
	Name        string
	Description string
	Schema      map[string]any
	Handler     func(ctx context.Context, agentID string, args map[string]any) (string, error)
}

// LocalServer hosts one module class's tools as an in-process MCP
// server on its fixed port, and also answers in-process calls directly
// so AgentRuntime's own turn loop never pays a network round trip for
// tools the platform itself owns.
type LocalServer struct {
	class  entity.ModuleClass
	port   int
	srv    *mcpsrv.MCPServer
	byName map[string]LocalTool
	log    *slog.Logger
}

// NewLocalServer registers tools and binds the MCP server for class;
// Start must be called to actually accept external connections.
func NewLocalServer(class entity.ModuleClass, tools []LocalTool, log *slog.Logger) *LocalServer {
	s := &LocalServer{
		class:  class,
		port:   ModulePort[class],
		srv:    mcpsrv.NewMCPServer(string(class), "0.1.0"),
		byName: make(map[string]LocalTool, len(tools)),
		log:    log,
	}
	for _, t := range tools {
		s.byName[t.Name] = t
		s.srv.AddTool(toMCPTool(t), s.handlerFor(t))
	}
	return s
}

func toMCPTool(t LocalTool) mcp.Tool {
	return mcp.Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: mapToSchema(t.Schema),
	}
}

// handlerFor wraps a LocalTool's handler for mcp-go's server dispatch
// path (used by external MCP clients connecting over SSE); agentID comes
// from the "agent_id" argument those clients are required to pass, since
// the wire protocol carries no platform-specific session context.
func (s *LocalServer) handlerFor(t LocalTool) mcpsrv.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		agentID, _ := args["agent_id"].(string)
		out, err := t.Handler(ctx, agentID, args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}

// Start serves the SSE transport on the module's fixed port. Capability
// modules with no tool surface have port==0 and are never started.
func (s *LocalServer) Start(ctx context.Context) error {
	if s.port == 0 {
		return nil
	}
	sse := mcpsrv.NewSSEServer(s.srv)
	addr := fmt.Sprintf(":%d", s.port)
	s.log.Info("mcp: local server listening", "module", s.class, "addr", addr)
	go func() {
		if err := sse.Start(addr); err != nil {
			s.log.Error("mcp: local server stopped", "module", s.class, "error", err)
		}
	}()
	return nil
}

// Call executes a registered tool in-process, bypassing the network
// transport entirely — the path AgentRuntime's own turn loop uses.
func (s *LocalServer) Call(ctx context.Context, agentID, name string, args map[string]any) (string, error) {
	t, ok := s.byName[name]
	if !ok {
		return "", fmt.Errorf("mcp: local tool %q not registered on %s", name, s.class)
	}
	return t.Handler(ctx, agentID, args)
}

func (s *LocalServer) Definitions() []LocalTool {
	out := make([]LocalTool, 0, len(s.byName))
	for _, t := range s.byName {
		out = append(out, t)
	}
	return out
}

func mapToSchema(schema map[string]any) mcp.ToolInputSchema {
	if schema == nil {
		return mcp.ToolInputSchema{Type: "object"}
	}
	props, _ := schema["properties"].(map[string]any)
	var required []string
	if req, ok := schema["required"].([]string); ok {
		required = req
	}
	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}
