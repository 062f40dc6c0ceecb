package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/agentctx/platform/internal/entity"
	"github.com/agentctx/platform/internal/llm"
)

// Dispatcher implements agentruntime.ToolDispatcher by merging each
// module's local in-process tools with whatever remote MCPUrl endpoints
// the calling agent's owner has registered. It satisfies
// the interface structurally; agentruntime never imports this package.
type Dispatcher struct {
	agents *entity.AgentRepo
	mcps   *entity.MCPUrlRepo
	locals []*LocalServer
	log    *slog.Logger

	mu      sync.Mutex
	remotes map[string]*RemoteClient // keyed by MCPUrl.MCPID
}

func NewDispatcher(agents *entity.AgentRepo, mcps *entity.MCPUrlRepo, log *slog.Logger, locals ...*LocalServer) *Dispatcher {
	return &Dispatcher{
		agents:  agents,
		mcps:    mcps,
		locals:  locals,
		log:     log,
		remotes: make(map[string]*RemoteClient),
	}
}

// Tools returns the union of every local module's tools plus the calling
// agent's registered remote tools, qualified so identically-named tools
// across endpoints never collide.
func (d *Dispatcher) Tools(ctx context.Context, agentID string) ([]llm.ToolDefinition, error) {
	var out []llm.ToolDefinition
	for _, ls := range d.locals {
		for _, t := range ls.Definitions() {
			out = append(out, llm.ToolDefinition{Name: t.Name, Description: t.Description, Parameters: t.Schema})
		}
	}

	urls, err := d.agentMCPUrls(ctx, agentID)
	if err != nil {
		return out, err
	}
	for _, u := range urls {
		rc := d.remoteClient(u)
		tools, err := rc.Tools(ctx)
		if err != nil {
			// A single unreachable endpoint must not take the whole
			// toolset down for a turn; it is surfaced via RecordHealth
			// from the MCPUrl validation endpoint instead.
			continue
		}
		out = append(out, tools...)
	}
	return out, nil
}

// Dispatch routes call to whichever local module or remote endpoint owns
// its name: qualified names ("endpoint__tool") go to a RemoteClient,
// everything else is looked up across the local servers in order.
func (d *Dispatcher) Dispatch(ctx context.Context, agentID string, call llm.ToolCall) (string, error) {
	if endpoint, local, ok := splitQualified(call.Name); ok {
		urls, err := d.agentMCPUrls(ctx, agentID)
		if err != nil {
			return "", err
		}
		for _, u := range urls {
			if u.Name != endpoint {
				continue
			}
			return d.remoteClient(u).Call(ctx, local, call.Arguments)
		}
		return "", fmt.Errorf("mcp: no registered endpoint %q for agent %s", endpoint, agentID)
	}

	for _, ls := range d.locals {
		if _, ok := find(ls.Definitions(), call.Name); ok {
			return ls.Call(ctx, agentID, call.Name, call.Arguments)
		}
	}
	return "", fmt.Errorf("mcp: unknown tool %q", call.Name)
}

func find(tools []LocalTool, name string) (LocalTool, bool) {
	for _, t := range tools {
		if t.Name == name {
			return t, true
		}
	}
	return LocalTool{}, false
}

func splitQualified(name string) (endpoint, local string, ok bool) {
	i := strings.Index(name, "__")
	if i < 0 {
		return "", "", false
	}
	return name[:i], name[i+2:], true
}

func (d *Dispatcher) agentMCPUrls(ctx context.Context, agentID string) ([]*entity.MCPUrl, error) {
	agent, err := d.agents.Get(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("mcp: resolve agent %s: %w", agentID, err)
	}
	if agent == nil {
		return nil, nil
	}
	return d.mcps.ForAgentUser(ctx, agentID, agent.CreatedBy)
}

func (d *Dispatcher) remoteClient(u *entity.MCPUrl) *RemoteClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rc, ok := d.remotes[u.MCPID]; ok {
		return rc
	}
	rc := NewRemoteClientWithLogger(*u, d.log)
	d.remotes[u.MCPID] = rc
	return rc
}

// Close releases every remote connection this dispatcher opened.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	for _, rc := range d.remotes {
		if err := rc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
