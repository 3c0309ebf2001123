// Package mcp provides MCP (Model Context Protocol) client infrastructure:
// connecting to configured servers, aggregating their tool catalogs, and
// executing tool calls with the engine's result conventions.
package mcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/ordo-ai/ordo/pkg/config"
	"github.com/ordo-ai/ordo/pkg/version"
)

const (
	// InitTimeout bounds a single server's connect + handshake.
	InitTimeout = 30 * time.Second
	// ListTimeout bounds a single server's tools/list call.
	ListTimeout = 20 * time.Second
)

// Client manages MCP SDK sessions for all configured servers. One Client is
// shared for the process lifetime. Thread-safe: tool calls for parallel plan
// steps run concurrently.
type Client struct {
	servers map[string]config.MCPServerConfig

	mu            sync.RWMutex
	sessions      map[string]*mcpsdk.ClientSession // serverID → session
	failedServers map[string]string                // serverID → error message

	// Per-server mutexes: initMu serializes concurrent (re)initialization
	// of one server, callMu serializes its tool calls. Stdio transports
	// multiplex one child process and cannot take interleaved requests.
	initMu sync.Map // serverID → *sync.Mutex
	callMu sync.Map // serverID → *sync.Mutex

	logger *slog.Logger
}

// NewClient creates a Client for the configured servers. No connections are
// made until Initialize.
func NewClient(cfg *config.Config) *Client {
	var servers map[string]config.MCPServerConfig
	if cfg != nil {
		servers = cfg.MCPServers
	}
	return &Client{
		servers:       servers,
		sessions:      make(map[string]*mcpsdk.ClientSession),
		failedServers: make(map[string]string),
		logger:        slog.With("component", "mcp"),
	}
}

// Initialize connects to every configured server in parallel. A server that
// fails to connect is recorded in FailedServers and skipped; the caller
// decides whether that is fatal. Returns an error only when servers are
// configured and all of them fail.
func (c *Client) Initialize(ctx context.Context) error {
	if len(c.servers) == 0 {
		c.logger.Warn("No MCP servers configured")
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for serverID := range c.servers {
		g.Go(func() error {
			if err := c.InitializeServer(gctx, serverID); err != nil {
				c.mu.Lock()
				c.failedServers[serverID] = err.Error()
				c.mu.Unlock()
				c.logger.Warn("MCP server failed to initialize",
					"server", serverID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	c.mu.RLock()
	connected := len(c.sessions)
	c.mu.RUnlock()
	if connected == 0 {
		return fmt.Errorf("all %d MCP servers failed to initialize", len(c.servers))
	}
	return nil
}

// InitializeServer connects to a single server. Returns nil if already
// connected.
func (c *Client) InitializeServer(ctx context.Context, serverID string) error {
	muI, _ := c.initMu.LoadOrStore(serverID, &sync.Mutex{})
	mu := muI.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	c.mu.RLock()
	_, exists := c.sessions[serverID]
	c.mu.RUnlock()
	if exists {
		return nil
	}

	serverCfg, ok := c.servers[serverID]
	if !ok {
		return fmt.Errorf("server %q: %w", serverID, config.ErrMCPServerNotFound)
	}

	transport, err := newTransport(serverCfg)
	if err != nil {
		return fmt.Errorf("failed to create transport for %q: %w", serverID, err)
	}

	initCtx, cancel := context.WithTimeout(ctx, InitTimeout)
	defer cancel()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    version.AppName,
		Version: version.Commit(),
	}, nil)

	session, err := client.Connect(initCtx, transport, nil)
	if err != nil {
		// Close the transport if it holds resources (stdio child processes).
		if closer, ok := transport.(io.Closer); ok {
			_ = closer.Close()
		}
		return fmt.Errorf("failed to connect to %q: %w", serverID, err)
	}

	c.mu.Lock()
	c.sessions[serverID] = session
	delete(c.failedServers, serverID)
	c.mu.Unlock()

	c.logger.Info("MCP server connected", "server", serverID)
	return nil
}

// ListTools returns the tool list of one connected server.
func (c *Client) ListTools(ctx context.Context, serverID string) ([]*mcpsdk.Tool, error) {
	c.mu.RLock()
	session, exists := c.sessions[serverID]
	c.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("no session for server %q", serverID)
	}

	opCtx, cancel := context.WithTimeout(ctx, ListTimeout)
	defer cancel()

	result, err := session.ListTools(opCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("list tools from %q: %w", serverID, err)
	}
	return result.Tools, nil
}

// CallTool executes one tool call on the given server. Calls against the
// same server are serialized; parallel plan steps only overlap when they
// target different servers. The caller supplies the deadline via ctx.
func (c *Client) CallTool(ctx context.Context, serverID, toolName string, args map[string]any) (*mcpsdk.CallToolResult, error) {
	lock := c.serverCallLock(serverID)
	lock.Lock()
	defer lock.Unlock()

	c.mu.RLock()
	session, exists := c.sessions[serverID]
	c.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("no session for server %q", serverID)
	}
	return session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
}

// serverCallLock returns the mutex guarding one server's tool calls.
func (c *Client) serverCallLock(serverID string) *sync.Mutex {
	muI, _ := c.callMu.LoadOrStore(serverID, &sync.Mutex{})
	return muI.(*sync.Mutex)
}

// ConnectedServers returns the IDs of servers with a live session.
func (c *Client) ConnectedServers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	return ids
}

// FailedServers returns a copy of the server → error map for servers that
// failed to initialize.
func (c *Client) FailedServers() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.failedServers))
	for k, v := range c.failedServers {
		out[k] = v
	}
	return out
}

// Close shuts down all sessions.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for id, session := range c.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close session %q: %w", id, err)
		}
	}
	c.sessions = make(map[string]*mcpsdk.ClientSession)
	return firstErr
}
