package mcp

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordo-ai/ordo/pkg/config"
)

// weatherSchema is a small JSON Schema used by test tools.
var weatherSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"city": {"type": "string", "description": "城市名称"},
		"days": {"type": "integer", "description": "预报天数"}
	},
	"required": ["city"]
}`)

var emptySchema = json.RawMessage(`{"type":"object"}`)

// startTestServer creates an in-memory MCP server with the given tools and
// runs it in the background.
func startTestServer(t *testing.T, name string, tools map[string]mcpsdk.ToolHandler) *mcpsdk.InMemoryTransport {
	t.Helper()

	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name: name, Version: "test",
	}, nil)

	for toolName, handler := range tools {
		schema := emptySchema
		if toolName == "get_weather" {
			schema = weatherSchema
		}
		server.AddTool(&mcpsdk.Tool{
			Name:        toolName,
			Description: "test tool: " + toolName,
			InputSchema: schema,
		}, handler)
	}

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()
	go func() {
		_ = server.Run(context.Background(), serverTransport)
	}()
	return clientTransport
}

// connectClientDirect wires a Client to a pre-built in-memory transport,
// bypassing newTransport.
func connectClientDirect(t *testing.T, serverID string, transport *mcpsdk.InMemoryTransport) *Client {
	t.Helper()

	client := NewClient(&config.Config{})

	sdkClient := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name: "ordo-test", Version: "test",
	}, nil)

	session, err := sdkClient.Connect(context.Background(), transport, nil)
	require.NoError(t, err)

	client.mu.Lock()
	client.sessions[serverID] = session
	client.mu.Unlock()

	t.Cleanup(func() { _ = client.Close() })
	return client
}

func textResult(text string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
	}
}

func TestClientListTools(t *testing.T) {
	transport := startTestServer(t, "weather", map[string]mcpsdk.ToolHandler{
		"get_weather": func(_ context.Context, _ *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
			return textResult("晴"), nil
		},
		"get_alerts": func(_ context.Context, _ *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
			return textResult("无预警"), nil
		},
	})

	client := connectClientDirect(t, "weather", transport)

	tools, err := client.ListTools(context.Background(), "weather")
	require.NoError(t, err)
	assert.Len(t, tools, 2)
}

func TestClientListToolsNoSession(t *testing.T) {
	client := NewClient(&config.Config{})
	_, err := client.ListTools(context.Background(), "absent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no session")
}

func TestClientCallTool(t *testing.T) {
	transport := startTestServer(t, "weather", map[string]mcpsdk.ToolHandler{
		"get_weather": func(_ context.Context, _ *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
			return textResult("北京: 晴"), nil
		},
	})

	client := connectClientDirect(t, "weather", transport)

	result, err := client.CallTool(context.Background(), "weather", "get_weather",
		map[string]any{"city": "北京"})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	assert.Contains(t, result.Content[0].(*mcpsdk.TextContent).Text, "北京")
}

func TestClientCallToolSerializedPerServer(t *testing.T) {
	var inflight, maxInflight atomic.Int32
	transport := startTestServer(t, "weather", map[string]mcpsdk.ToolHandler{
		"get_weather": func(_ context.Context, _ *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
			n := inflight.Add(1)
			for {
				m := maxInflight.Load()
				if n <= m || maxInflight.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inflight.Add(-1)
			return textResult("晴"), nil
		},
	})

	client := connectClientDirect(t, "weather", transport)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.CallTool(context.Background(), "weather", "get_weather",
				map[string]any{"city": "北京"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInflight.Load(), "calls against one server must not overlap")
}

func TestClientFailedServers(t *testing.T) {
	client := NewClient(&config.Config{
		MCPServers: map[string]config.MCPServerConfig{
			"broken": {Type: config.TransportTypeStdio, Command: "/nonexistent/binary"},
		},
	})

	err := client.Initialize(context.Background())
	require.Error(t, err)
	failed := client.FailedServers()
	assert.Contains(t, failed, "broken")
}
