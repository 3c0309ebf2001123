package mcp

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordo-ai/ordo/pkg/config"
)

func TestNewTransportStdio(t *testing.T) {
	cfg := config.MCPServerConfig{
		Type:    config.TransportTypeStdio,
		Command: "npx",
		Args:    []string{"-y", "image-gen-mcp"},
		Env:     map[string]string{"API_KEY": "secret"},
	}

	transport, err := newTransport(cfg)
	require.NoError(t, err)

	cmdTransport, ok := transport.(*mcpsdk.CommandTransport)
	require.True(t, ok)
	assert.Contains(t, cmdTransport.Command.Path, "npx")
	assert.Contains(t, cmdTransport.Command.Args, "image-gen-mcp")
	assert.Contains(t, cmdTransport.Command.Env, "API_KEY=secret")
}

func TestNewTransportStdioMissingCommand(t *testing.T) {
	_, err := newTransport(config.MCPServerConfig{Type: config.TransportTypeStdio})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires command")
}

func TestNewTransportHTTP(t *testing.T) {
	transport, err := newTransport(config.MCPServerConfig{
		Type: config.TransportTypeHTTP,
		URL:  "https://mcp.example.com/v1",
	})
	require.NoError(t, err)

	httpTransport, ok := transport.(*mcpsdk.StreamableClientTransport)
	require.True(t, ok)
	assert.Equal(t, "https://mcp.example.com/v1", httpTransport.Endpoint)
	assert.Nil(t, httpTransport.HTTPClient, "plain config uses the SDK default client")
}

func TestNewTransportSSEMissingURL(t *testing.T) {
	_, err := newTransport(config.MCPServerConfig{Type: config.TransportTypeSSE})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires url")
}

func TestNewTransportUnsupportedType(t *testing.T) {
	_, err := newTransport(config.MCPServerConfig{Type: "carrier-pigeon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported transport type")
}

func TestHTTPClientForBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	client := httpClientFor(config.MCPServerConfig{
		Type:        config.TransportTypeHTTP,
		URL:         srv.URL,
		BearerToken: "my-token",
		Timeout:     30,
	})
	require.NotNil(t, client)
	assert.Equal(t, 30*time.Second, client.Timeout)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "Bearer my-token", gotAuth)
}
