// Package config loads and validates the ordo configuration file
// (engine limits, LLM provider settings, MCP server definitions, HTTP server).
package config

import (
	"fmt"
	"sort"
	"time"
)

// Config is the fully resolved process configuration.
// Built once at startup by Initialize and treated as read-only afterwards.
type Config struct {
	Engine     EngineConfig               `yaml:"engine"`
	LLM        LLMConfig                  `yaml:"llm"`
	MCPServers map[string]MCPServerConfig `yaml:"mcp_servers"`
	Server     ServerConfig               `yaml:"server"`
}

// EngineConfig bounds the planner/executor loops.
type EngineConfig struct {
	// MaxIterations caps both the scheduler's outer loop and the polling
	// driver's per-step loop.
	MaxIterations int `yaml:"max_iterations"`

	// MaxToolRetries caps how often one workflow pair (prev tool → next tool)
	// may be re-attempted after failures within a single plan.
	MaxToolRetries int `yaml:"max_tool_retries"`

	ToolExecutionTimeout time.Duration `yaml:"tool_execution_timeout"`
	ToolSelectionTimeout time.Duration `yaml:"tool_selection_timeout"`
	AssessmentTimeout    time.Duration `yaml:"assessment_timeout"`

	// PollingInterval is the default sleep between polling invocations when a
	// step does not declare its own interval.
	PollingInterval time.Duration `yaml:"polling_interval"`

	// SimilarityThreshold is reserved for future tool-name fuzzy matching.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// SnapshotDir, when set, enables JSON plan snapshots for resume/debug.
	SnapshotDir string `yaml:"snapshot_dir"`
}

// LLMConfig selects the OpenAI-compatible chat completion endpoint.
type LLMConfig struct {
	// Provider picks a known base URL (ollama, openai, deepseek, siliconflow,
	// lmstudio, gemini) unless BaseURL overrides it.
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Temperature float32       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ServerConfig configures the HTTP front-end.
type ServerConfig struct {
	Port int `yaml:"port"`

	// SystemPrompt is the default system prompt for chat requests that do not
	// carry their own. The tool-calling pipeline activates only when the
	// effective prompt begins with the tool-assistant marker.
	SystemPrompt string `yaml:"system_prompt"`
}

// Transport types supported for MCP servers.
const (
	TransportTypeStdio = "stdio"
	TransportTypeHTTP  = "http"
	TransportTypeSSE   = "sse"
)

// MCPServerConfig describes how to launch and reach one tool server.
type MCPServerConfig struct {
	Type string `yaml:"transport"`

	// stdio
	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`

	// http / sse
	URL         string `yaml:"url,omitempty"`
	BearerToken string `yaml:"bearer_token,omitempty"`
	VerifySSL   *bool  `yaml:"verify_ssl,omitempty"`
	Timeout     int    `yaml:"timeout,omitempty"` // seconds
}

// ServerIDs returns the configured MCP server names in stable (sorted) order.
func (c *Config) ServerIDs() []string {
	ids := make([]string, 0, len(c.MCPServers))
	for id := range c.MCPServers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetMCPServer looks up one MCP server config.
func (c *Config) GetMCPServer(id string) (MCPServerConfig, error) {
	server, ok := c.MCPServers[id]
	if !ok {
		return MCPServerConfig{}, fmt.Errorf("%w: %s", ErrMCPServerNotFound, id)
	}
	return server, nil
}
