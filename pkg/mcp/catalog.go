package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"
)

// ToolArg is one declared parameter of a tool, flattened from the tool's
// JSON schema for prompts and the tools API.
type ToolArg struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Tool is one callable tool with the server it belongs to.
type Tool struct {
	Name        string
	Description string
	Server      string
	InputSchema map[string]any
	Args        []ToolArg
}

// Catalog is the aggregated, deduplicated tool list across all connected
// servers. Built once after initialization; read-only afterwards.
type Catalog struct {
	tools  []Tool
	byName map[string]Tool
}

// BuildCatalog lists tools from every connected server in parallel and
// merges them. When two servers expose the same tool name, the first server
// in ID order wins and the duplicate is dropped with a warning.
func BuildCatalog(ctx context.Context, client *Client) (*Catalog, error) {
	serverIDs := client.ConnectedServers()
	sort.Strings(serverIDs)

	perServer := make([][]*mcpsdk.Tool, len(serverIDs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, serverID := range serverIDs {
		g.Go(func() error {
			tools, err := client.ListTools(gctx, serverID)
			if err != nil {
				slog.Warn("Failed to list tools from MCP server",
					"server", serverID, "error", err)
				return nil
			}
			mu.Lock()
			perServer[i] = tools
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	catalog := &Catalog{byName: make(map[string]Tool)}
	for i, serverID := range serverIDs {
		for _, raw := range perServer[i] {
			if prev, exists := catalog.byName[raw.Name]; exists {
				slog.Warn("Duplicate tool name, keeping first",
					"tool", raw.Name, "kept_server", prev.Server, "dropped_server", serverID)
				continue
			}
			tool := convertTool(raw, serverID)
			catalog.byName[tool.Name] = tool
			catalog.tools = append(catalog.tools, tool)
		}
	}

	if len(catalog.tools) == 0 {
		return catalog, fmt.Errorf("no tools available from %d servers", len(serverIDs))
	}
	return catalog, nil
}

// NewCatalog builds a catalog directly from tools. Used by tests and by
// callers that assemble tool sets without a live client.
func NewCatalog(tools []Tool) *Catalog {
	catalog := &Catalog{byName: make(map[string]Tool, len(tools))}
	for _, tool := range tools {
		if _, exists := catalog.byName[tool.Name]; exists {
			continue
		}
		catalog.byName[tool.Name] = tool
		catalog.tools = append(catalog.tools, tool)
	}
	return catalog
}

// convertTool flattens an SDK tool into the catalog shape. The input schema
// travels both raw (for function calling) and flattened into Args (for
// prompts and the tools API).
func convertTool(raw *mcpsdk.Tool, serverID string) Tool {
	tool := Tool{
		Name:        raw.Name,
		Description: raw.Description,
		Server:      serverID,
	}

	data, err := json.Marshal(raw.InputSchema)
	if err != nil || len(data) == 0 {
		return tool
	}
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		return tool
	}
	tool.InputSchema = schema

	required := map[string]bool{}
	if reqList, ok := schema["required"].([]any); ok {
		for _, r := range reqList {
			if name, ok := r.(string); ok {
				required[name] = true
			}
		}
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			arg := ToolArg{Name: name, Required: required[name]}
			if prop, ok := props[name].(map[string]any); ok {
				if desc, ok := prop["description"].(string); ok {
					arg.Description = desc
				}
			}
			tool.Args = append(tool.Args, arg)
		}
	}
	return tool
}

// Tools returns all tools in catalog order.
func (c *Catalog) Tools() []Tool { return c.tools }

// Get looks up a tool by name.
func (c *Catalog) Get(name string) (Tool, bool) {
	tool, ok := c.byName[name]
	return tool, ok
}

// Has reports whether a tool name is in the catalog.
func (c *Catalog) Has(name string) bool {
	_, ok := c.byName[name]
	return ok
}

// Names returns all tool names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.tools))
	for i, tool := range c.tools {
		names[i] = tool.Name
	}
	return names
}

// Len returns the number of tools.
func (c *Catalog) Len() int { return len(c.tools) }

// Describe renders the catalog as prompt text, one tool per block with its
// parameters.
func (c *Catalog) Describe() string {
	var b strings.Builder
	for _, tool := range c.tools {
		fmt.Fprintf(&b, "- %s: %s\n", tool.Name, tool.Description)
		for _, arg := range tool.Args {
			b.WriteString("    参数 ")
			b.WriteString(arg.Name)
			if arg.Required {
				b.WriteString(" (必填)")
			}
			if arg.Description != "" {
				b.WriteString(": ")
				b.WriteString(arg.Description)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// toolJSON is the wire shape of one tool in the tools API.
type toolJSON struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Args        []ToolArg `json:"args"`
}

type toolGroupJSON struct {
	Name        string     `json:"name"`
	DisplayName string     `json:"display_name"`
	Tools       []toolJSON `json:"tools"`
}

// ToolsResponse is the payload of GET /api/tools: tools grouped by server
// plus a flattened list.
type ToolsResponse struct {
	ReturnCode int             `json:"return_code"`
	ReturnMsg  string          `json:"return_msg"`
	Groups     []toolGroupJSON `json:"groups"`
	Tools      []toolJSON      `json:"tools"`
}

// JSON builds the tools API payload.
func (c *Catalog) JSON() ToolsResponse {
	resp := ToolsResponse{ReturnCode: 0, ReturnMsg: "success"}

	groupIndex := map[string]int{}
	for _, tool := range c.tools {
		entry := toolJSON{
			Name:        tool.Name,
			Description: tool.Description,
			Args:        tool.Args,
		}
		if entry.Args == nil {
			entry.Args = []ToolArg{}
		}

		idx, ok := groupIndex[tool.Server]
		if !ok {
			idx = len(resp.Groups)
			groupIndex[tool.Server] = idx
			resp.Groups = append(resp.Groups, toolGroupJSON{
				Name:        tool.Server,
				DisplayName: tool.Server,
			})
		}
		resp.Groups[idx].Tools = append(resp.Groups[idx].Tools, entry)
		resp.Tools = append(resp.Tools, entry)
	}

	if resp.Groups == nil {
		resp.Groups = []toolGroupJSON{}
	}
	if resp.Tools == nil {
		resp.Tools = []toolJSON{}
	}
	return resp
}
