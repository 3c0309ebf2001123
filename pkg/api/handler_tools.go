package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ordo-ai/ordo/pkg/llm"
	"github.com/ordo-ai/ordo/pkg/prompt"
	"github.com/ordo-ai/ordo/pkg/version"
)

// ListTools returns the tool catalog grouped by server plus a flat list.
func (s *Server) ListTools(c *gin.Context) {
	if s.catalog == nil || s.catalog.Len() == 0 {
		c.JSON(http.StatusOK, gin.H{
			"return_code": -1,
			"return_msg":  "没有可用的工具",
			"groups":      []any{},
			"tools":       []any{},
		})
		return
	}
	c.JSON(http.StatusOK, s.catalog.JSON())
}

// TestTool runs one function-calling round against a single tool and then
// invokes it. The request body is the raw argument object; the LLM may
// refine or replace the arguments.
func (s *Server) TestTool(c *gin.Context) {
	toolName := c.Param("tool_name")
	tool, ok := s.catalog.Get(toolName)
	if !ok {
		c.JSON(http.StatusOK, gin.H{
			"return_code": -1,
			"return_msg":  "未找到工具: " + toolName,
			"result":      "",
		})
		return
	}

	var args map[string]any
	if err := c.ShouldBindJSON(&args); err != nil {
		args = map[string]any{}
	}

	callArgs := s.refineArgs(c, tool.Name, tool.Description, tool.InputSchema, args)

	result, err := s.invoker.Invoke(c.Request.Context(), tool.Name, callArgs)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{
			"return_code": -1,
			"return_msg":  fmt.Sprintf("执行出错: %v", err),
			"result":      "",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"return_code": 0,
		"return_msg":  "success",
		"result":      result,
	})
}

// refineArgs lets the model adjust the provided arguments via one
// function-calling round. A declined call, a mismatched tool name, or
// unparseable arguments keep the original args.
func (s *Server) refineArgs(c *gin.Context, toolName, description string, schema, args map[string]any) map[string]any {
	if s.toolCaller == nil {
		return args
	}

	resp, err := s.toolCaller.CompleteWithTool(c.Request.Context(), llm.CompletionRequest{
		Messages:    []llm.Message{llm.User(prompt.ToolTest(toolName, args))},
		Temperature: 0.1,
	}, llm.ToolDefinition{
		Name:        toolName,
		Description: description,
		Parameters:  schema,
	})
	if err != nil {
		s.logger.Warn("Tool test completion failed, using raw args", "tool", toolName, "error", err)
		return args
	}
	if resp.Name != toolName || resp.Arguments == "" {
		return args
	}

	var refined map[string]any
	if err := json.Unmarshal([]byte(resp.Arguments), &refined); err != nil {
		s.logger.Warn("Tool test returned unparseable arguments", "tool", toolName, "error", err)
		return args
	}
	return refined
}

// Health reports server liveness and tool connectivity.
func (s *Server) Health(c *gin.Context) {
	connected := 0
	failed := 0
	if s.mcpClient != nil {
		connected = len(s.mcpClient.ConnectedServers())
		failed = len(s.mcpClient.FailedServers())
	}
	toolCount := 0
	if s.catalog != nil {
		toolCount = s.catalog.Len()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"version":        version.Full(),
		"tools":          toolCount,
		"servers":        connected,
		"failed_servers": failed,
	})
}
