package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Invoker executes catalog tools with the result conventions the engine
// records: a bounded execution timeout, error messages it can classify, and
// an explicit note for empty results.
type Invoker struct {
	client  *Client
	catalog *Catalog
	timeout time.Duration
	logger  *slog.Logger
}

// NewInvoker creates an Invoker. timeout bounds each tool execution.
func NewInvoker(client *Client, catalog *Catalog, timeout time.Duration) *Invoker {
	return &Invoker{
		client:  client,
		catalog: catalog,
		timeout: timeout,
		logger:  slog.With("component", "invoker"),
	}
}

// Catalog returns the tool catalog this invoker executes against.
func (inv *Invoker) Catalog() *Catalog { return inv.catalog }

// Invoke runs one tool call and returns its text output.
//
// Error conventions (the message becomes the recorded step result):
//   - unknown tool → non-recoverable InvokeError
//   - deadline exceeded → "工具执行超时(>Ns)", recoverable
//   - transport failure → recoverable InvokeError
//   - tool ran but reported an error → message containing "isError=True",
//     not recoverable (the tool itself rejected the call)
//
// An empty successful result is replaced by an explicit note so downstream
// assessment never sees a silent blank.
func (inv *Invoker) Invoke(ctx context.Context, toolName string, args map[string]any) (string, error) {
	tool, ok := inv.catalog.Get(toolName)
	if !ok {
		return "", &InvokeError{
			Tool:    toolName,
			Message: fmt.Sprintf("未找到工具: %s", toolName),
		}
	}

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	result, err := inv.client.CallTool(callCtx, tool.Server, toolName, args)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && callCtx.Err() == context.DeadlineExceeded {
			inv.logger.Warn("Tool execution timed out",
				"tool", toolName, "server", tool.Server, "timeout", inv.timeout)
			return "", &InvokeError{
				Tool:    toolName,
				Message: fmt.Sprintf("工具执行超时(>%ds)", int(inv.timeout.Seconds())),
				Timeout: true,
			}
		}
		inv.logger.Warn("Tool execution failed",
			"tool", toolName, "server", tool.Server, "error", err)
		return "", &InvokeError{
			Tool:      toolName,
			Message:   err.Error(),
			Transport: true,
		}
	}

	text := extractText(result)
	if result.IsError {
		inv.logger.Warn("Tool reported an error",
			"tool", toolName, "server", tool.Server, "elapsed", elapsed)
		return "", &InvokeError{
			Tool:    toolName,
			Message: fmt.Sprintf("工具返回错误(isError=True): %s", text),
		}
	}

	inv.logger.Debug("Tool executed",
		"tool", toolName, "server", tool.Server, "elapsed", elapsed)

	if strings.TrimSpace(text) == "" {
		return fmt.Sprintf("注意: 工具 %s 返回了空结果", toolName), nil
	}
	return text, nil
}

// extractText concatenates all text content items. Non-text content (images,
// embedded resources) is skipped.
func extractText(result *mcpsdk.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
