// Package api exposes the HTTP surface: streaming chat, the tool catalog,
// single-tool testing, and health.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ordo-ai/ordo/pkg/config"
	"github.com/ordo-ai/ordo/pkg/llm"
	"github.com/ordo-ai/ordo/pkg/mcp"
	"github.com/ordo-ai/ordo/pkg/orchestrator"
)

// Runner answers one chat request as a chunk stream. Implemented by
// orchestrator.Orchestrator.
type Runner interface {
	Run(ctx context.Context, req orchestrator.Request) <-chan orchestrator.Chunk
}

// RunnerFactory builds a Runner around a per-request LLM gateway, used when
// a chat request overrides provider, model, or API key.
type RunnerFactory func(cfg config.LLMConfig) (Runner, error)

// ToolCaller drives one function-calling round for the tool test endpoint.
// Implemented by llm.Client.
type ToolCaller interface {
	CompleteWithTool(ctx context.Context, req llm.CompletionRequest, tool llm.ToolDefinition) (*llm.ToolCallResponse, error)
}

// ToolInvoker executes one tool. Implemented by mcp.Invoker.
type ToolInvoker interface {
	Invoke(ctx context.Context, toolName string, args map[string]any) (string, error)
}

// Server is the HTTP front-end.
type Server struct {
	cfg        *config.Config
	runner     Runner
	newRunner  RunnerFactory
	catalog    *mcp.Catalog
	invoker    ToolInvoker
	toolCaller ToolCaller
	mcpClient  *mcp.Client
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer wires the HTTP surface. newRunner may be nil, which disables
// per-request LLM overrides.
func NewServer(cfg *config.Config, runner Runner, newRunner RunnerFactory, catalog *mcp.Catalog, invoker ToolInvoker, toolCaller ToolCaller, mcpClient *mcp.Client) *Server {
	return &Server{
		cfg:        cfg,
		runner:     runner,
		newRunner:  newRunner,
		catalog:    catalog,
		invoker:    invoker,
		toolCaller: toolCaller,
		mcpClient:  mcpClient,
		logger:     slog.With("component", "api"),
	}
}

// Router builds the gin engine with middleware and all routes.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), corsMiddleware(), requestLogger())

	router.POST("/chat/stream", s.ChatStream)
	router.GET("/api/tools", s.ListTools)
	router.POST("/api/tools/test/:tool_name", s.TestTool)
	router.GET("/health", s.Health)
	return router
}

// Start runs the HTTP server. Blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
