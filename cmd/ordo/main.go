// ordo server — connects MCP tool servers, plans and executes tool chains
// for chat queries, and serves the streaming HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ordo-ai/ordo/pkg/api"
	"github.com/ordo-ai/ordo/pkg/assess"
	"github.com/ordo-ai/ordo/pkg/config"
	"github.com/ordo-ai/ordo/pkg/engine"
	"github.com/ordo-ai/ordo/pkg/llm"
	"github.com/ordo-ai/ordo/pkg/mcp"
	"github.com/ordo-ai/ordo/pkg/orchestrator"
	"github.com/ordo-ai/ordo/pkg/planner"
	"github.com/ordo-ai/ordo/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config",
		getEnv("ORDO_CONFIG", "config.yaml"),
		"Path to the YAML configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, continuing with existing environment", "error", err)
	}

	slog.Info("Starting ordo", "version", version.Full(), "config", *configPath)

	ctx := context.Background()

	cfg, err := config.Initialize(ctx, *configPath)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// Connect MCP servers and build the tool catalog.
	mcpClient := mcp.NewClient(cfg)
	if err := mcpClient.Initialize(ctx); err != nil {
		slog.Error("Failed to initialize MCP servers", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := mcpClient.Close(); err != nil {
			slog.Error("Error closing MCP sessions", "error", err)
		}
	}()
	for server, connErr := range mcpClient.FailedServers() {
		slog.Warn("MCP server unavailable", "server", server, "error", connErr)
	}

	catalog, err := mcp.BuildCatalog(ctx, mcpClient)
	if err != nil {
		slog.Error("Failed to build tool catalog", "error", err)
		os.Exit(1)
	}
	slog.Info("Tool catalog ready",
		"tools", catalog.Len(), "servers", len(mcpClient.ConnectedServers()))

	llmClient, err := llm.NewClient(cfg.LLM)
	if err != nil {
		slog.Error("Failed to initialize LLM client", "error", err)
		os.Exit(1)
	}
	slog.Info("LLM client initialized", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)

	invoker := mcp.NewInvoker(mcpClient, catalog, cfg.Engine.ToolExecutionTimeout)
	runner := buildRunner(llmClient, invoker, catalog, cfg)

	// Per-request provider/model/key overrides get their own gateway but
	// share the MCP layer.
	runnerFactory := func(llmCfg config.LLMConfig) (api.Runner, error) {
		overrideClient, err := llm.NewClient(llmCfg)
		if err != nil {
			return nil, err
		}
		return buildRunner(overrideClient, invoker, catalog, cfg), nil
	}

	httpServer := api.NewServer(cfg, runner, runnerFactory, catalog, invoker, llmClient, mcpClient)

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}
	slog.Info("ordo stopped")
}

// buildRunner assembles the query pipeline around one LLM gateway.
func buildRunner(client *llm.Client, invoker *mcp.Invoker, catalog *mcp.Catalog, cfg *config.Config) *orchestrator.Orchestrator {
	assessor := assess.New(client, cfg.Engine.AssessmentTimeout)
	builder := planner.NewBuilder(client, cfg.Engine.ToolSelectionTimeout)
	scheduler := engine.NewScheduler(client, invoker, assessor, catalog, cfg.Engine)
	return orchestrator.New(client, builder, scheduler, catalog)
}
