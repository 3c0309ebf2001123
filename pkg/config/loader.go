package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Read the YAML file (missing file is fine — built-ins apply)
//  2. Expand ${VAR} environment references
//  3. Parse YAML into a Config overlay
//  4. Merge the overlay onto built-in defaults (user overrides built-in)
//  5. Validate the merged result
func Initialize(_ context.Context, path string) (*Config, error) {
	log := slog.With("config_path", path)
	log.Info("Initializing configuration")

	cfg, err := load(path)
	if err != nil {
		return nil, &LoadError{File: path, Err: err}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized successfully",
		"mcp_servers", len(cfg.MCPServers),
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model)

	return cfg, nil
}

func load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("Config file not found, using built-in defaults", "path", path)
			return cfg, nil
		}
		return nil, err
	}

	data = ExpandEnv(data)

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	// User values override defaults; unset user fields keep the default.
	if err := mergo.Merge(cfg, &overlay, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge configuration: %w", err)
	}

	// Map merging in mergo unions keys; MCP servers are taken wholesale from
	// the user file so a renamed server does not leave a stale default behind.
	if overlay.MCPServers != nil {
		cfg.MCPServers = overlay.MCPServers
	}

	return cfg, nil
}
