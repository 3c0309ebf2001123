package config

import "time"

// DefaultConfig returns the built-in configuration. User YAML is merged on
// top, so every field here must be a sensible standalone value.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxIterations:        15,
			MaxToolRetries:       3,
			ToolExecutionTimeout: 30 * time.Second,
			ToolSelectionTimeout: 15 * time.Second,
			AssessmentTimeout:    10 * time.Second,
			PollingInterval:      5 * time.Second,
			SimilarityThreshold:  0.7,
		},
		LLM: LLMConfig{
			Provider:    "ollama",
			Model:       "qwen2.5",
			APIKey:      "ollama",
			Temperature: 0.7,
			Timeout:     120 * time.Second,
		},
		MCPServers: map[string]MCPServerConfig{},
		Server: ServerConfig{
			Port:         8007,
			SystemPrompt: "# 工具调用助手",
		},
	}
}
