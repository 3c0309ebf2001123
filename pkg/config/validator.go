package config

import (
	"errors"
	"fmt"
)

// knownProviders are the providers with built-in base URLs. "custom" requires
// an explicit base_url.
var knownProviders = map[string]bool{
	"ollama":      true,
	"openai":      true,
	"deepseek":    true,
	"siliconflow": true,
	"lmstudio":    true,
	"gemini":      true,
	"custom":      true,
}

// validate checks the merged configuration. All problems are reported at
// once so a broken file can be fixed in one pass.
func validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateEngine(&cfg.Engine)...)
	errs = append(errs, validateLLM(&cfg.LLM)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	for id, server := range cfg.MCPServers {
		errs = append(errs, validateMCPServer(id, server)...)
	}

	return errors.Join(errs...)
}

func validateEngine(e *EngineConfig) []error {
	var errs []error
	if e.MaxIterations <= 0 {
		errs = append(errs, NewValidationError("engine", "max_iterations",
			fmt.Errorf("%w: must be positive, got %d", ErrInvalidValue, e.MaxIterations)))
	}
	if e.MaxToolRetries <= 0 {
		errs = append(errs, NewValidationError("engine", "max_tool_retries",
			fmt.Errorf("%w: must be positive, got %d", ErrInvalidValue, e.MaxToolRetries)))
	}
	if e.ToolExecutionTimeout <= 0 {
		errs = append(errs, NewValidationError("engine", "tool_execution_timeout",
			fmt.Errorf("%w: must be positive", ErrInvalidValue)))
	}
	if e.ToolSelectionTimeout <= 0 {
		errs = append(errs, NewValidationError("engine", "tool_selection_timeout",
			fmt.Errorf("%w: must be positive", ErrInvalidValue)))
	}
	if e.AssessmentTimeout <= 0 {
		errs = append(errs, NewValidationError("engine", "assessment_timeout",
			fmt.Errorf("%w: must be positive", ErrInvalidValue)))
	}
	if e.PollingInterval <= 0 {
		errs = append(errs, NewValidationError("engine", "polling_interval",
			fmt.Errorf("%w: must be positive", ErrInvalidValue)))
	}
	return errs
}

func validateLLM(l *LLMConfig) []error {
	var errs []error
	if l.Model == "" {
		errs = append(errs, NewValidationError("llm", "model", ErrMissingRequiredField))
	}
	if !knownProviders[l.Provider] {
		errs = append(errs, NewValidationError("llm", "provider",
			fmt.Errorf("%w: unknown provider %q", ErrInvalidValue, l.Provider)))
	}
	if l.Provider == "custom" && l.BaseURL == "" {
		errs = append(errs, NewValidationError("llm", "base_url",
			fmt.Errorf("%w: provider \"custom\" requires base_url", ErrMissingRequiredField)))
	}
	return errs
}

func validateServer(s *ServerConfig) []error {
	var errs []error
	if s.Port <= 0 || s.Port > 65535 {
		errs = append(errs, NewValidationError("server", "port",
			fmt.Errorf("%w: must be in 1-65535, got %d", ErrInvalidValue, s.Port)))
	}
	return errs
}

func validateMCPServer(id string, s MCPServerConfig) []error {
	var errs []error
	section := fmt.Sprintf("mcp_server %q", id)
	switch s.Type {
	case TransportTypeStdio:
		if s.Command == "" {
			errs = append(errs, NewValidationError(section, "command",
				fmt.Errorf("%w: stdio transport requires command", ErrMissingRequiredField)))
		}
	case TransportTypeHTTP, TransportTypeSSE:
		if s.URL == "" {
			errs = append(errs, NewValidationError(section, "url",
				fmt.Errorf("%w: %s transport requires url", ErrMissingRequiredField, s.Type)))
		}
	default:
		errs = append(errs, NewValidationError(section, "transport",
			fmt.Errorf("%w: unsupported transport type %q", ErrInvalidValue, s.Type)))
	}
	return errs
}
