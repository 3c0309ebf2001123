package engine

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/ordo-ai/ordo/pkg/jsonx"
	"github.com/ordo-ai/ordo/pkg/llm"
	"github.com/ordo-ai/ordo/pkg/plan"
	"github.com/ordo-ai/ordo/pkg/prompt"
)

var (
	stepRefRe     = regexp.MustCompile(`\$\{([A-Za-z0-9_\-]+)\}`)
	descriptiveRe = regexp.MustCompile(`\[[^\]]+\]`)
)

// Resolver substitutes prior step results into tool arguments. `${step_id}`
// references are replaced mechanically; descriptive `[label]` placeholders
// need one LLM call. Arguments without placeholders pass through untouched.
type Resolver struct {
	llm    Completer
	logger *slog.Logger
}

func NewResolver(completer Completer) *Resolver {
	return &Resolver{llm: completer, logger: slog.With("component", "resolver")}
}

// Resolve returns the step's arguments with placeholders filled in. On any
// LLM or parse failure the original arguments are returned unchanged.
func (r *Resolver) Resolve(ctx context.Context, userQuery string, step *plan.Step, prior []plan.StepResult) map[string]any {
	args := step.ToolArgs
	if args == nil {
		return map[string]any{}
	}

	byStep := make(map[string]string, len(prior))
	for _, res := range prior {
		byStep[res.StepID] = res.Result
	}

	resolved := make(map[string]any, len(args))
	needLLM := false
	for key, value := range args {
		str, ok := value.(string)
		if !ok {
			resolved[key] = value
			continue
		}
		str = substituteStepRefs(str, byStep)
		resolved[key] = str
		if descriptiveRe.MatchString(str) {
			needLLM = true
		}
	}
	if !needLLM {
		return resolved
	}

	return r.resolveDescriptive(ctx, userQuery, step, resolved, prior)
}

// substituteStepRefs replaces ${step_id} with the referenced step's result.
// An exact-match value is replaced wholesale to keep its type textual but
// complete; embedded references are spliced into the surrounding string.
func substituteStepRefs(value string, byStep map[string]string) string {
	return stepRefRe.ReplaceAllStringFunc(value, func(ref string) string {
		id := stepRefRe.FindStringSubmatch(ref)[1]
		if result, ok := byStep[id]; ok {
			return result
		}
		return ref
	})
}

func (r *Resolver) resolveDescriptive(ctx context.Context, userQuery string, step *plan.Step, args map[string]any, prior []plan.StepResult) map[string]any {
	var succeeded []plan.StepResult
	for _, res := range prior {
		if res.Success {
			succeeded = append(succeeded, res)
		}
	}
	if len(succeeded) == 0 {
		return args
	}

	argsJSON := prompt.MarshalArgs(args)
	content, err := r.llm.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			llm.User(prompt.ResolvePlaceholders(userQuery, argsJSON, prompt.ToolsContext(succeeded))),
		},
		Temperature: 0.1,
	})
	if err != nil {
		r.logger.Warn("Placeholder resolution failed, keeping original args",
			"tool", step.ToolName, "error", err)
		return args
	}

	parsed, ok := jsonx.ExtractObject(llm.StripThinking(content))
	if !ok {
		r.logger.Warn("Placeholder resolution returned no JSON object", "tool", step.ToolName)
		return args
	}

	// Only accept keys the step already declared; the LLM must not invent
	// new parameters here.
	for key := range args {
		if v, ok := parsed[key]; ok {
			args[key] = v
		}
	}
	return args
}
