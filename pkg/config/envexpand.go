package config

import (
	"os"
	"regexp"
)

// envRefRe matches ${VAR} and ${VAR:-default} references.
var envRefRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnv expands ${VAR} and ${VAR:-default} references in YAML content
// from the process environment.
//
// Examples:
//   - ${LLM_API_KEY}            → value of LLM_API_KEY
//   - ${LLM_MODEL:-qwen2.5}     → value of LLM_MODEL, or "qwen2.5" when unset
//
// Missing variables without a default expand to the empty string; validation
// catches required fields that end up empty. Bare $VAR (no braces) is left
// untouched so shell snippets inside server args survive expansion.
func ExpandEnv(data []byte) []byte {
	return envRefRe.ReplaceAllFunc(data, func(match []byte) []byte {
		groups := envRefRe.FindSubmatch(match)
		name := string(groups[1])
		if value, ok := os.LookupEnv(name); ok && value != "" {
			return []byte(value)
		}
		if len(groups[2]) > 0 {
			return groups[3] // default after ":-"
		}
		return nil
	})
}
