package llm

// providerBaseURLs maps provider names to their OpenAI-compatible endpoints.
var providerBaseURLs = map[string]string{
	"ollama":      "http://localhost:11434/v1",
	"openai":      "https://api.openai.com/v1",
	"deepseek":    "https://api.deepseek.com",
	"siliconflow": "https://api.ap.siliconflow.com/v1",
	"lmstudio":    "http://127.0.0.1:1234/v1",
	"gemini":      "https://generativelanguage.googleapis.com/v1beta/openai/",
}

// BaseURLFor returns the default base URL for a known provider.
func BaseURLFor(provider string) (string, bool) {
	url, ok := providerBaseURLs[provider]
	return url, ok
}

// Providers returns the names that BaseURLFor recognizes.
func Providers() []string {
	names := make([]string, 0, len(providerBaseURLs))
	for name := range providerBaseURLs {
		names = append(names, name)
	}
	return names
}
