package llmclient

import (
	"context"
	"fmt"
	"strings"
)

// NewFromCatalog picks a backend by name ("gemini" or "groq") and model.
// An empty backend defaults to gemini.
func NewFromCatalog(ctx context.Context, backend, model, apiKey string) (LLMClient, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "gemini":
		if model == "" {
			model = "gemini-2.0-flash"
		}
		return NewGeminiClient(ctx, apiKey, model)
	case "groq":
		if model == "" {
			model = "llama-3.3-70b-versatile"
		}
		return NewGroqClient(apiKey, model)
	default:
		return nil, fmt.Errorf("llmclient: unknown backend %q", backend)
	}
}
