// Package agents implements the five LLM-backed workflow stages. Each agent
// performs exactly one call-and-response against the generative model: it
// renders a structured prompt, strict-decodes the JSON reply into the
// stage's typed artifact, and writes the artifact into the agent state.
// Malformed replies surface as permanent (schema-class) errors.
package agents

import (
	"context"
	"fmt"
	"strings"

	"bondarchitect/internal/library"
	"bondarchitect/internal/llmclient"
	"bondarchitect/internal/llmtool"
)

// Deps bundles what every stage agent needs.
type Deps struct {
	LLM     llmclient.LLMClient
	Library *library.Registry
}

// generate renders the prompt, performs the single model call, and
// strict-decodes the response. Decode failures are permanent.
func generate[T any](ctx context.Context, llm llmclient.LLMClient, prompt llmtool.StructuredPromptSpec, input any) (*T, error) {
	rendered, err := prompt.Build()
	if err != nil {
		return nil, err
	}
	raw, err := llm.GenerateJSON(ctx, rendered, input)
	if err != nil {
		return nil, err
	}
	var out T
	if err := llmtool.DecodeStrict(raw, &out); err != nil {
		return nil, llmclient.NewPermanentError(err)
	}
	return &out, nil
}

// schemaErrf builds a permanent error for a semantically invalid response.
func schemaErrf(format string, args ...any) error {
	return llmclient.NewPermanentError(fmt.Errorf(format, args...))
}

func requireText(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return schemaErrf("response field %q is empty", field)
	}
	return nil
}
