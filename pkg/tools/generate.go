package tools

import (
	"context"

	"github.com/agrosage/agrosage/pkg/llms"
)

const agronomistSystemPrompt = "You are an experienced agronomist assistant. " +
	"Answer farming questions clearly and practically. " +
	"Avoid repeating yourself and do not pad answers with filler."

// GenerateTool wraps the language model. It doubles as the router
// fallback and the synthesis backend.
type GenerateTool struct {
	provider llms.Provider
}

func NewGenerateTool(provider llms.Provider) *GenerateTool {
	return &GenerateTool{provider: provider}
}

func (t *GenerateTool) GetName() string { return "text_generator" }

func (t *GenerateTool) GetDescription() string {
	return "Generates free-form answers to agricultural questions using a language model"
}

func (t *GenerateTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        t.GetName(),
		Description: t.GetDescription(),
		Category:    CategoryGeneration,
		Parameters: []ToolParameter{
			{Name: "prompt", Type: "string", Description: "Prompt text", Required: true},
			{Name: "max_tokens", Type: "integer", Description: "Response length cap", Default: 1024, Min: Float64(1), Max: Float64(8192)},
			{Name: "temperature", Type: "number", Description: "Sampling temperature", Default: 0.7, Min: Float64(0), Max: Float64(2)},
		},
		Outputs: []ToolParameter{
			{Name: "text", Type: "string", Description: "Generated text"},
			{Name: "tokens_used", Type: "integer", Description: "Token count"},
		},
		// No keywords or patterns: generation is the floor fallback, it
		// never competes on routing signals.
		Priority:          0,
		TerminalOnSuccess: true,
	}
}

func (t *GenerateTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	system := GetString(args, "system", agronomistSystemPrompt)

	resp, err := t.provider.Generate(ctx, llms.GenerateRequest{
		System:      system,
		Prompt:      GetString(args, "prompt", ""),
		MaxTokens:   GetInt(args, "max_tokens", 1024),
		Temperature: GetFloat(args, "temperature", 0.7),
	})
	if err != nil {
		result := Fail(t.GetName(), ErrBackendUnavailable, "generation failed: %v", err)
		return result, err
	}

	return OK(t.GetName(), map[string]any{
		"text":        resp.Text,
		"tokens_used": resp.TokensUsed,
	}), nil
}

var _ Tool = (*GenerateTool)(nil)
