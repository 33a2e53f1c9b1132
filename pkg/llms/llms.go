// Package llms provides the generation backend used by the generation
// tool and the synthesizer. The gateway treats it as a black box:
// prompt in, text plus token count out.
package llms

import "context"

// GenerateRequest is a single non-streaming completion request.
type GenerateRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

type GenerateResponse struct {
	Text       string
	TokensUsed int
}

// Provider is the language-model contract. Implementations must be
// safe for concurrent use.
type Provider interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error)

	GetModelName() string
}
