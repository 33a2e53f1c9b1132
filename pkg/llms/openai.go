package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agrosage/agrosage/pkg/httpclient"
	"github.com/agrosage/agrosage/pkg/observability"
)

// OpenAIProvider speaks the OpenAI-compatible chat completions API,
// which also covers self-hosted backends (vLLM, Ollama's compat mode,
// LM Studio) behind the same request shape.
type OpenAIProvider struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *httpclient.Client
}

type OpenAIConfig struct {
	Host    string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
	Stream      bool            `json:"stream"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	baseURL := cfg.Host
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &OpenAIProvider{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
		),
	}, nil
}

func (p *OpenAIProvider) GetModelName() string {
	return p.model
}

func (p *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	startTime := time.Now()

	tracer := observability.GetTracer("agrosage.llm")
	ctx, span := tracer.Start(ctx, observability.SpanLLMRequest,
		trace.WithAttributes(
			attribute.String("llm.model", p.model),
			attribute.String("provider", "openai"),
		),
	)
	defer span.End()

	var messages []openAIMessage
	if req.System != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(openAIRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return GenerateResponse{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return GenerateResponse{}, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	duration := time.Since(startTime)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordLLMMetrics(ctx, p.model, duration, 0, err)
		return GenerateResponse{}, fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return GenerateResponse{}, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return GenerateResponse{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if parsed.Error != nil {
		err := fmt.Errorf("llm error: %s", parsed.Error.Message)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordLLMMetrics(ctx, p.model, duration, 0, err)
		return GenerateResponse{}, err
	}
	if len(parsed.Choices) == 0 {
		return GenerateResponse{}, fmt.Errorf("llm returned no choices")
	}

	tokens := parsed.Usage.TotalTokens
	recordLLMMetrics(ctx, p.model, duration, tokens, nil)
	span.SetStatus(codes.Ok, "success")
	span.SetAttributes(attribute.Int("llm.tokens.total", tokens))

	return GenerateResponse{
		Text:       parsed.Choices[0].Message.Content,
		TokensUsed: tokens,
	}, nil
}

func recordLLMMetrics(ctx context.Context, model string, duration time.Duration, tokens int, err error) {
	if metrics := observability.GetGlobalMetrics(); metrics != nil {
		metrics.RecordLLMRequest(ctx, model, duration, tokens, err)
	}
}

var _ Provider = (*OpenAIProvider)(nil)
