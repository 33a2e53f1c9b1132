package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agrosage/agrosage/pkg/httpclient"
)

// MaxTranslateChars caps translation input length.
const MaxTranslateChars = 5000

// TranslateTool calls a LibreTranslate-compatible endpoint.
type TranslateTool struct {
	baseURL    string
	apiKey     string
	httpClient *httpclient.Client
}

type TranslateConfig struct {
	Host    string
	APIKey  string
	Timeout time.Duration
}

func NewTranslateTool(cfg TranslateConfig) (*TranslateTool, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("translation host is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &TranslateTool{
		baseURL: strings.TrimSuffix(cfg.Host, "/"),
		apiKey:  cfg.APIKey,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithMaxRetries(1),
		),
	}, nil
}

func (t *TranslateTool) GetName() string { return "translator" }

func (t *TranslateTool) GetDescription() string {
	return "Translates text between languages"
}

func (t *TranslateTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        t.GetName(),
		Description: t.GetDescription(),
		Category:    CategoryTranslation,
		Parameters: []ToolParameter{
			{Name: "text", Type: "string", Description: "Text to translate", Required: true, Max: Float64(MaxTranslateChars)},
			{Name: "source_lang", Type: "string", Description: "Source language code, auto-detected when empty"},
			{Name: "target_lang", Type: "string", Description: "Target language code", Required: true},
		},
		Outputs: []ToolParameter{
			{Name: "translated_text", Type: "string", Description: "Translated text"},
			{Name: "detected_source_lang", Type: "string", Description: "Detected source language"},
		},
		Keywords:          []string{"translate", "translation", "hindi", "punjabi", "tamil", "language"},
		Patterns:          []string{`translate.*(to|into)`, `in (hindi|punjabi|tamil|telugu|bengali|marathi)`, `say.*in \w+$`},
		Priority:          50,
		TerminalOnSuccess: true,
	}
}

type libreTranslateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type libreTranslateResponse struct {
	TranslatedText   string `json:"translatedText"`
	DetectedLanguage *struct {
		Language   string  `json:"language"`
		Confidence float64 `json:"confidence"`
	} `json:"detectedLanguage,omitempty"`
	Error string `json:"error,omitempty"`
}

func (t *TranslateTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	text := GetString(args, "text", "")
	sourceLang := GetString(args, "source_lang", "auto")
	targetLang := GetString(args, "target_lang", "")

	// Empty text is a no-op, not an error.
	if strings.TrimSpace(text) == "" {
		return OK(t.GetName(), map[string]any{
			"translated_text":      text,
			"detected_source_lang": sourceLang,
			"noop":                 true,
		}), nil
	}

	body, err := json.Marshal(libreTranslateRequest{
		Q:      text,
		Source: sourceLang,
		Target: targetLang,
		Format: "text",
		APIKey: t.apiKey,
	})
	if err != nil {
		return Fail(t.GetName(), ErrInternal, "failed to marshal request: %v", err), err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.baseURL+"/translate", bytes.NewReader(body))
	if err != nil {
		return Fail(t.GetName(), ErrInternal, "failed to build request: %v", err), err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if resp == nil {
		result := Fail(t.GetName(), ErrBackendUnavailable, "translation request failed: %v", err)
		return result, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		result := Fail(t.GetName(), ErrBackendUnavailable, "failed to read response: %v", err)
		return result, err
	}

	var parsed libreTranslateResponse
	if jsonErr := json.Unmarshal(data, &parsed); jsonErr != nil {
		result := Fail(t.GetName(), ErrBackendUnavailable, "bad response shape: %v", jsonErr)
		return result, jsonErr
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		err := fmt.Errorf("translation rejected: %s", parsed.Error)
		return Fail(t.GetName(), ErrBackendRejected, "%s", err.Error()), err
	default:
		err := fmt.Errorf("translation upstream error: status %d", resp.StatusCode)
		return Fail(t.GetName(), ErrBackendUnavailable, "%s", err.Error()), err
	}

	detected := sourceLang
	if parsed.DetectedLanguage != nil {
		detected = parsed.DetectedLanguage.Language
	}

	return OK(t.GetName(), map[string]any{
		"translated_text":      parsed.TranslatedText,
		"detected_source_lang": detected,
	}), nil
}

var _ Tool = (*TranslateTool)(nil)
