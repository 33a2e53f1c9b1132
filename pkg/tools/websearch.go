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

// WebSearchTool calls an external search API (Tavily request shape).
type WebSearchTool struct {
	baseURL    string
	apiKey     string
	httpClient *httpclient.Client
}

type WebSearchConfig struct {
	Host    string
	APIKey  string
	Timeout time.Duration
}

func NewWebSearchTool(cfg WebSearchConfig) (*WebSearchTool, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("web search API key is required")
	}

	baseURL := cfg.Host
	if baseURL == "" {
		baseURL = "https://api.tavily.com"
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &WebSearchTool{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithMaxRetries(1),
		),
	}, nil
}

func (t *WebSearchTool) GetName() string { return "web_search" }

func (t *WebSearchTool) GetDescription() string {
	return "Searches the web for current agricultural information, prices, and news"
}

func (t *WebSearchTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        t.GetName(),
		Description: t.GetDescription(),
		Category:    CategoryExternalSearch,
		Parameters: []ToolParameter{
			{Name: "query", Type: "string", Description: "Search query", Required: true},
			{Name: "depth", Type: "string", Description: "Search depth", Default: "basic", Enum: []string{"basic", "advanced"}},
			{Name: "max_results", Type: "integer", Description: "Number of results", Default: 5, Min: Float64(1), Max: Float64(10)},
			{Name: "include_domains", Type: "array", Description: "Restrict results to these domains"},
		},
		Outputs: []ToolParameter{
			{Name: "results", Type: "array", Description: "Web results with title, url, content, and score"},
			{Name: "answer", Type: "string", Description: "Provider-synthesized answer when available"},
		},
		Keywords:          []string{"latest", "current", "news", "price", "market", "today", "recent", "scheme", "subsidy"},
		Patterns:          []string{`(latest|current|today).*(price|news|rate)`, `market (price|rate)`, `government scheme`},
		Priority:          15,
		TerminalOnSuccess: false,
	}
}

type tavilyRequest struct {
	APIKey         string   `json:"api_key"`
	Query          string   `json:"query"`
	SearchDepth    string   `json:"search_depth"`
	MaxResults     int      `json:"max_results"`
	IncludeAnswer  bool     `json:"include_answer"`
	IncludeDomains []string `json:"include_domains,omitempty"`
}

type tavilyResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title         string  `json:"title"`
		URL           string  `json:"url"`
		Content       string  `json:"content"`
		Score         float64 `json:"score"`
		PublishedDate string  `json:"published_date,omitempty"`
	} `json:"results"`
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	body, err := json.Marshal(tavilyRequest{
		APIKey:         t.apiKey,
		Query:          GetString(args, "query", ""),
		SearchDepth:    GetString(args, "depth", "basic"),
		MaxResults:     GetInt(args, "max_results", 5),
		IncludeAnswer:  true,
		IncludeDomains: GetStringSlice(args, "include_domains"),
	})
	if err != nil {
		return Fail(t.GetName(), ErrInternal, "failed to marshal request: %v", err), err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return Fail(t.GetName(), ErrInternal, "failed to build request: %v", err), err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if resp == nil {
		result := Fail(t.GetName(), ErrBackendUnavailable, "search request failed: %v", err)
		return result, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		result := Fail(t.GetName(), ErrBackendUnavailable, "failed to read response: %v", err)
		return result, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		err := fmt.Errorf("search rejected: status %d", resp.StatusCode)
		return Fail(t.GetName(), ErrBackendRejected, "%s", err.Error()), err
	default:
		err := fmt.Errorf("search upstream error: status %d", resp.StatusCode)
		return Fail(t.GetName(), ErrBackendUnavailable, "%s", err.Error()), err
	}

	var parsed tavilyResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		result := Fail(t.GetName(), ErrBackendUnavailable, "bad response shape: %v", err)
		return result, err
	}

	results := make([]map[string]any, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		entry := map[string]any{
			"title":   r.Title,
			"url":     r.URL,
			"content": r.Content,
			"score":   r.Score,
		}
		if r.PublishedDate != "" {
			entry["published_date"] = r.PublishedDate
		}
		results = append(results, entry)
	}

	output := map[string]any{
		"results": results,
		"count":   len(results),
	}
	if parsed.Answer != "" {
		output["answer"] = parsed.Answer
	}

	result := OK(t.GetName(), output)
	result.NeedsFollowup = parsed.Answer == ""
	return result, nil
}

var _ Tool = (*WebSearchTool)(nil)
