package predict

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agrosage/agrosage/pkg/httpclient"
)

// HTTPBackend reaches a model server over plain JSON. Each model hangs
// off POST {base}/predict/{model}; the server answers with the uniform
// Result shape.
type HTTPBackend struct {
	baseURL    string
	apiKey     string
	httpClient *httpclient.Client
}

type HTTPBackendConfig struct {
	Host    string
	APIKey  string
	Timeout time.Duration
}

func NewHTTPBackend(cfg HTTPBackendConfig) (*HTTPBackend, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("prediction backend host is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &HTTPBackend{
		baseURL: strings.TrimSuffix(cfg.Host, "/"),
		apiKey:  cfg.APIKey,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
		),
	}, nil
}

func (b *HTTPBackend) Predict(ctx context.Context, model string, input map[string]any) (Result, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal input: %w", err)
	}
	return b.post(ctx, model, body)
}

func (b *HTTPBackend) PredictImage(ctx context.Context, model string, image []byte, topK int) (Result, error) {
	body, err := json.Marshal(map[string]any{
		"image_base64": base64.StdEncoding.EncodeToString(image),
		"top_k":        topK,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal input: %w", err)
	}
	return b.post(ctx, model, body)
}

func (b *HTTPBackend) post(ctx context.Context, model string, body []byte) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.baseURL+"/predict/"+model, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.httpClient.Do(req)
	if resp == nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("%w: read failed: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return Result{}, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, truncate(string(data), 200))
	default:
		return Result{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, fmt.Errorf("%w: bad response shape: %v", ErrUnavailable, err)
	}

	return result, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

var _ Backend = (*HTTPBackend)(nil)
