package tools

import (
	"context"
	"time"
)

// Category classifies a tool for routing and listing.
type Category string

const (
	CategoryPrediction     Category = "prediction"
	CategoryRetrieval      Category = "retrieval"
	CategoryGeneration     Category = "generation"
	CategoryExternalSearch Category = "external-search"
	CategoryTranslation    Category = "translation"
	CategoryUtility        Category = "utility"
)

// ErrorKind is the domain-level failure classification carried by a
// failed ToolResult. It is stable across adapters so the agent loop and
// the HTTP layer can react uniformly.
type ErrorKind string

const (
	ErrInvalidInput       ErrorKind = "invalid-input"
	ErrBackendUnavailable ErrorKind = "backend-unavailable"
	ErrBackendRejected    ErrorKind = "backend-rejected"
	ErrTimeout            ErrorKind = "timeout"
	ErrInternal           ErrorKind = "internal"
)

// Transient reports whether a retry with the same input could succeed.
func (k ErrorKind) Transient() bool {
	return k == ErrTimeout || k == ErrBackendUnavailable
}

type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    Category        `json:"category"`
	Parameters  []ToolParameter `json:"parameters,omitempty"`
	Outputs     []ToolParameter `json:"outputs,omitempty"`

	// Routing signals. Keywords are matched as whole words; Patterns are
	// regular expressions over the lowercased query; Units are measurement
	// suffixes ("mm", "°c") that favor this tool when present.
	Keywords []string `json:"keywords,omitempty"`
	Patterns []string `json:"patterns,omitempty"`
	Units    []string `json:"units,omitempty"`

	// Priority breaks router score ties; higher wins.
	Priority int `json:"priority"`

	// TerminalOnSuccess marks tools whose successful output answers the
	// query without further tool calls.
	TerminalOnSuccess bool `json:"terminal_on_success"`

	// AcceptsImage marks the tool that handles attached images.
	AcceptsImage bool `json:"accepts_image,omitempty"`
}

type ToolParameter struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Default     any      `json:"default,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Unit        string   `json:"unit,omitempty"`
}

type ToolResult struct {
	Success       bool           `json:"success"`
	Output        map[string]any `json:"output,omitempty"`
	ErrorKind     ErrorKind      `json:"error_kind,omitempty"`
	Error         string         `json:"error,omitempty"`
	ToolName      string         `json:"tool_name"`
	ExecutionTime time.Duration  `json:"execution_time,omitempty"`

	// NeedsFollowup tells the agent the observation is not sufficient on
	// its own (e.g. raw retrieval that must be synthesized).
	NeedsFollowup bool `json:"needs_followup,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// Tool is the uniform invocation contract over heterogeneous backends.
// Implementations must be safe for concurrent use.
type Tool interface {
	GetInfo() ToolInfo

	Execute(ctx context.Context, args map[string]any) (ToolResult, error)

	GetName() string

	GetDescription() string
}

// Extractor builds a tool's input map from the user query and any prior
// observations. Registered alongside the tool, never inside it.
type Extractor func(query string, prior []ToolResult) map[string]any
