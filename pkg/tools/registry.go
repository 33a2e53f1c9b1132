package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agrosage/agrosage/pkg/observability"
	"github.com/agrosage/agrosage/pkg/registry"
)

// ToolEntry pairs a tool with its input extractor and execution timeout.
type ToolEntry struct {
	Tool      Tool
	Extractor Extractor
	Timeout   time.Duration
	Name      string
}

type ToolRegistryError struct {
	Component string
	Action    string
	Message   string
	Err       error
}

func (e *ToolRegistryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Component, e.Action, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Component, e.Action, e.Message)
}

func NewToolRegistryError(component, action, message string, err error) *ToolRegistryError {
	return &ToolRegistryError{
		Component: component,
		Action:    action,
		Message:   message,
		Err:       err,
	}
}

// ToolRegistry is the process-wide tool catalog. It is populated at
// startup and read-only afterwards; lookups never touch I/O.
type ToolRegistry struct {
	*registry.BaseRegistry[ToolEntry]
	defaultTimeout time.Duration
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		BaseRegistry:   registry.NewBaseRegistry[ToolEntry](),
		defaultTimeout: 15 * time.Second,
	}
}

// RegisterOption configures a tool registration.
type RegisterOption func(*ToolEntry)

// WithExtractor attaches the per-tool input extractor.
func WithExtractor(fn Extractor) RegisterOption {
	return func(e *ToolEntry) {
		e.Extractor = fn
	}
}

// WithTimeout overrides the per-tool execution timeout.
func WithTimeout(d time.Duration) RegisterOption {
	return func(e *ToolEntry) {
		e.Timeout = d
	}
}

// RegisterTool adds a tool to the catalog. Fails if the name is taken.
func (r *ToolRegistry) RegisterTool(tool Tool, opts ...RegisterOption) error {
	name := tool.GetName()
	if name == "" {
		return NewToolRegistryError("ToolRegistry", "RegisterTool", "tool name cannot be empty", nil)
	}

	entry := ToolEntry{
		Tool:    tool,
		Timeout: r.defaultTimeout,
		Name:    name,
	}
	for _, opt := range opts {
		opt(&entry)
	}

	if err := r.Register(name, entry); err != nil {
		return NewToolRegistryError("ToolRegistry", "RegisterTool",
			fmt.Sprintf("failed to register tool %s", name), err)
	}
	return nil
}

func (r *ToolRegistry) GetTool(name string) (Tool, error) {
	entry, exists := r.Get(name)
	if !exists {
		return nil, NewToolRegistryError("ToolRegistry", "GetTool",
			fmt.Sprintf("tool %s not found", name), nil)
	}
	return entry.Tool, nil
}

// GetExtractor returns the input extractor registered for a tool, or nil.
func (r *ToolRegistry) GetExtractor(name string) Extractor {
	entry, exists := r.Get(name)
	if !exists {
		return nil
	}
	return entry.Extractor
}

// ListTools returns tool metadata in registration order, optionally
// filtered by category. An empty category returns everything.
func (r *ToolRegistry) ListTools(category Category) []ToolInfo {
	var infos []ToolInfo
	for _, entry := range r.List() {
		info := entry.Tool.GetInfo()
		if category != "" && info.Category != category {
			continue
		}
		infos = append(infos, info)
	}
	return infos
}

// FindByCategory returns the first registered tool of a category.
func (r *ToolRegistry) FindByCategory(category Category) (Tool, bool) {
	for _, entry := range r.List() {
		if entry.Tool.GetInfo().Category == category {
			return entry.Tool, true
		}
	}
	return nil, false
}

// ExecuteTool invokes a tool with its registered timeout, recording a
// span and metrics. Adapter failures come back as failed ToolResults
// with a domain error kind; the error return carries the same failure
// for callers that want to branch on it.
func (r *ToolRegistry) ExecuteTool(ctx context.Context, toolName string, args map[string]any) (ToolResult, error) {
	startTime := time.Now()

	tracer := observability.GetTracer("agrosage.tools")
	ctx, span := tracer.Start(ctx, observability.SpanToolExecution,
		trace.WithAttributes(
			attribute.String(observability.AttrToolName, toolName),
		),
	)
	defer span.End()

	entry, exists := r.Get(toolName)
	if !exists {
		err := NewToolRegistryError("ToolRegistry", "ExecuteTool",
			fmt.Sprintf("tool %s not found", toolName), nil)
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool not found")
		recordMetrics(ctx, toolName, time.Since(startTime), err)
		return Fail(toolName, ErrInternal, "tool %s not found", toolName), err
	}

	if err := ValidateArgs(entry.Tool.GetInfo(), args); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid input")
		recordMetrics(ctx, toolName, time.Since(startTime), err)
		result := Fail(toolName, ErrInvalidInput, "%s", err.Error())
		result.ExecutionTime = time.Since(startTime)
		return result, err
	}

	execCtx := ctx
	var cancel context.CancelFunc
	if entry.Timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, entry.Timeout)
		defer cancel()
	}

	result, execErr := entry.Tool.Execute(execCtx, args)
	duration := time.Since(startTime)
	result.ToolName = toolName
	result.ExecutionTime = duration

	// Context expiry maps to the timeout kind regardless of what the
	// adapter reported.
	if execErr != nil && errors.Is(execErr, context.DeadlineExceeded) {
		result.Success = false
		result.ErrorKind = ErrTimeout
		if result.Error == "" {
			result.Error = fmt.Sprintf("tool %s timed out after %v", toolName, entry.Timeout)
		}
	}
	if !result.Success && result.ErrorKind == "" {
		result.ErrorKind = ErrInternal
	}

	var recordErr error
	switch {
	case execErr != nil:
		recordErr = execErr
		span.RecordError(execErr)
		span.SetStatus(codes.Error, execErr.Error())
	case !result.Success:
		recordErr = fmt.Errorf("%s: %s", result.ErrorKind, result.Error)
		span.RecordError(recordErr)
		span.SetStatus(codes.Error, result.Error)
	default:
		span.SetStatus(codes.Ok, "success")
	}
	recordMetrics(ctx, toolName, duration, recordErr)

	span.SetAttributes(
		attribute.Bool("tool.success", result.Success),
		attribute.Int64("tool.duration_ms", duration.Milliseconds()),
	)

	return result, execErr
}

func recordMetrics(ctx context.Context, toolName string, duration time.Duration, err error) {
	if metrics := observability.GetGlobalMetrics(); metrics != nil {
		metrics.RecordToolExecution(ctx, toolName, duration, err)
	}
}
