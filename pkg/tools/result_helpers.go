package tools

import "fmt"

// OK builds a successful result.
func OK(toolName string, output map[string]any) ToolResult {
	return ToolResult{
		Success:  true,
		Output:   output,
		ToolName: toolName,
	}
}

// Fail builds a failed result with a domain error kind.
func Fail(toolName string, kind ErrorKind, format string, args ...any) ToolResult {
	return ToolResult{
		Success:   false,
		ErrorKind: kind,
		Error:     fmt.Sprintf(format, args...),
		ToolName:  toolName,
	}
}

// PrimaryContent extracts the human-readable payload of a result for
// prompt rendering. Falls back through well-known output keys.
func (r ToolResult) PrimaryContent() string {
	if !r.Success {
		return ""
	}
	for _, key := range []string{"answer", "text", "translated_text", "prediction", "summary"} {
		if v, ok := r.Output[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// HasContent reports whether the result carries any non-empty payload.
func (r ToolResult) HasContent() bool {
	if !r.Success {
		return false
	}
	for _, v := range r.Output {
		switch val := v.(type) {
		case string:
			if val != "" {
				return true
			}
		case nil:
		default:
			return true
		}
	}
	return false
}
