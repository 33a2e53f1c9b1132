package tools

import (
	"fmt"
)

// ValidateArgs checks an argument map against the tool's declared
// parameters. Out-of-range numeric values are rejected, never clipped.
// The returned error names the offending field.
func ValidateArgs(info ToolInfo, args map[string]any) error {
	for _, p := range info.Parameters {
		raw, present := args[p.Name]
		if !present || raw == nil {
			if p.Required {
				return fmt.Errorf("missing required field %q", p.Name)
			}
			continue
		}

		switch p.Type {
		case "number", "integer":
			val, ok := toFloat(raw)
			if !ok {
				return fmt.Errorf("field %q must be a number", p.Name)
			}
			if p.Min != nil && val < *p.Min {
				return fmt.Errorf("field %q below minimum %v (got %v)", p.Name, *p.Min, val)
			}
			if p.Max != nil && val > *p.Max {
				return fmt.Errorf("field %q above maximum %v (got %v)", p.Name, *p.Max, val)
			}
		case "string":
			s, ok := raw.(string)
			if !ok {
				return fmt.Errorf("field %q must be a string", p.Name)
			}
			if p.Required && s == "" {
				return fmt.Errorf("field %q cannot be empty", p.Name)
			}
			if len(p.Enum) > 0 && !containsString(p.Enum, s) {
				return fmt.Errorf("field %q must be one of %v (got %q)", p.Name, p.Enum, s)
			}
			if p.Max != nil && float64(len(s)) > *p.Max {
				return fmt.Errorf("field %q exceeds maximum length %v", p.Name, *p.Max)
			}
		case "boolean":
			if _, ok := raw.(bool); !ok {
				return fmt.Errorf("field %q must be a boolean", p.Name)
			}
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	}
	return 0, false
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// Float64 returns a pointer, for declaring parameter ranges inline.
func Float64(v float64) *float64 { return &v }
