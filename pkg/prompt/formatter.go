// Package prompt owns every string that reaches either the language
// model or the end user. Nothing else in the system renders text.
package prompt

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/agrosage/agrosage/pkg/tools"
)

const synthesisSystemRole = "You are an experienced agronomist assistant for farmers. " +
	"You answer using the tool observations provided, citing tools by name."

// Document is the decoded shape of a retrieval observation entry.
type Document struct {
	Content  string         `mapstructure:"content"`
	Metadata map[string]any `mapstructure:"metadata"`
	Score    float64        `mapstructure:"score"`
}

// WebResult is the decoded shape of a web search observation entry.
type WebResult struct {
	Title   string  `mapstructure:"title"`
	URL     string  `mapstructure:"url"`
	Content string  `mapstructure:"content"`
	Score   float64 `mapstructure:"score"`
}

// Formatter renders tool output into the two text surfaces: the
// synthesis prompt and the user-facing answer.
type Formatter struct {
	translator tools.Tool
}

// NewFormatter builds a formatter. The translator is optional; without
// it the translation-wrap calls pass text through unchanged.
func NewFormatter(translator tools.Tool) *Formatter {
	return &Formatter{translator: translator}
}

// SynthesisPrompt builds the system role and the synthesis prompt from
// the query and the observations in production order.
func (f *Formatter) SynthesisPrompt(query string, observations []tools.ToolResult) (system, prompt string) {
	var sb strings.Builder

	sb.WriteString("User question:\n")
	sb.WriteString(query)
	sb.WriteString("\n\nTool observations, in the order produced:\n")

	grounded := false
	for i, obs := range observations {
		fmt.Fprintf(&sb, "\nObservation %d:\n", i+1)
		for _, line := range f.ObservationLines(obs) {
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
		if obs.Success && obs.HasContent() {
			grounded = true
		}
	}

	sb.WriteString("\nAnswer rules:\n")
	sb.WriteString("- Use headings when the answer has multiple parts.\n")
	sb.WriteString("- Use bullet points for enumerations.\n")
	sb.WriteString("- Never fabricate numerical values; only use numbers present in the observations.\n")
	sb.WriteString("- Cite tools by name when you use their output.\n")
	if grounded {
		sb.WriteString("- Do not introduce facts that are not present in the observations.\n")
	}

	return synthesisSystemRole, sb.String()
}

// ObservationLines renders one result as "[tool_name] key: value" lines
// with keys in sorted order.
func (f *Formatter) ObservationLines(obs tools.ToolResult) []string {
	name := obs.ToolName
	if !obs.Success {
		return []string{fmt.Sprintf("[%s] error: %s (%s)", name, obs.Error, obs.ErrorKind)}
	}

	var lines []string
	keys := make([]string, 0, len(obs.Output))
	for k := range obs.Output {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		switch key {
		case "documents":
			lines = append(lines, f.documentLines(name, obs.Output[key])...)
		case "results":
			lines = append(lines, f.webResultLines(name, obs.Output[key])...)
		default:
			lines = append(lines, fmt.Sprintf("[%s] %s: %s", name, key, renderValue(obs.Output[key])))
		}
	}
	return lines
}

func (f *Formatter) documentLines(name string, raw any) []string {
	var docs []Document
	if err := mapstructure.Decode(raw, &docs); err != nil {
		return []string{fmt.Sprintf("[%s] documents: %v", name, raw)}
	}

	lines := make([]string, 0, len(docs))
	for i, doc := range docs {
		line := fmt.Sprintf("[%s] document_%d: %s", name, i+1, truncateText(doc.Content, 500))
		if src, ok := doc.Metadata["source"].(string); ok && src != "" {
			line += fmt.Sprintf(" (source: %s)", src)
		}
		lines = append(lines, line)
	}
	return lines
}

func (f *Formatter) webResultLines(name string, raw any) []string {
	var results []WebResult
	if err := mapstructure.Decode(raw, &results); err != nil {
		return []string{fmt.Sprintf("[%s] results: %v", name, raw)}
	}

	lines := make([]string, 0, len(results))
	for i, r := range results {
		lines = append(lines, fmt.Sprintf("[%s] result_%d: %s - %s (%s)",
			name, i+1, r.Title, truncateText(r.Content, 300), r.URL))
	}
	return lines
}

func renderValue(v any) string {
	switch val := v.(type) {
	case string:
		return truncateText(val, 800)
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%.3f", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// UserSurface merges the generated answer with the structured footers:
// a tools-used line and, when a numeric prediction fired, a confidence
// indicator.
func (f *Formatter) UserSurface(generated string, observations []tools.ToolResult) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(generated))

	var used []string
	seen := map[string]bool{}
	var predictionConfidence float64
	hasPrediction := false

	for _, obs := range observations {
		if obs.ToolName != "" && !seen[obs.ToolName] {
			seen[obs.ToolName] = true
			used = append(used, obs.ToolName)
		}
		if obs.Success {
			if conf, ok := obs.Output["confidence"].(float64); ok {
				hasPrediction = true
				predictionConfidence = conf
			}
		}
	}

	if len(used) > 0 {
		sb.WriteString("\n\nTools used: ")
		sb.WriteString(strings.Join(used, ", "))
	}
	if hasPrediction {
		fmt.Fprintf(&sb, "\nPrediction confidence: %.0f%%", predictionConfidence*100)
	}

	return sb.String()
}

// WrapInput translates the user's text into the canonical processing
// language before routing and storage.
func (f *Formatter) WrapInput(ctx context.Context, text, sourceLang string) (string, string, error) {
	if f.translator == nil || sourceLang == "" || sourceLang == "en" {
		return text, sourceLang, nil
	}

	result, err := f.translator.Execute(ctx, map[string]any{
		"text":        text,
		"source_lang": sourceLang,
		"target_lang": "en",
	})
	if err != nil || !result.Success {
		return text, sourceLang, fmt.Errorf("input translation failed: %s", result.Error)
	}

	translated := tools.GetString(result.Output, "translated_text", text)
	detected := tools.GetString(result.Output, "detected_source_lang", sourceLang)
	return translated, detected, nil
}

// WrapOutput translates the final user surface into the user's chosen
// language after synthesis.
func (f *Formatter) WrapOutput(ctx context.Context, text, targetLang string) (string, error) {
	if f.translator == nil || targetLang == "" || targetLang == "en" {
		return text, nil
	}

	result, err := f.translator.Execute(ctx, map[string]any{
		"text":        text,
		"source_lang": "en",
		"target_lang": targetLang,
	})
	if err != nil || !result.Success {
		return text, fmt.Errorf("output translation failed: %s", result.Error)
	}

	return tools.GetString(result.Output, "translated_text", text), nil
}
