package prompt

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrosage/agrosage/pkg/tools"
)

func TestSynthesisPromptStructure(t *testing.T) {
	f := NewFormatter(nil)

	observations := []tools.ToolResult{
		tools.OK("crop_yield_predictor", map[string]any{
			"prediction": 4.2,
			"confidence": 0.88,
		}),
		tools.OK("weather_lookup", map[string]any{
			"summary": "Punjab: 31.0°C, clear sky",
		}),
	}

	system, promptText := f.SynthesisPrompt("Predict wheat yield in Punjab", observations)

	assert.Contains(t, system, "agronomist")
	assert.Contains(t, promptText, "Predict wheat yield in Punjab")
	assert.Contains(t, promptText, "[crop_yield_predictor]")
	assert.Contains(t, promptText, "[weather_lookup]")
	assert.Contains(t, promptText, "Never fabricate numerical values")
	assert.Contains(t, promptText, "not present in the observations")

	// Observations appear in production order.
	assert.Less(t,
		strings.Index(promptText, "[crop_yield_predictor]"),
		strings.Index(promptText, "[weather_lookup]"))
}

func TestSynthesisPromptUngroundedOmitsNoNewFactsRule(t *testing.T) {
	f := NewFormatter(nil)

	_, promptText := f.SynthesisPrompt("hello", nil)

	assert.NotContains(t, promptText, "not present in the observations")
}

func TestObservationLinesSortedKeys(t *testing.T) {
	f := NewFormatter(nil)

	lines := f.ObservationLines(tools.OK("soil_moisture_predictor", map[string]any{
		"prediction": "moist",
		"confidence": 0.7,
	}))

	require.Len(t, lines, 2)
	assert.Equal(t, "[soil_moisture_predictor] confidence: 0.700", lines[0])
	assert.Equal(t, "[soil_moisture_predictor] prediction: moist", lines[1])
}

func TestObservationLinesError(t *testing.T) {
	f := NewFormatter(nil)

	lines := f.ObservationLines(tools.Fail("weather_lookup", tools.ErrBackendUnavailable, "upstream down"))

	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "error: upstream down")
	assert.Contains(t, lines[0], "backend-unavailable")
}

func TestObservationLinesDocuments(t *testing.T) {
	f := NewFormatter(nil)

	result := tools.OK("knowledge_search", map[string]any{
		"documents": []map[string]any{
			{"content": "Crop rotation alternates crops on the same field.", "metadata": map[string]any{"source": "handbook.pdf"}, "score": 0.91},
			{"content": "It improves soil structure.", "metadata": map[string]any{}, "score": 0.74},
		},
	})

	lines := f.ObservationLines(result)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "document_1")
	assert.Contains(t, lines[0], "handbook.pdf")
	assert.Contains(t, lines[1], "document_2")
}

func TestUserSurfaceFooters(t *testing.T) {
	f := NewFormatter(nil)

	observations := []tools.ToolResult{
		tools.OK("crop_yield_predictor", map[string]any{
			"prediction": 4.2,
			"confidence": 0.88,
		}),
	}

	out := f.UserSurface("Expect about 4.2 tonnes per hectare.", observations)

	assert.Contains(t, out, "Tools used: crop_yield_predictor")
	assert.Contains(t, out, "Prediction confidence: 88%")
}

func TestUserSurfaceNoPredictionNoConfidence(t *testing.T) {
	f := NewFormatter(nil)

	observations := []tools.ToolResult{
		tools.OK("knowledge_search", map[string]any{"documents": []map[string]any{}}),
	}

	out := f.UserSurface("Crop rotation is...", observations)

	assert.Contains(t, out, "Tools used: knowledge_search")
	assert.NotContains(t, out, "confidence")
}

func TestUserSurfaceDeduplicatesTools(t *testing.T) {
	f := NewFormatter(nil)

	observations := []tools.ToolResult{
		tools.OK("web_search", map[string]any{"answer": "a"}),
		tools.OK("web_search", map[string]any{"answer": "b"}),
	}

	out := f.UserSurface("answer", observations)
	assert.Equal(t, 1, strings.Count(out, "web_search"))
}

type fakeTranslator struct {
	prefix string
	fail   bool
}

func (f *fakeTranslator) GetName() string         { return "translator" }
func (f *fakeTranslator) GetDescription() string  { return "fake" }
func (f *fakeTranslator) GetInfo() tools.ToolInfo { return tools.ToolInfo{Name: "translator"} }

func (f *fakeTranslator) Execute(_ context.Context, args map[string]any) (tools.ToolResult, error) {
	if f.fail {
		return tools.Fail("translator", tools.ErrBackendUnavailable, "down"), nil
	}
	return tools.OK("translator", map[string]any{
		"translated_text":      f.prefix + tools.GetString(args, "text", ""),
		"detected_source_lang": tools.GetString(args, "source_lang", "auto"),
	}), nil
}

func TestWrapInputTranslates(t *testing.T) {
	f := NewFormatter(&fakeTranslator{prefix: "EN:"})

	text, detected, err := f.WrapInput(context.Background(), "namaste", "hi")
	require.NoError(t, err)
	assert.Equal(t, "EN:namaste", text)
	assert.Equal(t, "hi", detected)
}

func TestWrapInputEnglishPassthrough(t *testing.T) {
	f := NewFormatter(&fakeTranslator{prefix: "EN:"})

	text, _, err := f.WrapInput(context.Background(), "hello", "en")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestWrapOutputFailureKeepsOriginal(t *testing.T) {
	f := NewFormatter(&fakeTranslator{fail: true})

	text, err := f.WrapOutput(context.Background(), "answer", "hi")
	assert.Error(t, err)
	assert.Equal(t, "answer", text)
}
