package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestYieldExtractor(t *testing.T) {
	input := YieldExtractor("Predict wheat yield in Punjab with 800mm rainfall, 120 kg fertilizer, 2 hectares.", nil)

	assert.Equal(t, "wheat", input["crop"])
	assert.Equal(t, "punjab", input["region"])
	assert.Equal(t, 800.0, input["rainfall_mm"])
	assert.Equal(t, 120.0, input["fertilizer_kg"])
	assert.Equal(t, 2.0, input["area_hectares"])
}

func TestYieldExtractorPartial(t *testing.T) {
	input := YieldExtractor("expected rice harvest this year", nil)

	assert.Equal(t, "rice", input["crop"])
	assert.NotContains(t, input, "rainfall_mm")
	assert.NotContains(t, input, "area_hectares")
}

func TestWeatherExtractor(t *testing.T) {
	input := WeatherExtractor("What is the weather in Punjab for the next 7 days?", nil)

	assert.Equal(t, "punjab", input["location"])
	assert.Equal(t, 7, input["days"])
}

func TestWeatherExtractorDefaultDays(t *testing.T) {
	input := WeatherExtractor("weather in Ludhiana", nil)

	assert.Equal(t, "ludhiana", input["location"])
	assert.Equal(t, 3, input["days"])
}

func TestTranslateExtractor(t *testing.T) {
	input := TranslateExtractor("Translate 'how to grow wheat' to Hindi", nil)

	assert.Equal(t, "hi", input["target_lang"])
	assert.Equal(t, "how to grow wheat", input["text"])
}

func TestTranslateExtractorNoTarget(t *testing.T) {
	input := TranslateExtractor("just some text", nil)

	assert.Equal(t, "just some text", input["text"])
	assert.NotContains(t, input, "target_lang")
}

func TestCropByNutrientsExtractor(t *testing.T) {
	input := CropByNutrientsExtractor("Which crop suits N: 90, P: 42, K: 43, ph 6.5?", nil)

	assert.Equal(t, 90.0, input["nitrogen"])
	assert.Equal(t, 42.0, input["phosphorus"])
	assert.Equal(t, 43.0, input["potassium"])
	assert.Equal(t, 6.5, input["ph"])
}

func TestSoilMoistureExtractor(t *testing.T) {
	input := SoilMoistureExtractor("Soil moisture at 30°C with 65% humidity and 12mm rainfall?", nil)

	assert.Equal(t, 30.0, input["temperature_c"])
	assert.Equal(t, 65.0, input["humidity_pct"])
	assert.Equal(t, 12.0, input["rainfall_mm"])
}

func TestGenerateExtractorWithPrior(t *testing.T) {
	prior := []ToolResult{
		OK("knowledge_search", map[string]any{"summary": "Crop rotation alternates crops."}),
	}
	input := GenerateExtractor("What is crop rotation?", prior)

	prompt := input["prompt"].(string)
	assert.Contains(t, prompt, "What is crop rotation?")
	assert.Contains(t, prompt, "Crop rotation alternates crops.")
}

func TestGenerateExtractorNoPrior(t *testing.T) {
	input := GenerateExtractor("hello", nil)
	assert.Equal(t, "hello", input["prompt"])
}

func TestContainsWord(t *testing.T) {
	assert.True(t, containsWord("grow wheat here", "wheat"))
	assert.False(t, containsWord("buckwheat flour", "wheat"))
	assert.True(t, containsWord("wheat", "wheat"))
}
