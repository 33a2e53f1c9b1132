package tools

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/agrosage/agrosage/pkg/weather"
)

// Per-tool input extractors. Each reads the raw query (and prior
// observations) and produces the tool's declared input map. Extraction
// is heuristic; validation happens in ValidateArgs afterwards.

var (
	rainfallRe    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:mm|millimet)`)
	fertilizerRe  = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*kg`)
	areaRe        = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:hectare|hectares|ha\b|acre|acres)`)
	temperatureRe = regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s*(?:°\s*c|degrees?\s*c|celsius)`)
	humidityRe    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%\s*(?:humidity|rh)`)
	percentRe     = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
	daysRe        = regexp.MustCompile(`(\d+)[\s-]*day`)
	locationRe    = regexp.MustCompile(`(?:\bin|\bat|\bfor|\bnear)\s+([a-z][a-z ]{1,30}?)(?:[,.?!]|\s+(?:with|for|over|next|this|today|tomorrow)\b|$)`)
	targetLangRe  = regexp.MustCompile(`(?:to|into|in)\s+(hindi|punjabi|tamil|telugu|bengali|marathi|gujarati|kannada|malayalam|urdu|english|spanish|french|german)`)
	nutrientRe    = regexp.MustCompile(`(?:^|[^a-z])(n|nitrogen|p|phosphorus|k|potassium|ph)\s*[:=]?\s*(\d+(?:\.\d+)?)`)
)

var knownCrops = []string{
	"wheat", "rice", "maize", "corn", "cotton", "sugarcane", "barley",
	"millet", "sorghum", "soybean", "mustard", "groundnut", "potato",
	"onion", "tomato", "chickpea", "lentil", "pulses", "paddy", "jute",
	"tea", "coffee", "banana", "mango", "grapes",
}

func firstNumber(re *regexp.Regexp, query string) (float64, bool) {
	m := re.FindStringSubmatch(query)
	if len(m) < 2 {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func extractCrop(query string) (string, bool) {
	for _, crop := range knownCrops {
		if containsWord(query, crop) {
			return crop, true
		}
	}
	return "", false
}

func containsWord(text, word string) bool {
	idx := 0
	for {
		pos := strings.Index(text[idx:], word)
		if pos < 0 {
			return false
		}
		start := idx + pos
		end := start + len(word)
		beforeOK := start == 0 || !isWordByte(text[start-1])
		afterOK := end == len(text) || !isWordByte(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = end
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

func extractLocation(query string) (string, bool) {
	m := locationRe.FindStringSubmatch(query)
	if len(m) < 2 {
		return "", false
	}
	loc := strings.TrimSpace(m[1])
	if loc == "" {
		return "", false
	}
	return loc, true
}

// YieldExtractor pulls crop, region, and the numeric yield drivers.
func YieldExtractor(query string, _ []ToolResult) map[string]any {
	q := strings.ToLower(query)
	input := map[string]any{}

	if crop, ok := extractCrop(q); ok {
		input["crop"] = crop
	}
	if loc, ok := extractLocation(q); ok {
		input["region"] = loc
	}
	if v, ok := firstNumber(rainfallRe, q); ok {
		input["rainfall_mm"] = v
	}
	if v, ok := firstNumber(fertilizerRe, q); ok {
		input["fertilizer_kg"] = v
	}
	if v, ok := firstNumber(areaRe, q); ok {
		input["area_hectares"] = v
	}
	return input
}

// PestExtractor only shapes top_k; the image arrives via the request
// attachment, injected by the agent.
func PestExtractor(_ string, _ []ToolResult) map[string]any {
	return map[string]any{"top_k": 3}
}

func SoilMoistureExtractor(query string, _ []ToolResult) map[string]any {
	q := strings.ToLower(query)
	input := map[string]any{}

	if v, ok := firstNumber(temperatureRe, q); ok {
		input["temperature_c"] = v
	}
	if v, ok := firstNumber(humidityRe, q); ok {
		input["humidity_pct"] = v
	} else if v, ok := firstNumber(percentRe, q); ok {
		input["humidity_pct"] = v
	}
	if v, ok := firstNumber(rainfallRe, q); ok {
		input["rainfall_mm"] = v
	}
	return input
}

func nutrientValues(query string) map[string]float64 {
	out := map[string]float64{}
	for _, m := range nutrientRe.FindAllStringSubmatch(query, -1) {
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		switch m[1] {
		case "n", "nitrogen":
			out["nitrogen"] = v
		case "p", "phosphorus":
			out["phosphorus"] = v
		case "k", "potassium":
			out["potassium"] = v
		case "ph":
			out["ph"] = v
		}
	}
	return out
}

func CropByNutrientsExtractor(query string, _ []ToolResult) map[string]any {
	q := strings.ToLower(query)
	input := map[string]any{}
	for k, v := range nutrientValues(q) {
		input[k] = v
	}
	return input
}

func CropByClimateExtractor(query string, _ []ToolResult) map[string]any {
	q := strings.ToLower(query)
	input := map[string]any{}

	if v, ok := firstNumber(temperatureRe, q); ok {
		input["temperature_c"] = v
	}
	if v, ok := firstNumber(humidityRe, q); ok {
		input["humidity_pct"] = v
	} else if v, ok := firstNumber(percentRe, q); ok {
		input["humidity_pct"] = v
	}
	if v, ok := firstNumber(rainfallRe, q); ok {
		input["rainfall_mm"] = v
	}
	return input
}

func SoilFertilityExtractor(query string, _ []ToolResult) map[string]any {
	q := strings.ToLower(query)
	input := map[string]any{}
	for k, v := range nutrientValues(q) {
		input[k] = v
	}
	if v, ok := firstNumber(percentRe, q); ok {
		input["organic_carbon_pct"] = v
	}
	return input
}

func RetrievalExtractor(query string, _ []ToolResult) map[string]any {
	return map[string]any{
		"query": query,
		"top_k": DefaultTopK,
	}
}

func WebSearchExtractor(query string, _ []ToolResult) map[string]any {
	return map[string]any{
		"query":       query,
		"depth":       "basic",
		"max_results": 5,
	}
}

// TranslateExtractor strips the instruction wrapper and keeps the
// payload text.
func TranslateExtractor(query string, _ []ToolResult) map[string]any {
	q := strings.ToLower(query)
	input := map[string]any{"text": query}

	if m := targetLangRe.FindStringSubmatch(q); len(m) >= 2 {
		input["target_lang"] = languageCode(m[1])
		if idx := strings.LastIndex(q, m[0]); idx > 0 {
			text := strings.TrimSpace(query[:idx])
			if strings.HasPrefix(strings.ToLower(text), "translate") {
				text = text[len("translate"):]
			}
			if trimmed := strings.Trim(text, " \"':"); trimmed != "" {
				input["text"] = trimmed
			}
		}
	}
	return input
}

func languageCode(name string) string {
	codes := map[string]string{
		"hindi": "hi", "punjabi": "pa", "tamil": "ta", "telugu": "te",
		"bengali": "bn", "marathi": "mr", "gujarati": "gu", "kannada": "kn",
		"malayalam": "ml", "urdu": "ur", "english": "en", "spanish": "es",
		"french": "fr", "german": "de",
	}
	if code, ok := codes[name]; ok {
		return code
	}
	return name
}

// GenerateExtractor forwards the query as the prompt. When prior
// observations carry content, they are appended as context so a
// mid-trace generation step stays grounded.
func GenerateExtractor(query string, prior []ToolResult) map[string]any {
	prompt := query
	var contextParts []string
	for _, obs := range prior {
		if content := obs.PrimaryContent(); content != "" {
			contextParts = append(contextParts, content)
		}
	}
	if len(contextParts) > 0 {
		prompt = query + "\n\nContext:\n" + strings.Join(contextParts, "\n")
	}
	return map[string]any{"prompt": prompt}
}

func WeatherExtractor(query string, _ []ToolResult) map[string]any {
	q := strings.ToLower(query)
	input := map[string]any{"days": weather.DefaultDays}

	if loc, ok := extractLocation(q); ok {
		input["location"] = loc
	}
	if m := daysRe.FindStringSubmatch(q); len(m) >= 2 {
		if d, err := strconv.Atoi(m[1]); err == nil {
			input["days"] = d
		}
	}
	return input
}
