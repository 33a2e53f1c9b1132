package tools

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/agrosage/agrosage/pkg/predict"
)

// PredictionTool adapts one black-box model behind predict.Backend to
// the uniform tool contract. The declared parameters double as the
// validation schema and as routing signals.
type PredictionTool struct {
	info    ToolInfo
	backend predict.Backend
	model   string
}

func (t *PredictionTool) GetInfo() ToolInfo      { return t.info }
func (t *PredictionTool) GetName() string        { return t.info.Name }
func (t *PredictionTool) GetDescription() string { return t.info.Description }

func (t *PredictionTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	input := make(map[string]any, len(t.info.Parameters))
	for _, p := range t.info.Parameters {
		if v, ok := args[p.Name]; ok {
			input[p.Name] = v
		} else if p.Default != nil {
			input[p.Name] = p.Default
		}
	}

	result, err := t.backend.Predict(ctx, t.model, input)
	if err != nil {
		return predictionFailure(t.info.Name, err), err
	}

	return OK(t.info.Name, predictionOutput(result)), nil
}

func predictionFailure(name string, err error) ToolResult {
	switch {
	case errors.Is(err, predict.ErrRejected):
		return Fail(name, ErrBackendRejected, "%s", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return Fail(name, ErrTimeout, "%s", err.Error())
	default:
		return Fail(name, ErrBackendUnavailable, "%s", err.Error())
	}
}

func predictionOutput(result predict.Result) map[string]any {
	output := map[string]any{
		"prediction": result.Prediction,
		"confidence": result.Confidence,
		"summary":    summarizePrediction(result),
	}
	if len(result.Alternatives) > 0 {
		output["alternatives"] = result.Alternatives
	}
	if len(result.Recommendations) > 0 {
		output["recommendations"] = result.Recommendations
	}
	for k, v := range result.Extra {
		if _, taken := output[k]; !taken {
			output[k] = v
		}
	}
	return output
}

func summarizePrediction(result predict.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Predicted: %v (confidence %.2f)", result.Prediction, result.Confidence)
	if len(result.Recommendations) > 0 {
		sb.WriteString(". Recommendations: ")
		sb.WriteString(strings.Join(result.Recommendations, "; "))
	}
	return sb.String()
}

func NewYieldTool(backend predict.Backend) *PredictionTool {
	return &PredictionTool{
		backend: backend,
		model:   "yield",
		info: ToolInfo{
			Name:        "crop_yield_predictor",
			Description: "Predicts crop yield from crop, region, rainfall, fertilizer use, and area",
			Category:    CategoryPrediction,
			Parameters: []ToolParameter{
				{Name: "crop", Type: "string", Description: "Crop name", Required: true},
				{Name: "region", Type: "string", Description: "Growing region"},
				{Name: "rainfall_mm", Type: "number", Description: "Seasonal rainfall", Min: Float64(0), Max: Float64(5000), Unit: "mm"},
				{Name: "fertilizer_kg", Type: "number", Description: "Fertilizer applied", Min: Float64(0), Max: Float64(1000), Unit: "kg"},
				{Name: "area_hectares", Type: "number", Description: "Cultivated area", Min: Float64(0.01), Max: Float64(10000), Unit: "hectares"},
			},
			Outputs: []ToolParameter{
				{Name: "prediction", Type: "number", Description: "Estimated yield in tonnes per hectare"},
				{Name: "recommendations", Type: "array", Description: "Agronomic suggestions"},
			},
			Keywords:          []string{"yield", "harvest", "production", "output", "tonnes", "produce"},
			Patterns:          []string{`predict.*yield`, `yield.*predict`, `how much.*(harvest|produce)`, `expected.*(yield|harvest)`},
			Units:             []string{"mm", "kg", "hectare", "hectares", "acre", "acres"},
			Priority:          30,
			TerminalOnSuccess: true,
		},
	}
}

func NewPestTool(backend predict.Backend) *PestTool {
	return &PestTool{
		backend: backend,
		model:   "pest",
		info: ToolInfo{
			Name:        "pest_detector",
			Description: "Identifies crop pests and diseases from a leaf or plant image",
			Category:    CategoryPrediction,
			Parameters: []ToolParameter{
				{Name: "top_k", Type: "integer", Description: "Number of ranked candidates", Default: 3, Min: Float64(1), Max: Float64(10)},
			},
			Outputs: []ToolParameter{
				{Name: "prediction", Type: "string", Description: "Most likely pest or disease"},
				{Name: "alternatives", Type: "array", Description: "Ranked runner-up labels"},
			},
			Keywords:          []string{"pest", "disease", "insect", "infestation", "fungus", "blight", "leaf"},
			Patterns:          []string{`(detect|identify).*(pest|disease)`, `what.*(pest|disease|insect)`, `leaf.*(spot|curl|blight)`},
			Priority:          35,
			TerminalOnSuccess: true,
			AcceptsImage:      true,
		},
	}
}

// PestTool is the image-based predictor. It reads the attached image
// from args rather than from declared parameters.
type PestTool struct {
	info    ToolInfo
	backend predict.Backend
	model   string
}

func (t *PestTool) GetInfo() ToolInfo      { return t.info }
func (t *PestTool) GetName() string        { return t.info.Name }
func (t *PestTool) GetDescription() string { return t.info.Description }

func (t *PestTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	image, err := imageBytes(args)
	if err != nil {
		result := Fail(t.info.Name, ErrInvalidInput, "%s", err.Error())
		return result, err
	}

	topK := GetInt(args, "top_k", 3)
	result, err := t.backend.PredictImage(ctx, t.model, image, topK)
	if err != nil {
		return predictionFailure(t.info.Name, err), err
	}

	return OK(t.info.Name, predictionOutput(result)), nil
}

func imageBytes(args map[string]any) ([]byte, error) {
	switch v := args["image"].(type) {
	case []byte:
		if len(v) == 0 {
			return nil, fmt.Errorf("missing required field %q", "image")
		}
		return v, nil
	case string:
		data, err := base64.StdEncoding.DecodeString(v)
		if err != nil || len(data) == 0 {
			return nil, fmt.Errorf("field %q must be raw bytes or base64", "image")
		}
		return data, nil
	}
	return nil, fmt.Errorf("missing required field %q", "image")
}

func NewSoilMoistureTool(backend predict.Backend) *PredictionTool {
	return &PredictionTool{
		backend: backend,
		model:   "soil_moisture",
		info: ToolInfo{
			Name:        "soil_moisture_predictor",
			Description: "Estimates soil moisture from temperature, humidity, and recent rainfall",
			Category:    CategoryPrediction,
			Parameters: []ToolParameter{
				{Name: "temperature_c", Type: "number", Description: "Air temperature", Required: true, Min: Float64(-20), Max: Float64(55), Unit: "°c"},
				{Name: "humidity_pct", Type: "number", Description: "Relative humidity", Required: true, Min: Float64(0), Max: Float64(100), Unit: "%"},
				{Name: "rainfall_mm", Type: "number", Description: "Recent rainfall", Min: Float64(0), Max: Float64(500), Unit: "mm"},
			},
			Keywords:          []string{"moisture", "soil", "irrigation", "water", "dry", "wet"},
			Patterns:          []string{`soil.*moisture`, `(need|should).*irrigat`, `how (dry|wet)`},
			Units:             []string{"mm", "%", "°c"},
			Priority:          25,
			TerminalOnSuccess: true,
		},
	}
}

func NewCropByNutrientsTool(backend predict.Backend) *PredictionTool {
	return &PredictionTool{
		backend: backend,
		model:   "crop_nutrients",
		info: ToolInfo{
			Name:        "crop_recommender_nutrients",
			Description: "Recommends a crop from soil nutrient levels (N, P, K) and pH",
			Category:    CategoryPrediction,
			Parameters: []ToolParameter{
				{Name: "nitrogen", Type: "number", Description: "Nitrogen content", Required: true, Min: Float64(0), Max: Float64(200), Unit: "kg/ha"},
				{Name: "phosphorus", Type: "number", Description: "Phosphorus content", Required: true, Min: Float64(0), Max: Float64(200), Unit: "kg/ha"},
				{Name: "potassium", Type: "number", Description: "Potassium content", Required: true, Min: Float64(0), Max: Float64(250), Unit: "kg/ha"},
				{Name: "ph", Type: "number", Description: "Soil pH", Min: Float64(0), Max: Float64(14)},
			},
			Keywords:          []string{"nitrogen", "phosphorus", "potassium", "npk", "nutrient", "ph", "grow"},
			Patterns:          []string{`(which|what) crop.*(grow|plant|suit)`, `crop.*recommend`, `npk`},
			Units:             []string{"kg/ha", "ph"},
			Priority:          20,
			TerminalOnSuccess: true,
		},
	}
}

func NewCropByClimateTool(backend predict.Backend) *PredictionTool {
	return &PredictionTool{
		backend: backend,
		model:   "crop_climate",
		info: ToolInfo{
			Name:        "crop_recommender_climate",
			Description: "Recommends a crop from temperature, humidity, and rainfall conditions",
			Category:    CategoryPrediction,
			Parameters: []ToolParameter{
				{Name: "temperature_c", Type: "number", Description: "Average temperature", Required: true, Min: Float64(-10), Max: Float64(55), Unit: "°c"},
				{Name: "humidity_pct", Type: "number", Description: "Average humidity", Required: true, Min: Float64(0), Max: Float64(100), Unit: "%"},
				{Name: "rainfall_mm", Type: "number", Description: "Seasonal rainfall", Required: true, Min: Float64(0), Max: Float64(5000), Unit: "mm"},
			},
			Keywords:          []string{"climate", "season", "suitable", "plant", "sow", "weather"},
			Patterns:          []string{`crop.*(climate|season|weather)`, `(plant|sow).*(this|which) (season|climate)`},
			Units:             []string{"mm", "%", "°c"},
			Priority:          18,
			TerminalOnSuccess: true,
		},
	}
}

func NewSoilFertilityTool(backend predict.Backend) *PredictionTool {
	return &PredictionTool{
		backend: backend,
		model:   "soil_fertility",
		info: ToolInfo{
			Name:        "soil_fertility_classifier",
			Description: "Classifies soil fertility from nutrient and composition measurements",
			Category:    CategoryPrediction,
			Parameters: []ToolParameter{
				{Name: "nitrogen", Type: "number", Description: "Nitrogen content", Required: true, Min: Float64(0), Max: Float64(200), Unit: "kg/ha"},
				{Name: "phosphorus", Type: "number", Description: "Phosphorus content", Required: true, Min: Float64(0), Max: Float64(200), Unit: "kg/ha"},
				{Name: "potassium", Type: "number", Description: "Potassium content", Required: true, Min: Float64(0), Max: Float64(250), Unit: "kg/ha"},
				{Name: "ph", Type: "number", Description: "Soil pH", Min: Float64(0), Max: Float64(14)},
				{Name: "organic_carbon_pct", Type: "number", Description: "Organic carbon", Min: Float64(0), Max: Float64(30), Unit: "%"},
			},
			Keywords:          []string{"fertility", "fertile", "soil", "quality", "health"},
			Patterns:          []string{`soil.*(fertility|fertile|quality|health)`, `how (good|fertile).*soil`},
			Units:             []string{"kg/ha", "ph", "%"},
			Priority:          15,
			TerminalOnSuccess: true,
		},
	}
}

var (
	_ Tool = (*PredictionTool)(nil)
	_ Tool = (*PestTool)(nil)
)
