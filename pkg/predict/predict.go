// Package predict fronts the structured prediction models (yield, pest,
// soil moisture, crop recommendation, fertility). Every model is a
// black box reachable over HTTP; this package only carries the
// request/response contract.
package predict

import (
	"context"
	"errors"
)

// Alternative is a ranked runner-up prediction.
type Alternative struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Result is the uniform prediction payload. Prediction holds the
// primary output, numeric or categorical depending on the model.
type Result struct {
	Prediction      any            `json:"prediction"`
	Confidence      float64        `json:"confidence"`
	Alternatives    []Alternative  `json:"alternatives,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`
}

// Backend failures the tool adapter maps onto error kinds.
var (
	ErrUnavailable = errors.New("prediction backend unavailable")
	ErrRejected    = errors.New("prediction backend rejected input")
)

// Backend serves one or more named models.
type Backend interface {
	// Predict runs the named model on a structured input map.
	Predict(ctx context.Context, model string, input map[string]any) (Result, error)

	// PredictImage runs an image classifier on raw image bytes.
	PredictImage(ctx context.Context, model string, image []byte, topK int) (Result, error)
}
