package predict

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPBackendPredict(t *testing.T) {
	var gotPath string
	var gotInput map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotInput))
		json.NewEncoder(w).Encode(Result{
			Prediction: 4.2,
			Confidence: 0.88,
			Alternatives: []Alternative{
				{Label: "3.9", Confidence: 0.07},
			},
			Recommendations: []string{"Apply nitrogen before sowing"},
		})
	}))
	defer srv.Close()

	backend, err := NewHTTPBackend(HTTPBackendConfig{Host: srv.URL})
	require.NoError(t, err)

	result, err := backend.Predict(context.Background(), "yield", map[string]any{
		"crop":     "wheat",
		"rainfall": 800,
	})
	require.NoError(t, err)

	assert.Equal(t, "/predict/yield", gotPath)
	assert.Equal(t, "wheat", gotInput["crop"])
	assert.Equal(t, 4.2, result.Prediction)
	assert.Equal(t, 0.88, result.Confidence)
	assert.Len(t, result.Alternatives, 1)
}

func TestHTTPBackendPredictImage(t *testing.T) {
	image := []byte{0x89, 0x50, 0x4e, 0x47}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, base64.StdEncoding.EncodeToString(image), body["image_base64"])
		assert.Equal(t, float64(3), body["top_k"])
		json.NewEncoder(w).Encode(Result{Prediction: "leaf blight", Confidence: 0.91})
	}))
	defer srv.Close()

	backend, err := NewHTTPBackend(HTTPBackendConfig{Host: srv.URL})
	require.NoError(t, err)

	result, err := backend.PredictImage(context.Background(), "pest", image, 3)
	require.NoError(t, err)
	assert.Equal(t, "leaf blight", result.Prediction)
}

func TestHTTPBackendRejectedInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rainfall out of range"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	backend, err := NewHTTPBackend(HTTPBackendConfig{Host: srv.URL})
	require.NoError(t, err)

	_, err = backend.Predict(context.Background(), "yield", map[string]any{"rainfall": -1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "rainfall out of range")
}

func TestHTTPBackendUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	backend, err := NewHTTPBackend(HTTPBackendConfig{Host: srv.URL})
	require.NoError(t, err)

	_, err = backend.Predict(context.Background(), "yield", map[string]any{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPBackendRequiresHost(t *testing.T) {
	_, err := NewHTTPBackend(HTTPBackendConfig{})
	require.Error(t, err)
}
