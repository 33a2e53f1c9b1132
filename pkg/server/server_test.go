package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrosage/agrosage/pkg/agent"
	"github.com/agrosage/agrosage/pkg/auth"
	"github.com/agrosage/agrosage/pkg/embedder"
	"github.com/agrosage/agrosage/pkg/llms"
	"github.com/agrosage/agrosage/pkg/predict"
	"github.com/agrosage/agrosage/pkg/prompt"
	"github.com/agrosage/agrosage/pkg/router"
	"github.com/agrosage/agrosage/pkg/session"
	"github.com/agrosage/agrosage/pkg/tools"
	"github.com/agrosage/agrosage/pkg/vector"
	"github.com/agrosage/agrosage/pkg/weather"
)

type fakeLLM struct{}

func (fakeLLM) Generate(_ context.Context, _ llms.GenerateRequest) (llms.GenerateResponse, error) {
	return llms.GenerateResponse{Text: "Based on the observations, expect a strong harvest.", TokensUsed: 12}, nil
}

func (fakeLLM) GetModelName() string { return "fake" }

type fakeBackend struct{}

func (fakeBackend) Predict(_ context.Context, model string, _ map[string]any) (predict.Result, error) {
	return predict.Result{
		Prediction:      4.2,
		Confidence:      0.88,
		Recommendations: []string{"Apply nitrogen at tillering"},
	}, nil
}

func (fakeBackend) PredictImage(_ context.Context, _ string, _ []byte, topK int) (predict.Result, error) {
	return predict.Result{
		Prediction: "leaf blight",
		Confidence: 0.91,
		Alternatives: []predict.Alternative{
			{Label: "leaf blight", Confidence: 0.91},
			{Label: "rust", Confidence: 0.06},
		},
		Recommendations: []string{"Remove affected leaves"},
	}, nil
}

type fakeUpstream struct {
	calls atomic.Int32
}

func (f *fakeUpstream) Fetch(_ context.Context, loc weather.Location, days int) (weather.Snapshot, error) {
	f.calls.Add(1)
	forecast := make([]weather.DailyForecast, days)
	for i := range forecast {
		forecast[i] = weather.DailyForecast{Date: fmt.Sprintf("2025-06-%02d", i+1), TempMaxC: 31, RainfallMm: 4}
	}
	return weather.Snapshot{
		Lat:      loc.Lat,
		Lon:      loc.Lon,
		Current:  weather.Current{TemperatureC: 29, HumidityPct: 60},
		Forecast: forecast,
	}, nil
}

type echoTranslator struct{}

func (echoTranslator) GetName() string        { return "translator" }
func (echoTranslator) GetDescription() string { return "test translator" }

func (echoTranslator) GetInfo() tools.ToolInfo {
	return tools.ToolInfo{
		Name:              "translator",
		Category:          tools.CategoryTranslation,
		Priority:          50,
		TerminalOnSuccess: true,
	}
}

func (echoTranslator) Execute(_ context.Context, args map[string]any) (tools.ToolResult, error) {
	text := tools.GetString(args, "text", "")
	target := tools.GetString(args, "target_lang", "")
	return tools.OK("translator", map[string]any{
		"translated_text":      "[" + target + "] " + text,
		"detected_source_lang": "en",
	}), nil
}

type testEnv struct {
	server   *Server
	auth     *auth.Service
	upstream *fakeUpstream
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	issuer, err := auth.NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	authSvc := auth.NewService(auth.NewMemoryUserStore(), issuer)
	_, err = authSvc.EnsureSuperAdmin(ctx, "root@x.com", "Abcdef12")
	require.NoError(t, err)

	emb := embedder.NewHashEmbedder(64)
	store, err := vector.NewChromemProvider(vector.ChromemConfig{})
	require.NoError(t, err)
	for i, doc := range []string{
		"Crop rotation is the practice of growing different crops in sequence on the same land to preserve soil nutrients.",
		"Organic farming avoids synthetic fertilizers and relies on compost and biological pest control.",
	} {
		vec, err := emb.Embed(ctx, doc)
		require.NoError(t, err)
		require.NoError(t, store.Upsert(ctx, "knowledge", fmt.Sprintf("doc-%d", i), vec, map[string]any{
			"content": doc,
			"source":  "test-corpus",
		}))
	}

	reg := tools.NewToolRegistry()
	backend := fakeBackend{}
	require.NoError(t, reg.RegisterTool(echoTranslator{}))
	require.NoError(t, reg.RegisterTool(tools.NewPestTool(backend), tools.WithExtractor(tools.PestExtractor)))
	require.NoError(t, reg.RegisterTool(tools.NewYieldTool(backend), tools.WithExtractor(tools.YieldExtractor)))
	require.NoError(t, reg.RegisterTool(tools.NewRetrievalTool(emb, store, "knowledge"), tools.WithExtractor(tools.RetrievalExtractor)))
	require.NoError(t, reg.RegisterTool(tools.NewGenerateTool(fakeLLM{}), tools.WithExtractor(tools.GenerateExtractor)))

	rt, err := router.New(reg)
	require.NoError(t, err)

	formatter := prompt.NewFormatter(nil)
	ag := agent.New(reg, rt, formatter, agent.Config{})

	gazetteer, err := weather.LoadGazetteer()
	require.NoError(t, err)
	upstream := &fakeUpstream{}
	weatherSvc := weather.NewService(gazetteer, upstream, weather.ServiceConfig{})

	srv := New(Config{MaxImageBytes: 1 << 20}, Dependencies{
		Auth:      authSvc,
		Agent:     ag,
		Registry:  reg,
		Weather:   weatherSvc,
		Sessions:  session.NewMemoryStore(),
		Formatter: formatter,
	})

	return &testEnv{server: srv, auth: authSvc, upstream: upstream}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) userToken(t *testing.T, email string) string {
	t.Helper()
	ctx := context.Background()
	_, err := e.auth.Register(ctx, email, "Abcdef12", "Test User")
	require.NoError(t, err)
	token, _, err := e.auth.Authenticate(ctx, email, "Abcdef12")
	require.NoError(t, err)
	return token
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	token, _, err := e.auth.Authenticate(context.Background(), "root@x.com", "Abcdef12")
	require.NoError(t, err)
	return token
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestAuthHappyPath(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"email": "a@x.com", "password": "Abcdef12", "full_name": "A",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var registered tokenResponse
	decodeBody(t, rec, &registered)
	assert.Equal(t, auth.RoleUser, registered.User.Role)
	assert.True(t, registered.User.IsActive)
	assert.NotEmpty(t, registered.Token)

	rec = env.do(t, http.MethodPost, "/auth/login", "", map[string]any{
		"email": "a@x.com", "password": "Abcdef12",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var loggedIn tokenResponse
	decodeBody(t, rec, &loggedIn)

	rec = env.do(t, http.MethodGet, "/auth/me", loggedIn.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var me auth.User
	decodeBody(t, rec, &me)
	assert.Equal(t, registered.User.ID, me.ID)
}

func TestRegisterRejectsWeakPasswordAndDuplicates(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"email": "a@x.com", "password": "short", "full_name": "A",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"email": "a@x.com", "password": "Abcdef12", "full_name": "A",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"email": "A@X.com", "password": "Abcdef12", "full_name": "B",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/ask", "/agent", "/rag", "/weather", "/conversations/list"} {
		rec := env.do(t, http.MethodPost, path, "", map[string]any{"query": "q"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestAskYieldQuery(t *testing.T) {
	env := newTestEnv(t)
	token := env.userToken(t, "farmer@x.com")

	rec := env.do(t, http.MethodPost, "/ask", token, map[string]any{
		"query": "Predict wheat yield in Punjab with 800mm rainfall, 120 kg fertilizer, 2 hectares",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp askResponse
	decodeBody(t, rec, &resp)
	assert.GreaterOrEqual(t, resp.Confidence, router.DirectExecute)
	assert.Contains(t, resp.ToolsUsed, "crop_yield_predictor")
	assert.Contains(t, resp.Answer, "crop_yield_predictor")
}

func TestAskDebugModeIncludesTrace(t *testing.T) {
	env := newTestEnv(t)
	token := env.userToken(t, "farmer@x.com")

	rec := env.do(t, http.MethodPost, "/ask", token, map[string]any{
		"query": "What is crop rotation?",
		"mode":  "debug",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp askResponse
	decodeBody(t, rec, &resp)
	require.NotNil(t, resp.Trace)
	assert.NotEmpty(t, resp.Trace.Steps)
	assert.Contains(t, resp.ToolsUsed, "knowledge_search")
}

func TestAskRejectsEmptyQuery(t *testing.T) {
	env := newTestEnv(t)
	token := env.userToken(t, "farmer@x.com")

	rec := env.do(t, http.MethodPost, "/ask", token, map[string]any{"query": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAgentPersistsConversation(t *testing.T) {
	env := newTestEnv(t)
	token := env.userToken(t, "farmer@x.com")

	rec := env.do(t, http.MethodPost, "/agent", token, map[string]any{
		"query": "Predict wheat yield with 800mm rainfall",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp agentResponse
	decodeBody(t, rec, &resp)
	require.NotEmpty(t, resp.SessionID)
	assert.NotEmpty(t, resp.Answer)

	rec = env.do(t, http.MethodPost, "/conversations/get", token, map[string]any{
		"session_id": resp.SessionID,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Conversation session.Session `json:"conversation"`
	}
	decodeBody(t, rec, &got)
	require.Len(t, got.Conversation.Messages, 2)
	assert.Equal(t, session.RoleUser, got.Conversation.Messages[0].Role)
	assert.Equal(t, session.RoleAssistant, got.Conversation.Messages[1].Role)
	assert.NotEmpty(t, got.Conversation.Messages[1].Metadata.ToolsUsed)
}

func TestRAGReturnsDocuments(t *testing.T) {
	env := newTestEnv(t)
	token := env.userToken(t, "farmer@x.com")

	rec := env.do(t, http.MethodPost, "/rag", token, map[string]any{
		"query": "What is crop rotation?", "top_k": 2,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Documents []map[string]any `json:"documents"`
		Count     int              `json:"count"`
	}
	decodeBody(t, rec, &resp)
	assert.NotEmpty(t, resp.Documents)
	assert.Equal(t, len(resp.Documents), resp.Count)
}

func TestPredictYieldDirect(t *testing.T) {
	env := newTestEnv(t)
	token := env.userToken(t, "farmer@x.com")

	rec := env.do(t, http.MethodPost, "/predict_yield", token, map[string]any{
		"crop": "wheat", "rainfall_mm": 800.0,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out map[string]any
	decodeBody(t, rec, &out)
	assert.Equal(t, 4.2, out["prediction"])

	rec = env.do(t, http.MethodPost, "/predict_yield", token, map[string]any{
		"rainfall_mm": 800.0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTranslateEndpoint(t *testing.T) {
	env := newTestEnv(t)
	token := env.userToken(t, "farmer@x.com")

	rec := env.do(t, http.MethodPost, "/translate", token, map[string]any{
		"text": "hello", "target_lang": "hi",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	decodeBody(t, rec, &resp)
	assert.Equal(t, "[hi] hello", resp["translated_text"])
}

func pestUpload(t *testing.T, env *testEnv, token string, payload []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "leaf.png")
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/detect_pest", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestDetectPest(t *testing.T) {
	env := newTestEnv(t)
	token := env.userToken(t, "farmer@x.com")

	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
	rec := pestUpload(t, env, token, png)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		TopPrediction map[string]any `json:"top_prediction"`
		AgentAnalysis string         `json:"agent_analysis"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, "leaf blight", resp.TopPrediction["label"])
	assert.NotEmpty(t, resp.AgentAnalysis)
}

func TestDetectPestRejectsNonImage(t *testing.T) {
	env := newTestEnv(t)
	token := env.userToken(t, "farmer@x.com")

	rec := pestUpload(t, env, token, []byte("just some text, not an image"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWeatherEndpoint(t *testing.T) {
	env := newTestEnv(t)
	token := env.userToken(t, "farmer@x.com")

	rec := env.do(t, http.MethodPost, "/weather", token, map[string]any{
		"location": "Punjab", "days": 3,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := rec.Body.String()

	rec = env.do(t, http.MethodPost, "/weather", token, map[string]any{
		"location": "Punjab", "days": 3,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first, rec.Body.String())
	assert.Equal(t, int32(1), env.upstream.calls.Load())
}

func TestWeatherValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.userToken(t, "farmer@x.com")

	for _, days := range []int{0, 17, -1} {
		rec := env.do(t, http.MethodPost, "/weather", token, map[string]any{
			"location": "Punjab", "days": days,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "days=%d", days)
	}

	rec := env.do(t, http.MethodPost, "/weather", token, map[string]any{
		"location": "Atlantis",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body errorBody
	decodeBody(t, rec, &body)
	assert.Len(t, body.Suggestions, 3)
}

func TestWeatherLocationsIsPublic(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/weather/locations", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var locations []weather.Location
	decodeBody(t, rec, &locations)
	assert.NotEmpty(t, locations)
}

func TestAdminRoutes(t *testing.T) {
	env := newTestEnv(t)
	userToken := env.userToken(t, "plain@x.com")
	adminToken := env.adminToken(t)

	rec := env.do(t, http.MethodGet, "/auth/users", userToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/auth/users", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var users []auth.User
	decodeBody(t, rec, &users)
	require.NotEmpty(t, users)

	var target string
	for _, u := range users {
		if u.Email == "plain@x.com" {
			target = u.ID
		}
	}
	require.NotEmpty(t, target)

	rec = env.do(t, http.MethodPost, "/auth/users/"+target+"/manage", adminToken, map[string]any{
		"op": "grant_admin",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var promoted auth.User
	decodeBody(t, rec, &promoted)
	assert.Equal(t, auth.RoleAdmin, promoted.Role)

	rec = env.do(t, http.MethodPost, "/weather/cache/clear", userToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/weather/cache/clear", adminToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConversationLifecycle(t *testing.T) {
	env := newTestEnv(t)
	token := env.userToken(t, "farmer@x.com")

	rec := env.do(t, http.MethodPost, "/conversations/save", token, map[string]any{
		"messages": []map[string]any{
			{"id": "m1", "role": "user", "text": "How do I improve soil health?"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var saved struct {
		SessionID string `json:"session_id"`
	}
	decodeBody(t, rec, &saved)
	require.NotEmpty(t, saved.SessionID)

	rec = env.do(t, http.MethodPost, "/conversations/list", token, map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code)

	var listed struct {
		Conversations []session.Summary `json:"conversations"`
	}
	decodeBody(t, rec, &listed)
	require.Len(t, listed.Conversations, 1)
	assert.Equal(t, "How do I improve soil health?", listed.Conversations[0].Title)

	rec = env.do(t, http.MethodPost, "/conversations/delete", token, map[string]any{
		"session_id": saved.SessionID,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/conversations/get", token, map[string]any{
		"session_id": saved.SessionID,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var health struct {
		Status     string         `json:"status"`
		Components map[string]any `json:"components"`
	}
	decodeBody(t, rec, &health)
	assert.Equal(t, "ok", health.Status)
	assert.NotEmpty(t, health.Components)
}
