package server

import (
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agrosage/agrosage/pkg/agent"
	"github.com/agrosage/agrosage/pkg/auth"
	"github.com/agrosage/agrosage/pkg/session"
	"github.com/agrosage/agrosage/pkg/tools"
)

type askRequest struct {
	Query string `json:"query"`
	Mode  string `json:"mode"`
}

type askResponse struct {
	Answer      string       `json:"answer"`
	ToolsUsed   []string     `json:"tools_used"`
	Confidence  float64      `json:"confidence"`
	ExecutionMs int64        `json:"execution_ms"`
	Truncated   bool         `json:"truncated,omitempty"`
	Trace       *agent.Trace `json:"trace,omitempty"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, r, http.StatusBadRequest, "query is required")
		return
	}

	resp := s.agent.Run(r.Context(), agent.Request{Query: req.Query})

	out := askResponse{
		Answer:      resp.Answer,
		ToolsUsed:   resp.ToolsUsed,
		Confidence:  resp.Confidence,
		ExecutionMs: resp.ExecutionMs,
		Truncated:   resp.Truncated,
	}
	if req.Mode == "debug" {
		out.Trace = &resp.Trace
	}
	writeJSON(w, statusForKind(resp.ErrorKind), out)
}

type agentRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
	Language  string `json:"language"`
	Image     string `json:"image"`
}

type agentResponse struct {
	Answer      string   `json:"answer"`
	ToolsUsed   []string `json:"tools_used"`
	SessionID   string   `json:"session_id"`
	Confidence  float64  `json:"confidence"`
	ExecutionMs int64    `json:"execution_ms"`
	Truncated   bool     `json:"truncated,omitempty"`
	Language    string   `json:"language,omitempty"`
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, r, http.StatusBadRequest, "query is required")
		return
	}

	var image []byte
	if req.Image != "" {
		data, err := base64.StdEncoding.DecodeString(req.Image)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "image must be base64-encoded")
			return
		}
		image = data
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	ctx := r.Context()
	query, detectedLang, err := s.formatter.WrapInput(ctx, req.Query, req.Language)
	if err != nil {
		slog.Warn("Input translation failed, continuing with original text", "error", err)
	}

	resp := s.agent.Run(ctx, agent.Request{Query: query, Image: image})

	answer := resp.Answer
	if translated, err := s.formatter.WrapOutput(ctx, answer, req.Language); err != nil {
		slog.Warn("Output translation failed, returning untranslated answer", "error", err)
	} else {
		answer = translated
	}

	s.persistExchange(r, sessionID, req, answer, detectedLang, resp)

	writeJSON(w, statusForKind(resp.ErrorKind), agentResponse{
		Answer:      answer,
		ToolsUsed:   resp.ToolsUsed,
		SessionID:   sessionID,
		Confidence:  resp.Confidence,
		ExecutionMs: resp.ExecutionMs,
		Truncated:   resp.Truncated,
		Language:    req.Language,
	})
}

// persistExchange appends the user/assistant message pair. Store
// failures are logged, never surfaced: the answer already exists.
func (s *Server) persistExchange(r *http.Request, sessionID string, req agentRequest, answer, detectedLang string, resp agent.Response) {
	claims := auth.GetClaims(r)
	if claims == nil || s.sessions == nil {
		return
	}
	ctx := r.Context()
	now := time.Now().UTC()

	userMsg := session.Message{
		ID:        uuid.NewString(),
		Role:      session.RoleUser,
		Text:      req.Query,
		Timestamp: now,
	}
	if len(req.Image) > 0 {
		userMsg.Attachments = []session.Attachment{{
			Name:        "image",
			ContentType: "image",
			Size:        int64(len(req.Image)),
		}}
	}
	if err := s.sessions.Append(ctx, claims.Subject, sessionID, userMsg); err != nil {
		slog.Warn("Failed to persist user message", "session", sessionID, "error", err)
		return
	}

	assistantMsg := session.Message{
		ID:   uuid.NewString(),
		Role: session.RoleAssistant,
		Text: answer,
		Metadata: session.Metadata{
			ToolsUsed:      resp.ToolsUsed,
			Confidence:     resp.Confidence,
			ExecutionMs:    resp.ExecutionMs,
			TranslatedFrom: detectedLang,
			TranslatedTo:   req.Language,
			Truncated:      resp.Truncated,
		},
		Timestamp: now,
	}
	if err := s.sessions.Append(ctx, claims.Subject, sessionID, assistantMsg); err != nil {
		slog.Warn("Failed to persist assistant message", "session", sessionID, "error", err)
	}
}

type ragRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

func (s *Server) handleRAG(w http.ResponseWriter, r *http.Request) {
	var req ragRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, r, http.StatusBadRequest, "query is required")
		return
	}

	args := map[string]any{"query": req.Query}
	if req.TopK > 0 {
		args["top_k"] = req.TopK
	}

	result, _ := s.registry.ExecuteTool(r.Context(), "knowledge_search", args)
	if !result.Success {
		writeError(w, r, statusForKind(result.ErrorKind), result.Error)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"documents": result.Output["documents"],
		"count":     result.Output["count"],
	})
}

func (s *Server) handlePredictYield(w http.ResponseWriter, r *http.Request) {
	var args map[string]any
	if !decodeJSON(w, r, &args) {
		return
	}

	result, _ := s.registry.ExecuteTool(r.Context(), "crop_yield_predictor", args)
	if !result.Success {
		writeError(w, r, statusForKind(result.ErrorKind), result.Error)
		return
	}
	writeJSON(w, http.StatusOK, result.Output)
}

func (s *Server) handleDetectPest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxImageBytes)

	if err := r.ParseMultipartForm(s.config.MaxImageBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "image exceeds the size limit")
			return
		}
		writeError(w, r, http.StatusBadRequest, "expected multipart form with a file field")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "failed to read file")
		return
	}
	if !strings.HasPrefix(http.DetectContentType(image), "image/") {
		writeError(w, r, http.StatusBadRequest, "file must be an image")
		return
	}

	args := map[string]any{"image": image}
	if v := r.FormValue("top_k"); v != "" {
		if topK, err := strconv.Atoi(v); err == nil {
			args["top_k"] = topK
		}
	}

	result, _ := s.registry.ExecuteTool(r.Context(), "pest_detector", args)
	if !result.Success {
		writeError(w, r, statusForKind(result.ErrorKind), result.Error)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"top_prediction": map[string]any{
			"label":      result.Output["prediction"],
			"confidence": result.Output["confidence"],
		},
		"all_predictions": result.Output["alternatives"],
		"recommendations": result.Output["recommendations"],
		"agent_analysis":  s.pestAnalysis(r, result),
	})
}

// pestAnalysis always runs the synthesizer over the detection result,
// falling back to the adapter summary when generation is unavailable.
func (s *Server) pestAnalysis(r *http.Request, detection tools.ToolResult) string {
	fallback := tools.GetString(detection.Output, "summary", "")

	gen, ok := s.registry.FindByCategory(tools.CategoryGeneration)
	if !ok {
		return fallback
	}

	system, promptText := s.formatter.SynthesisPrompt(
		"What does this pest detection mean for my crop and what should I do?",
		[]tools.ToolResult{detection})

	result, _ := s.registry.ExecuteTool(r.Context(), gen.GetName(), map[string]any{
		"prompt": promptText,
		"system": system,
	})
	if !result.Success {
		return fallback
	}
	return tools.GetString(result.Output, "text", fallback)
}

type translateRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	args := map[string]any{
		"text":        req.Text,
		"target_lang": req.TargetLang,
	}
	if req.SourceLang != "" {
		args["source_lang"] = req.SourceLang
	}

	result, _ := s.registry.ExecuteTool(r.Context(), "translator", args)
	if !result.Success {
		writeError(w, r, statusForKind(result.ErrorKind), result.Error)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"translated_text":      result.Output["translated_text"],
		"detected_source_lang": result.Output["detected_source_lang"],
	})
}
