// Package agent runs the bounded Thought/Action/Observation loop over
// the tool registry and synthesizes the final answer.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/agrosage/agrosage/pkg/observability"
	"github.com/agrosage/agrosage/pkg/prompt"
	"github.com/agrosage/agrosage/pkg/router"
	"github.com/agrosage/agrosage/pkg/tools"
)

const (
	DefaultMaxIterations = 5
	DefaultDeadline      = 60 * time.Second

	unableToProcessMsg = "I was unable to process your question due to an internal problem. Please try again."
	deadlineMsg        = "I could not finish answering within the time limit. Please try a simpler question."
)

// Step is one Thought/Action/Observation record in a trace.
type Step struct {
	Iteration   int               `json:"iteration"`
	Thought     string            `json:"thought"`
	Action      string            `json:"action,omitempty"`
	ActionInput map[string]any    `json:"action_input,omitempty"`
	Observation *tools.ToolResult `json:"observation,omitempty"`
	Terminal    bool              `json:"terminal"`
}

// Trace is the ordered step record of one request. It never outlives
// the request; callers summarize it into a session message.
type Trace struct {
	Steps     []Step `json:"steps"`
	Truncated bool   `json:"truncated"`
}

type Request struct {
	Query string
	Image []byte
}

type Response struct {
	Answer      string          `json:"answer"`
	ToolsUsed   []string        `json:"tools_used"`
	Confidence  float64         `json:"confidence"`
	Truncated   bool            `json:"truncated,omitempty"`
	Decision    router.Decision `json:"routing,omitempty"`
	Trace       Trace           `json:"trace,omitempty"`
	ExecutionMs int64           `json:"execution_ms"`

	// ErrorKind is set when the answer is an apology rather than a real
	// result; the HTTP layer maps it to a status code.
	ErrorKind tools.ErrorKind `json:"error_kind,omitempty"`
}

type Config struct {
	MaxIterations int
	Deadline      time.Duration
}

func (c *Config) SetDefaults() {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.Deadline <= 0 {
		c.Deadline = DefaultDeadline
	}
}

// Agent wires the router, the registry, and the formatter into the
// ReAct state machine. Concurrent Run calls share no mutable state.
type Agent struct {
	registry  *tools.ToolRegistry
	router    *router.Router
	formatter *prompt.Formatter
	config    Config
}

func New(registry *tools.ToolRegistry, rt *router.Router, formatter *prompt.Formatter, cfg Config) *Agent {
	cfg.SetDefaults()
	return &Agent{
		registry:  registry,
		router:    rt,
		formatter: formatter,
		config:    cfg,
	}
}

// run-local loop state, owned by a single Run call.
type traceState struct {
	steps        []Step
	observations []tools.ToolResult
	failures     map[string]int
	retried      bool
	truncated    bool
}

// Run answers one query. The trace has at most MaxIterations steps and
// exactly one terminal step.
func (a *Agent) Run(ctx context.Context, req Request) Response {
	startTime := time.Now()

	tracer := observability.GetTracer("agrosage.agent")
	ctx, span := tracer.Start(ctx, observability.SpanAgentRun)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, a.config.Deadline)
	defer cancel()

	decision := a.router.Route(router.Query{Text: req.Query, HasImage: len(req.Image) > 0})
	span.SetAttributes(
		attribute.String("agent.chosen_tool", decision.ChosenTool),
		attribute.Float64("agent.confidence", decision.Confidence),
	)
	slog.Debug("Routed query",
		"tool", decision.ChosenTool, "confidence", decision.Confidence, "rationale", decision.Rationale)

	st := &traceState{failures: make(map[string]int)}
	resp := a.runLoop(ctx, req, decision, st)

	resp.Decision = decision
	resp.Confidence = decision.Confidence
	resp.Trace = Trace{Steps: st.steps, Truncated: st.truncated}
	resp.Truncated = st.truncated
	resp.ToolsUsed = toolsUsed(st.observations)
	resp.ExecutionMs = time.Since(startTime).Milliseconds()

	if resp.ErrorKind != "" {
		span.SetStatus(codes.Error, string(resp.ErrorKind))
	} else {
		span.SetStatus(codes.Ok, "success")
	}
	return resp
}

func (a *Agent) runLoop(ctx context.Context, req Request, decision router.Decision, st *traceState) Response {
	action := decision.ChosenTool
	alternatives := decision.Alternatives

	// Direct execution: high confidence on a self-sufficient tool means
	// a synthetic single-step plan with no intermediate planning.
	direct := decision.Confidence >= router.DirectExecute && a.terminalOnSuccess(action)

loop:
	for len(st.steps) < a.config.MaxIterations-1 {
		if ctx.Err() != nil {
			st.truncated = true
			break
		}

		thought := a.thought(direct, action, decision)
		input := a.actionInput(action, req, st.observations)
		observation := a.act(ctx, action, input)

		st.steps = append(st.steps, Step{
			Iteration:   len(st.steps) + 1,
			Thought:     thought,
			Action:      action,
			ActionInput: input,
			Observation: &observation,
		})
		st.observations = append(st.observations, observation)

		if !observation.Success {
			switch {
			case observation.ErrorKind == tools.ErrInvalidInput:
				// Not retryable; ask the user instead of guessing.
				return a.clarify(st, observation)
			case observation.ErrorKind == tools.ErrInternal:
				return a.abort(st, observation)
			case observation.ErrorKind.Transient():
				st.failures[action]++
				if st.failures[action] >= 2 {
					break loop
				}
				if next, ok := nextAlternative(&alternatives); ok && !st.retried {
					st.retried = true
					action = next
					continue
				}
				// No alternative left: synthesis proceeds on whatever is
				// available.
				break loop
			default:
				// backend-rejected: retrying the same input cannot help.
				break loop
			}
		}

		if !a.needsMore(req.Query, st.observations) {
			break
		}

		// Terminal tools answered; anything else funnels into generation
		// for the next step.
		action = a.nextAction(st.observations, decision)
	}

	if ctx.Err() != nil {
		st.truncated = true
	}
	if len(st.steps) == a.config.MaxIterations-1 && a.needsMore(req.Query, st.observations) {
		st.truncated = true
	}

	return a.synthesize(ctx, req.Query, st)
}

func (a *Agent) thought(direct bool, action string, decision router.Decision) string {
	if direct {
		return fmt.Sprintf("Routing confidence %.2f permits direct execution of %s.", decision.Confidence, action)
	}
	return fmt.Sprintf("Next action: %s.", action)
}

func (a *Agent) terminalOnSuccess(toolName string) bool {
	tool, err := a.registry.GetTool(toolName)
	if err != nil {
		return false
	}
	return tool.GetInfo().TerminalOnSuccess
}

func (a *Agent) actionInput(action string, req Request, prior []tools.ToolResult) map[string]any {
	input := map[string]any{}
	if extractor := a.registry.GetExtractor(action); extractor != nil {
		input = extractor(req.Query, prior)
	}

	if len(req.Image) > 0 {
		if tool, err := a.registry.GetTool(action); err == nil && tool.GetInfo().AcceptsImage {
			input["image"] = req.Image
		}
	}
	return input
}

func (a *Agent) act(ctx context.Context, action string, input map[string]any) tools.ToolResult {
	result, _ := a.registry.ExecuteTool(ctx, action, input)
	return result
}

// needsMore decides whether the loop keeps planning after an
// observation. Followup-shaped needs (raw retrieval, observations with
// no primary content) are satisfied by the mandatory synthesis step
// that follows the loop, so only explicit composition in the query
// keeps the loop iterating.
func (a *Agent) needsMore(query string, observations []tools.ToolResult) bool {
	if len(observations) == 0 {
		return true
	}
	return asksComposition(query)
}

func (a *Agent) nextAction(observations []tools.ToolResult, decision router.Decision) string {
	// Followup work is synthesis-shaped: run the generator over what we
	// have so far.
	if gen, ok := a.registry.FindByCategory(tools.CategoryGeneration); ok {
		return gen.GetName()
	}
	return decision.ChosenTool
}

func nextAlternative(alternatives *[]router.Alternative) (string, bool) {
	if len(*alternatives) == 0 {
		return "", false
	}
	next := (*alternatives)[0]
	*alternatives = (*alternatives)[1:]
	return next.Tool, true
}

// synthesize runs the generation tool once over the ordered
// observations and closes the trace with the terminal step.
func (a *Agent) synthesize(ctx context.Context, query string, st *traceState) Response {
	gen, ok := a.registry.FindByCategory(tools.CategoryGeneration)
	if !ok {
		return a.canned(st, unableToProcessMsg, tools.ErrInternal)
	}

	system, promptText := a.formatter.SynthesisPrompt(query, st.observations)
	input := map[string]any{
		"prompt": promptText,
		"system": system,
	}

	observation := a.act(ctx, gen.GetName(), input)

	st.steps = append(st.steps, Step{
		Iteration:   len(st.steps) + 1,
		Thought:     "Synthesizing the final answer from the collected observations.",
		Action:      gen.GetName(),
		ActionInput: map[string]any{"prompt": truncateForTrace(promptText)},
		Observation: &observation,
		Terminal:    true,
	})

	if !observation.Success {
		if ctx.Err() != nil {
			st.truncated = true
			// Partial answer beats a canned apology when one exists.
			if content := firstContent(st.observations); content != "" {
				return Response{
					Answer:    a.formatter.UserSurface(content, st.observations),
					ErrorKind: tools.ErrTimeout,
				}
			}
			return Response{Answer: deadlineMsg, ErrorKind: tools.ErrTimeout}
		}
		if content := firstContent(st.observations); content != "" {
			return Response{Answer: a.formatter.UserSurface(content, st.observations)}
		}
		return Response{Answer: unableToProcessMsg, ErrorKind: tools.ErrBackendUnavailable}
	}

	st.observations = append(st.observations, observation)
	generated := tools.GetString(observation.Output, "text", "")
	return Response{Answer: a.formatter.UserSurface(generated, st.observations[:len(st.observations)-1])}
}

// clarify closes the trace with a question back to the user. The
// offending field is named by the validation message.
func (a *Agent) clarify(st *traceState, observation tools.ToolResult) Response {
	a.markTerminal(st)
	return Response{
		Answer: fmt.Sprintf("I need a bit more information to answer that: %s.", observation.Error),
	}
}

func (a *Agent) abort(st *traceState, observation tools.ToolResult) Response {
	a.markTerminal(st)
	slog.Error("Trace aborted on internal tool failure",
		"tool", observation.ToolName, "error", observation.Error)
	return Response{Answer: unableToProcessMsg, ErrorKind: tools.ErrInternal}
}

// canned closes the trace and returns a fixed apology with the given
// error kind.
func (a *Agent) canned(st *traceState, msg string, kind tools.ErrorKind) Response {
	a.markTerminal(st)
	return Response{Answer: msg, ErrorKind: kind}
}

func (a *Agent) markTerminal(st *traceState) {
	if len(st.steps) > 0 {
		st.steps[len(st.steps)-1].Terminal = true
	}
}

func toolsUsed(observations []tools.ToolResult) []string {
	var used []string
	seen := map[string]bool{}
	for _, obs := range observations {
		if obs.ToolName != "" && !seen[obs.ToolName] {
			seen[obs.ToolName] = true
			used = append(used, obs.ToolName)
		}
	}
	return used
}

func firstContent(observations []tools.ToolResult) string {
	for _, obs := range observations {
		if content := obs.PrimaryContent(); content != "" {
			return content
		}
	}
	return ""
}

func asksComposition(query string) bool {
	padded := " " + strings.ToLower(query) + " "
	for _, marker := range []string{" and then ", " then ", " analyse ", " analyze ", " analysis "} {
		if strings.Contains(padded, marker) {
			return true
		}
	}
	return false
}

func truncateForTrace(s string) string {
	const max = 2000
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
