package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrosage/agrosage/pkg/prompt"
	"github.com/agrosage/agrosage/pkg/router"
	"github.com/agrosage/agrosage/pkg/tools"
)

type fakeTool struct {
	info tools.ToolInfo
	fn   func(ctx context.Context, args map[string]any) (tools.ToolResult, error)

	calls int
}

func (f *fakeTool) GetInfo() tools.ToolInfo { return f.info }
func (f *fakeTool) GetName() string        { return f.info.Name }
func (f *fakeTool) GetDescription() string { return f.info.Description }

func (f *fakeTool) Execute(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
	f.calls++
	if ctx.Err() != nil {
		return tools.Fail(f.info.Name, tools.ErrTimeout, "context expired"), ctx.Err()
	}
	return f.fn(ctx, args)
}

func okGenerator() *fakeTool {
	return &fakeTool{
		info: tools.ToolInfo{
			Name:              "generator",
			Category:          tools.CategoryGeneration,
			TerminalOnSuccess: true,
		},
		fn: func(_ context.Context, args map[string]any) (tools.ToolResult, error) {
			return tools.OK("generator", map[string]any{
				"text":        "synthesized answer",
				"tokens_used": 10,
			}), nil
		},
	}
}

func yieldPredictor(result tools.ToolResult, err error) *fakeTool {
	return &fakeTool{
		info: tools.ToolInfo{
			Name:              "predictor",
			Category:          tools.CategoryPrediction,
			Keywords:          []string{"yield"},
			Patterns:          []string{`predict.*yield`},
			Units:             []string{"mm"},
			Priority:          30,
			TerminalOnSuccess: true,
		},
		fn: func(_ context.Context, _ map[string]any) (tools.ToolResult, error) {
			return result, err
		},
	}
}

func newAgent(t *testing.T, cfg Config, fakes ...*fakeTool) (*Agent, *tools.ToolRegistry) {
	t.Helper()
	reg := tools.NewToolRegistry()
	for _, f := range fakes {
		require.NoError(t, reg.RegisterTool(f))
	}

	rt, err := router.New(reg)
	require.NoError(t, err)

	return New(reg, rt, prompt.NewFormatter(nil), cfg), reg
}

func TestRunDirectExecution(t *testing.T) {
	predictor := yieldPredictor(tools.OK("predictor", map[string]any{
		"summary":    "Predicted: 4.2 (confidence 0.88)",
		"confidence": 0.88,
	}), nil)
	gen := okGenerator()
	a, _ := newAgent(t, Config{}, predictor, gen)

	resp := a.Run(context.Background(), Request{
		Query: "Predict the wheat yield with 800mm rainfall",
	})

	assert.GreaterOrEqual(t, resp.Confidence, router.DirectExecute)
	assert.False(t, resp.Truncated)
	assert.Contains(t, resp.Answer, "synthesized answer")
	assert.Contains(t, resp.Answer, "Tools used: predictor")
	assert.Contains(t, resp.ToolsUsed, "predictor")

	require.Len(t, resp.Trace.Steps, 2)
	assert.False(t, resp.Trace.Steps[0].Terminal)
	assert.True(t, resp.Trace.Steps[1].Terminal)
	assert.Equal(t, 1, predictor.calls)
	assert.Equal(t, 1, gen.calls)
}

func TestRunIterationCapTruncates(t *testing.T) {
	predictor := yieldPredictor(tools.OK("predictor", map[string]any{
		"summary": "ok",
	}), nil)
	gen := okGenerator()
	a, _ := newAgent(t, Config{MaxIterations: 2}, predictor, gen)

	// Composition phrasing keeps the loop asking for more.
	resp := a.Run(context.Background(), Request{
		Query: "Predict the wheat yield with 800mm rainfall and then analyse the result",
	})

	assert.True(t, resp.Truncated)
	assert.NotEmpty(t, resp.Answer)
	require.Len(t, resp.Trace.Steps, 2)
	assert.True(t, resp.Trace.Steps[1].Terminal)
}

func TestRunTraceHasExactlyOneTerminalStep(t *testing.T) {
	predictor := yieldPredictor(tools.OK("predictor", map[string]any{"summary": "ok"}), nil)
	gen := okGenerator()
	a, _ := newAgent(t, Config{MaxIterations: 4}, predictor, gen)

	queries := []string{
		"Predict the wheat yield with 800mm rainfall",
		"predict yield and then analyse it",
		"completely unrelated gibberish",
	}
	for _, q := range queries {
		resp := a.Run(context.Background(), Request{Query: q})

		terminal := 0
		for _, step := range resp.Trace.Steps {
			if step.Terminal {
				terminal++
			}
		}
		assert.Equal(t, 1, terminal, "query %q", q)
		assert.LessOrEqual(t, len(resp.Trace.Steps), 4, "query %q", q)
	}
}

func TestRunInvalidInputClarifies(t *testing.T) {
	predictor := &fakeTool{
		info: tools.ToolInfo{
			Name:     "predictor",
			Category: tools.CategoryPrediction,
			Patterns: []string{`predict.*yield`},
			Parameters: []tools.ToolParameter{
				{Name: "crop", Type: "string", Required: true},
			},
			TerminalOnSuccess: true,
		},
		fn: func(_ context.Context, _ map[string]any) (tools.ToolResult, error) {
			t.Fatal("tool body must not run on invalid input")
			return tools.ToolResult{}, nil
		},
	}
	gen := okGenerator()
	a, _ := newAgent(t, Config{}, predictor, gen)

	resp := a.Run(context.Background(), Request{Query: "predict my yield please"})

	assert.Contains(t, resp.Answer, "more information")
	assert.Contains(t, resp.Answer, "crop")
	assert.Equal(t, 0, gen.calls)
	assert.Empty(t, resp.ErrorKind)
}

func TestRunTransientFailureRetriesAlternative(t *testing.T) {
	primary := &fakeTool{
		info: tools.ToolInfo{
			Name:              "primary",
			Category:          tools.CategoryPrediction,
			Keywords:          []string{"yield", "harvest"},
			Patterns:          []string{`predict.*yield`},
			Units:             []string{"mm"},
			Priority:          30,
			TerminalOnSuccess: true,
		},
		fn: func(_ context.Context, _ map[string]any) (tools.ToolResult, error) {
			return tools.Fail("primary", tools.ErrBackendUnavailable, "model server down"), nil
		},
	}
	alternative := &fakeTool{
		info: tools.ToolInfo{
			Name:              "alternative",
			Category:          tools.CategoryPrediction,
			Keywords:          []string{"yield", "harvest", "production"},
			Patterns:          []string{`yield`},
			Priority:          10,
			TerminalOnSuccess: true,
		},
		fn: func(_ context.Context, _ map[string]any) (tools.ToolResult, error) {
			return tools.OK("alternative", map[string]any{"summary": "backup prediction"}), nil
		},
	}
	gen := okGenerator()
	a, _ := newAgent(t, Config{}, primary, alternative, gen)

	resp := a.Run(context.Background(), Request{Query: "predict the yield with 800mm rainfall"})

	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, alternative.calls)
	assert.Contains(t, resp.Answer, "synthesized answer")
	assert.Contains(t, resp.ToolsUsed, "primary")
	assert.Contains(t, resp.ToolsUsed, "alternative")
	assert.Empty(t, resp.ErrorKind)
}

func TestRunInternalFailureAborts(t *testing.T) {
	broken := yieldPredictor(tools.Fail("predictor", tools.ErrInternal, "panic downstream"), nil)
	gen := okGenerator()
	a, _ := newAgent(t, Config{}, broken, gen)

	resp := a.Run(context.Background(), Request{Query: "predict the yield with 800mm rainfall"})

	assert.Equal(t, tools.ErrInternal, resp.ErrorKind)
	assert.Contains(t, resp.Answer, "unable to process")
	assert.Equal(t, 0, gen.calls)
}

func TestRunFallbackRunsGeneratorOnly(t *testing.T) {
	predictor := yieldPredictor(tools.OK("predictor", map[string]any{"summary": "ok"}), nil)
	gen := okGenerator()
	a, _ := newAgent(t, Config{}, predictor, gen)

	resp := a.Run(context.Background(), Request{Query: "zzz qqq completely unrelated"})

	assert.Equal(t, 0.0, resp.Confidence)
	assert.Equal(t, 0, predictor.calls)
	assert.Contains(t, resp.Answer, "synthesized answer")
	assert.Empty(t, resp.ErrorKind)
}

func TestRunSynthesisFailureDegradesToObservation(t *testing.T) {
	predictor := yieldPredictor(tools.OK("predictor", map[string]any{
		"summary": "Predicted: 4.2 tonnes",
	}), nil)
	deadGen := &fakeTool{
		info: tools.ToolInfo{Name: "generator", Category: tools.CategoryGeneration},
		fn: func(_ context.Context, _ map[string]any) (tools.ToolResult, error) {
			return tools.Fail("generator", tools.ErrBackendUnavailable, "llm down"), nil
		},
	}
	a, _ := newAgent(t, Config{}, predictor, deadGen)

	resp := a.Run(context.Background(), Request{Query: "predict the yield with 800mm rainfall"})

	assert.Contains(t, resp.Answer, "Predicted: 4.2 tonnes")
	assert.Empty(t, resp.ErrorKind)
}

func TestRunDeadlineReturnsTimeout(t *testing.T) {
	predictor := yieldPredictor(tools.OK("predictor", map[string]any{"summary": "ok"}), nil)
	gen := okGenerator()
	a, _ := newAgent(t, Config{Deadline: time.Nanosecond}, predictor, gen)

	resp := a.Run(context.Background(), Request{Query: "predict the yield with 800mm rainfall"})

	assert.True(t, resp.Truncated)
	assert.Equal(t, tools.ErrTimeout, resp.ErrorKind)
	assert.NotEmpty(t, resp.Answer)
}
