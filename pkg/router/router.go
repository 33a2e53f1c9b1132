// Package router classifies a natural-language query to a ranked tool
// list with a confidence. Routing is pure: no I/O, deterministic for a
// fixed registry.
package router

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/agrosage/agrosage/pkg/tools"
)

// Scoring weights. Pattern hits dominate, keyword coverage refines,
// unit hints break the structured/unstructured ambiguity.
const (
	patternWeight = 0.45
	patternCap    = 0.9
	keywordWeight = 0.4
	unitWeight    = 0.15
	unitCap       = 0.3
	scoreFloor    = 0.15
	DirectExecute = 0.7
)

// Alternative is a runner-up tool with its score.
type Alternative struct {
	Tool       string  `json:"tool"`
	Confidence float64 `json:"confidence"`
}

// Decision is the routing verdict for one query.
type Decision struct {
	ChosenTool   string        `json:"chosen_tool"`
	Confidence   float64       `json:"confidence"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
	Rationale    string        `json:"rationale"`

	// Fallback marks the no-match case where generation was chosen by
	// default rather than by score.
	Fallback bool `json:"fallback,omitempty"`
}

// Query is the routing input.
type Query struct {
	Text     string
	HasImage bool
}

type compiledTool struct {
	info     tools.ToolInfo
	order    int
	patterns []*regexp.Regexp
	units    []*regexp.Regexp
}

// Router scores registered tools against queries. Pattern regexes are
// compiled once at construction; the registry must not change after.
type Router struct {
	tools        []compiledTool
	generatorIdx int
	imageIdx     int
}

func New(reg *tools.ToolRegistry) (*Router, error) {
	r := &Router{generatorIdx: -1, imageIdx: -1}

	for i, info := range reg.ListTools("") {
		ct := compiledTool{info: info, order: i}

		for _, p := range info.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("tool %s has invalid pattern %q: %w", info.Name, p, err)
			}
			ct.patterns = append(ct.patterns, re)
		}
		for _, u := range info.Units {
			re, err := regexp.Compile(`\d\s*` + regexp.QuoteMeta(strings.ToLower(u)))
			if err != nil {
				return nil, fmt.Errorf("tool %s has invalid unit %q: %w", info.Name, u, err)
			}
			ct.units = append(ct.units, re)
		}

		if info.Category == tools.CategoryGeneration && r.generatorIdx < 0 {
			r.generatorIdx = len(r.tools)
		}
		if info.AcceptsImage && r.imageIdx < 0 {
			r.imageIdx = len(r.tools)
		}
		r.tools = append(r.tools, ct)
	}

	if r.generatorIdx < 0 {
		return nil, fmt.Errorf("registry has no generation tool to fall back to")
	}

	return r, nil
}

type scored struct {
	tool      *compiledTool
	score     float64
	rationale string
}

// Route scores every tool and returns the ranked decision. An attached
// image forces the image predictor regardless of text.
func (r *Router) Route(q Query) Decision {
	if q.HasImage && r.imageIdx >= 0 {
		info := r.tools[r.imageIdx].info
		return Decision{
			ChosenTool: info.Name,
			Confidence: 1.0,
			Rationale:  "attached image forces the image predictor",
		}
	}

	query := strings.ToLower(q.Text)

	ranked := make([]scored, 0, len(r.tools))
	for i := range r.tools {
		ct := &r.tools[i]
		score, rationale := r.scoreTool(ct, query)
		ranked = append(ranked, scored{tool: ct, score: score, rationale: rationale})
	}

	// Stable sort preserves insertion order for equal (score, priority).
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].tool.info.Priority > ranked[j].tool.info.Priority
	})

	top := ranked[0]
	if top.score < scoreFloor {
		return Decision{
			ChosenTool: r.tools[r.generatorIdx].info.Name,
			Confidence: 0.0,
			Fallback:   true,
			Rationale:  fmt.Sprintf("no tool scored above the %.2f floor", scoreFloor),
		}
	}

	decision := Decision{
		ChosenTool: top.tool.info.Name,
		Confidence: top.score,
		Rationale:  top.rationale,
	}
	for _, alt := range ranked[1:] {
		if len(decision.Alternatives) == 2 {
			break
		}
		if alt.score < scoreFloor {
			break
		}
		decision.Alternatives = append(decision.Alternatives, Alternative{
			Tool:       alt.tool.info.Name,
			Confidence: alt.score,
		})
	}

	return decision
}

func (r *Router) scoreTool(ct *compiledTool, query string) (float64, string) {
	patternHits := 0
	for _, re := range ct.patterns {
		if re.MatchString(query) {
			patternHits++
		}
	}
	patternScore := float64(patternHits) * patternWeight
	if patternScore > patternCap {
		patternScore = patternCap
	}

	keywordHits := 0
	for _, kw := range ct.info.Keywords {
		if containsWholeWord(query, strings.ToLower(kw)) {
			keywordHits++
		}
	}
	keywordScore := 0.0
	if len(ct.info.Keywords) > 0 {
		keywordScore = float64(keywordHits) / float64(len(ct.info.Keywords)) * keywordWeight
	}

	unitHits := 0
	for _, re := range ct.units {
		if re.MatchString(query) {
			unitHits++
		}
	}
	unitScore := float64(unitHits) * unitWeight
	if unitScore > unitCap {
		unitScore = unitCap
	}

	score := patternScore + keywordScore + unitScore
	if score > 1.0 {
		score = 1.0
	}

	rationale := fmt.Sprintf("%d pattern(s), %d/%d keyword(s), %d unit hint(s)",
		patternHits, keywordHits, len(ct.info.Keywords), unitHits)
	return score, rationale
}

var wordRe = regexp.MustCompile(`[a-z0-9]+`)

func containsWholeWord(query, word string) bool {
	for _, w := range wordRe.FindAllString(query, -1) {
		if w == word {
			return true
		}
	}
	return false
}
