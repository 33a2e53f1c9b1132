// Package weather resolves free-form locations against a bundled
// gazetteer, fetches upstream conditions through a TTL cache, and
// derives agricultural insights from fixed threshold rules.
package weather

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locations.yaml
var locationsYAML []byte

// Location is one gazetteer entry. Name is the canonical cache key.
type Location struct {
	Name string  `yaml:"name" json:"canonical_name"`
	Lat  float64 `yaml:"lat" json:"lat"`
	Lon  float64 `yaml:"lon" json:"lon"`
}

// UnknownLocationError carries the nearest candidates by edit distance.
type UnknownLocationError struct {
	Query       string
	Suggestions []string
}

func (e *UnknownLocationError) Error() string {
	return fmt.Sprintf("unknown location %q, did you mean: %s", e.Query, strings.Join(e.Suggestions, ", "))
}

// Gazetteer is the in-memory location table, loaded once at startup.
type Gazetteer struct {
	locations []Location
	byLower   map[string]Location
}

func LoadGazetteer() (*Gazetteer, error) {
	var doc struct {
		Locations []Location `yaml:"locations"`
	}
	if err := yaml.Unmarshal(locationsYAML, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse bundled locations: %w", err)
	}
	if len(doc.Locations) == 0 {
		return nil, fmt.Errorf("bundled location table is empty")
	}

	byLower := make(map[string]Location, len(doc.Locations))
	for _, loc := range doc.Locations {
		byLower[strings.ToLower(loc.Name)] = loc
	}

	return &Gazetteer{locations: doc.Locations, byLower: byLower}, nil
}

// List returns the table in bundle order.
func (g *Gazetteer) List() []Location {
	out := make([]Location, len(g.locations))
	copy(out, g.locations)
	return out
}

// Resolve maps free-form text to a canonical location. Exact
// case-insensitive match wins; otherwise the first substring match in
// bundle order. Unknown locations fail with the three nearest names by
// edit distance.
func (g *Gazetteer) Resolve(query string) (Location, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return Location{}, &UnknownLocationError{Query: query, Suggestions: g.nearest(needle, 3)}
	}

	if loc, ok := g.byLower[needle]; ok {
		return loc, nil
	}

	for _, loc := range g.locations {
		lower := strings.ToLower(loc.Name)
		if strings.Contains(lower, needle) || strings.Contains(needle, lower) {
			return loc, nil
		}
	}

	return Location{}, &UnknownLocationError{Query: query, Suggestions: g.nearest(needle, 3)}
}

func (g *Gazetteer) nearest(needle string, n int) []string {
	type candidate struct {
		name string
		dist int
	}

	candidates := make([]candidate, 0, len(g.locations))
	for _, loc := range g.locations {
		candidates = append(candidates, candidate{
			name: loc.Name,
			dist: editDistance(needle, strings.ToLower(loc.Name)),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].dist < candidates[j].dist
	})

	if n > len(candidates) {
		n = len(candidates)
	}
	names := make([]string, 0, n)
	for _, c := range candidates[:n] {
		names = append(names, c.name)
	}
	return names
}

// editDistance is plain Levenshtein with two rolling rows.
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
