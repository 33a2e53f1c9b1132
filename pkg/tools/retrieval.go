package tools

import (
	"context"
	"fmt"

	"github.com/agrosage/agrosage/pkg/embedder"
	"github.com/agrosage/agrosage/pkg/vector"
)

const (
	MinTopK     = 1
	MaxTopK     = 20
	DefaultTopK = 5
)

// RetrievalTool searches the knowledge base. Raw retrieval is never a
// final answer; the agent must synthesize over it.
type RetrievalTool struct {
	embedder   embedder.Embedder
	store      vector.Provider
	collection string
}

func NewRetrievalTool(emb embedder.Embedder, store vector.Provider, collection string) *RetrievalTool {
	if collection == "" {
		collection = "knowledge"
	}
	return &RetrievalTool{embedder: emb, store: store, collection: collection}
}

func (t *RetrievalTool) GetName() string { return "knowledge_search" }

func (t *RetrievalTool) GetDescription() string {
	return "Searches the agricultural knowledge base for documents relevant to a query"
}

func (t *RetrievalTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        t.GetName(),
		Description: t.GetDescription(),
		Category:    CategoryRetrieval,
		Parameters: []ToolParameter{
			{Name: "query", Type: "string", Description: "Search query", Required: true},
			{Name: "top_k", Type: "integer", Description: "Number of documents", Default: DefaultTopK, Min: Float64(MinTopK), Max: Float64(MaxTopK)},
		},
		Outputs: []ToolParameter{
			{Name: "documents", Type: "array", Description: "Matching documents with content, metadata, and score"},
		},
		Keywords: []string{"what", "how", "why", "explain", "describe", "rotation", "technique", "practice", "organic"},
		Patterns: []string{`^what (is|are)`, `^how (do|does|to)`, `^why`, `explain`, `tell me about`},
		Priority: 20,
		// Raw document hits need synthesis before they answer anything.
		TerminalOnSuccess: false,
	}
}

func (t *RetrievalTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	query := GetString(args, "query", "")
	topK := GetInt(args, "top_k", DefaultTopK)

	queryVec, err := t.embedder.Embed(ctx, query)
	if err != nil {
		result := Fail(t.GetName(), ErrBackendUnavailable, "embedding failed: %v", err)
		return result, err
	}

	hits, err := t.store.Search(ctx, t.collection, queryVec, topK)
	if err != nil {
		result := Fail(t.GetName(), ErrBackendUnavailable, "vector search failed: %v", err)
		return result, err
	}

	documents := make([]map[string]any, 0, len(hits))
	for _, hit := range hits {
		documents = append(documents, map[string]any{
			"content":  hit.Content,
			"metadata": hit.Metadata,
			"score":    hit.Score,
		})
	}

	result := OK(t.GetName(), map[string]any{
		"documents": documents,
		"count":     len(documents),
	})
	result.NeedsFollowup = true
	if len(documents) == 0 {
		result.Output["summary"] = fmt.Sprintf("No documents matched %q", query)
	}
	return result, nil
}

var _ Tool = (*RetrievalTool)(nil)
