package moduletools

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentctx/platform/internal/entity"
	"github.com/agentctx/platform/internal/mcp"
)

// RAG builds GeminiRAGModule's tool surface. The remote file-search
// service itself is out of scope; these tools operate on the
// platform's own RAGStore binding — which files are indexed and which
// keywords route to this store — rather than performing the search.
func RAG(stores *entity.RAGStoreRepo) []mcp.LocalTool {
	return []mcp.LocalTool{
		{
			Name:        "rag_list_files",
			Description: "List the agent's uploaded files currently indexed in its RAG store.",
			Schema:      map[string]any{"type": "object", "properties": map[string]any{}},
			Handler: func(ctx context.Context, agentID string, args map[string]any) (string, error) {
				store, err := stores.GetForAgent(ctx, agentID)
				if err != nil {
					return "", err
				}
				if store == nil || store.FileCount == 0 {
					return "no files uploaded", nil
				}
				return fmt.Sprintf("%d files: %s", store.FileCount, strings.Join(store.UploadedFiles, ", ")), nil
			},
		},
		{
			Name:        "rag_keyword_match",
			Description: "Report whether the agent's RAG store has keywords matching the given query, as a hint for whether a file search is likely to help.",
			Schema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"query": map[string]any{"type": "string"}},
				"required":   []string{"query"},
			},
			Handler: func(ctx context.Context, agentID string, args map[string]any) (string, error) {
				query, _ := args["query"].(string)
				store, err := stores.GetForAgent(ctx, agentID)
				if err != nil {
					return "", err
				}
				if store == nil {
					return "no rag store provisioned for this agent", nil
				}
				var matched []string
				q := strings.ToLower(query)
				for _, kw := range store.Keywords {
					if strings.Contains(q, strings.ToLower(kw.Keyword)) {
						matched = append(matched, kw.Keyword)
					}
				}
				if len(matched) == 0 {
					return "no keyword match", nil
				}
				return "matched: " + strings.Join(matched, ", "), nil
			},
		},
	}
}
