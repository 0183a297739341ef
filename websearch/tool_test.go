package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPToolSearchRecentParsesJSONResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "news", r.URL.Query().Get("categories"))
		require.Equal(t, "week", r.URL.Query().Get("time_range"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"title": "A", "url": "https://a.example", "content": "snippet a", "score": 0.9},
				{"title": "B", "url": "https://b.example", "content": "snippet b", "score": 0.4},
			},
		})
	}))
	defer server.Close()

	tool := NewHTTPTool(server.URL)
	results, err := tool.SearchRecent(context.Background(), "current events", 2, 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "A", results[0].Title)
	require.Equal(t, 0.9, results[0].Score)
}

func TestHTTPToolDegradesToEmptyOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	tool := NewHTTPTool(server.URL)
	results, err := tool.SearchEducational(context.Background(), "newton's laws", 3)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestHTTPToolRespectsNumResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		results := make([]map[string]any, 0, 5)
		for i := 0; i < 5; i++ {
			results = append(results, map[string]any{"title": "x", "url": "https://x.example", "content": "", "score": 0.5})
		}
		json.NewEncoder(w).Encode(map[string]any{"results": results})
	}))
	defer server.Close()

	tool := NewHTTPTool(server.URL)
	results, err := tool.SearchEducational(context.Background(), "gravity", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
}
