package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agentsea/turnengine/pkg/engine/api"
)

// WebSearchTool queries a SearXNG instance for web results. Part of the
// read_only_bypass set.
type WebSearchTool struct {
	BaseTool
	client        *http.Client
	searxngURL    string
	defaultResult int
}

// NewWebSearchTool returns a web_search tool backed by a SearXNG instance at
// searxngURL. If searxngURL is empty the tool reports itself unconfigured
// rather than failing every call silently.
func NewWebSearchTool(searxngURL string) *WebSearchTool {
	return &WebSearchTool{
		BaseTool: NewBaseTool(
			"web_search",
			"Search the web and return a list of results with titles, URLs, and snippets.",
			[]ParameterDef{
				{Name: "query", Type: "string", Description: "Search query", Required: true},
				{Name: "result_count", Type: "integer", Description: "Number of results to return (default: 5)", Required: false},
			},
		),
		client:        &http.Client{Timeout: 10 * time.Second},
		searxngURL:    searxngURL,
		defaultResult: 5,
	}
}

type searxngResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (t *WebSearchTool) Execute(ctx context.Context, args api.Args) (api.ToolExecutionResult, error) {
	query := GetStringArg(args, "query", "")
	if query == "" {
		return failuref(t.Name(), api.ReasonInvalidInput, "query is required"), nil
	}
	if t.searxngURL == "" {
		return failuref(t.Name(), api.ReasonInvalidInput, "web_search is not configured (no search backend URL)"), nil
	}
	count := GetIntArg(args, "result_count", t.defaultResult)

	endpoint := strings.TrimSuffix(t.searxngURL, "/") + "/search?" + url.Values{
		"q":      {query},
		"format": {"json"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return failure(t.Name(), api.ReasonInvalidInput, err), nil
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if ctxDeadlineExceeded(ctx) {
			return failuref(t.Name(), api.ReasonTimeout, "search timed out"), nil
		}
		return failure(t.Name(), api.ReasonNetworkError, err), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return failuref(t.Name(), api.ReasonNetworkError, "search backend returned status %d", resp.StatusCode), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return failure(t.Name(), api.ReasonNetworkError, err), nil
	}

	var parsed searxngResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return failure(t.Name(), api.ReasonNetworkError, err), nil
	}

	if len(parsed.Results) == 0 {
		return success(t.Name(), "no results found for query: "+query), nil
	}
	if count > len(parsed.Results) {
		count = len(parsed.Results)
	}

	var out strings.Builder
	for i := 0; i < count; i++ {
		r := parsed.Results[i]
		fmt.Fprintf(&out, "%d. %s\n   %s\n   %s\n\n", i+1, r.Title, r.URL, r.Content)
	}
	return success(t.Name(), strings.TrimSpace(out.String())), nil
}
