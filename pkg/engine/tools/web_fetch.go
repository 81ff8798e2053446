package tools

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agentsea/turnengine/pkg/engine/api"
)

// WebFetchTool fetches a URL and returns its text content. Part of the
// read_only_bypass set.
type WebFetchTool struct {
	BaseTool
	client   *http.Client
	maxChars int
}

// NewWebFetchTool returns a web_fetch tool.
func NewWebFetchTool() *WebFetchTool {
	return &WebFetchTool{
		BaseTool: NewBaseTool(
			"web_fetch",
			"Fetch the text content of a URL (http/https only). Use to read a page the model was given a link to.",
			[]ParameterDef{
				{Name: "url", Type: "string", Description: "URL to fetch", Required: true},
				{Name: "max_chars", Type: "integer", Description: "Maximum characters to return (default: 10000)", Required: false},
			},
		),
		client:   &http.Client{Timeout: 15 * time.Second},
		maxChars: 10000,
	}
}

func (t *WebFetchTool) Execute(ctx context.Context, args api.Args) (api.ToolExecutionResult, error) {
	rawURL := GetStringArg(args, "url", "")
	if rawURL == "" {
		return failuref(t.Name(), api.ReasonInvalidInput, "url is required"), nil
	}
	limit := GetIntArg(args, "max_chars", t.maxChars)

	if err := validateURLForSSRF(rawURL); err != nil {
		return failure(t.Name(), api.ReasonPermissionDenied, err), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return failure(t.Name(), api.ReasonInvalidInput, err), nil
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if ctxDeadlineExceeded(ctx) {
			return failuref(t.Name(), api.ReasonTimeout, "fetch timed out"), nil
		}
		return failure(t.Name(), api.ReasonNetworkError, err), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return failuref(t.Name(), api.ReasonNetworkError, "fetch returned status %d", resp.StatusCode), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(limit)*4))
	if err != nil {
		return failure(t.Name(), api.ReasonNetworkError, err), nil
	}

	content := string(body)
	truncated := false
	if len(content) > limit {
		content = content[:limit]
		truncated = true
	}

	if truncated {
		content += "\n\n... (truncated)"
	}
	return success(t.Name(), content), nil
}

// validateURLForSSRF rejects URLs that resolve to private, loopback, or
// link-local addresses, including the cloud metadata endpoint.
func validateURLForSSRF(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("only http/https URLs are allowed")
	}
	hostname := parsed.Hostname()
	if hostname == "" {
		return fmt.Errorf("URL has no hostname")
	}

	ips, err := net.LookupIP(hostname)
	if err != nil {
		return fmt.Errorf("could not resolve host: %w", err)
	}
	metadataIP := net.ParseIP("169.254.169.254")
	for _, ip := range ips {
		if isPrivateOrReservedIP(ip) || ip.Equal(metadataIP) {
			return fmt.Errorf("URL resolves to a private or reserved address")
		}
	}
	return nil
}

func isPrivateOrReservedIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	if ip.IsPrivate() {
		return true
	}
	return strings.HasPrefix(ip.String(), "fc00:") || strings.HasPrefix(ip.String(), "fd00:")
}
