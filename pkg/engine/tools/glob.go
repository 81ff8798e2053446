package tools

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/agentsea/turnengine/pkg/engine/api"
)

// GlobTool finds files matching a glob pattern.
type GlobTool struct {
	BaseTool
	workspaceRoot string
	maxResults    int
}

// NewGlobTool returns a glob tool rooted at workspaceRoot.
func NewGlobTool(workspaceRoot string) *GlobTool {
	return &GlobTool{
		BaseTool: NewBaseTool(
			"glob",
			"Find files matching a glob pattern (e.g., '**/*.go', 'src/*.js'). Returns matching file paths.",
			[]ParameterDef{
				{Name: "pattern", Type: "string", Description: "Glob pattern to match (e.g., **/*.go, src/**/*.ts)", Required: true},
				{Name: "path", Type: "string", Description: "Base directory to search from (default: workspace root)", Required: false},
			},
		),
		workspaceRoot: workspaceRoot,
		maxResults:    100,
	}
}

func (t *GlobTool) Execute(_ context.Context, args api.Args) (api.ToolExecutionResult, error) {
	pattern := GetStringArg(args, "pattern", "")
	if pattern == "" {
		return failuref(t.Name(), api.ReasonInvalidInput, "pattern is required"), nil
	}
	basePath := GetStringArg(args, "path", ".")

	absBase, err := resolvePathInWorkspace(t.workspaceRoot, basePath)
	if err != nil {
		return failure(t.Name(), api.ReasonPermissionDenied, err), nil
	}
	rootAbs, _ := filepath.Abs(t.workspaceRoot)

	var matches []string
	if strings.Contains(pattern, "**") {
		matches, err = t.recursiveGlob(absBase, pattern)
	} else {
		matches, err = filepath.Glob(filepath.Join(absBase, pattern))
	}
	if err != nil {
		return failure(t.Name(), api.ReasonInvalidInput, err), nil
	}

	relativePaths := make([]string, 0, len(matches))
	for _, m := range matches {
		rel, err := filepath.Rel(rootAbs, m)
		if err != nil {
			rel = m
		}
		relativePaths = append(relativePaths, rel)
	}
	sort.Strings(relativePaths)

	if len(relativePaths) > t.maxResults {
		truncated := relativePaths[:t.maxResults]
		return success(t.Name(), strings.Join(truncated, "\n")+
			"\n\n... (truncated, showing first "+strconv.Itoa(t.maxResults)+" results)"), nil
	}
	if len(relativePaths) == 0 {
		return success(t.Name(), "no files found matching pattern: "+pattern), nil
	}
	return success(t.Name(), strings.Join(relativePaths, "\n")), nil
}

func (t *GlobTool) recursiveGlob(basePath, pattern string) ([]string, error) {
	var matches []string
	parts := strings.SplitN(pattern, "**", 2)
	prefix := parts[0]
	suffix := ""
	if len(parts) > 1 {
		suffix = strings.TrimPrefix(parts[1], "/")
		suffix = strings.TrimPrefix(suffix, string(filepath.Separator))
	}

	err := filepath.Walk(basePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() && strings.HasPrefix(info.Name(), ".") && info.Name() != "." {
			return filepath.SkipDir
		}
		if info.IsDir() {
			return nil
		}
		relPath, err := filepath.Rel(basePath, path)
		if err != nil {
			return nil
		}
		if prefix != "" && !strings.HasPrefix(relPath, strings.TrimSuffix(prefix, "/")) {
			return nil
		}
		if suffix != "" {
			if matched, _ := filepath.Match(suffix, filepath.Base(path)); !matched {
				return nil
			}
		}
		matches = append(matches, path)
		if len(matches) > t.maxResults*2 {
			return filepath.SkipAll
		}
		return nil
	})
	return matches, err
}
