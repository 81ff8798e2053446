package tools

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/agentsea/turnengine/pkg/engine/api"
)

// LsTool lists directory contents, part of the read_only_bypass set.
type LsTool struct {
	BaseTool
	workspaceRoot string
}

// NewLsTool returns a dir_ls tool rooted at workspaceRoot.
func NewLsTool(workspaceRoot string) *LsTool {
	return &LsTool{
		BaseTool: NewBaseTool(
			"dir_ls",
			"List files and directories in a given path. Returns file names, types, and sizes.",
			[]ParameterDef{
				{Name: "path", Type: "string", Description: "Directory path to list (relative to workspace)", Required: true},
				{Name: "all", Type: "boolean", Description: "Include hidden files (starting with .)", Required: false},
			},
		),
		workspaceRoot: workspaceRoot,
	}
}

func (t *LsTool) Execute(_ context.Context, args api.Args) (api.ToolExecutionResult, error) {
	path := GetStringArg(args, "path", ".")
	showAll := GetBoolArg(args, "all", false)

	absPath, err := resolvePathInWorkspace(t.workspaceRoot, path)
	if err != nil {
		return failure(t.Name(), api.ReasonPermissionDenied, err), nil
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return failuref(t.Name(), api.ReasonNotFound, "path does not exist: %s", path), nil
		}
		return failure(t.Name(), api.ReasonNetworkError, err), nil
	}

	if !info.IsDir() {
		return success(t.Name(), formatFileInfo(path, info)), nil
	}

	entries, err := os.ReadDir(absPath)
	if err != nil {
		return failure(t.Name(), api.ReasonNetworkError, err), nil
	}

	var lines []string
	for _, entry := range entries {
		name := entry.Name()
		if !showAll && strings.HasPrefix(name, ".") {
			continue
		}
		entryInfo, err := entry.Info()
		if err != nil {
			lines = append(lines, fmt.Sprintf("%s (error: %v)", name, err))
			continue
		}
		lines = append(lines, formatFileInfo(name, entryInfo))
	}
	sort.Strings(lines)

	if len(lines) == 0 {
		return success(t.Name(), "(empty directory)"), nil
	}
	return success(t.Name(), strings.Join(lines, "\n")), nil
}

func formatFileInfo(name string, info os.FileInfo) string {
	if info.IsDir() {
		return name + "/"
	}
	return fmt.Sprintf("%s (%s)", name, formatSize(info.Size()))
}

func formatSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/gb)
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/mb)
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/kb)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
