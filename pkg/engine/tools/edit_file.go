package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/agentsea/turnengine/pkg/engine/api"
)

// EditFileTool makes targeted text-replacement edits to an existing file.
// High-risk: requires approval outside full-auto mode.
type EditFileTool struct {
	BaseTool
	workspaceRoot string
}

// NewEditFileTool returns an edit_file tool rooted at workspaceRoot.
func NewEditFileTool(workspaceRoot string) *EditFileTool {
	return &EditFileTool{
		BaseTool: NewBaseTool(
			"edit_file",
			"Make a targeted edit to an existing file by replacing specific text. More precise than write_file for modifications.",
			[]ParameterDef{
				{Name: "path", Type: "string", Description: "Path to the file to edit (relative to workspace)", Required: true},
				{Name: "old_text", Type: "string", Description: "Exact text to find and replace (must match exactly)", Required: true},
				{Name: "new_text", Type: "string", Description: "Text to replace old_text with", Required: true},
			},
		),
		workspaceRoot: workspaceRoot,
	}
}

func (t *EditFileTool) Execute(_ context.Context, args api.Args) (api.ToolExecutionResult, error) {
	path := GetStringArg(args, "path", "")
	if path == "" {
		return failuref(t.Name(), api.ReasonInvalidInput, "path is required"), nil
	}
	oldText := GetStringArg(args, "old_text", "")
	if oldText == "" {
		return failuref(t.Name(), api.ReasonInvalidInput, "old_text is required"), nil
	}
	newText := GetStringArg(args, "new_text", "")

	absPath, err := resolvePathInWorkspace(t.workspaceRoot, path)
	if err != nil {
		return failure(t.Name(), api.ReasonPermissionDenied, err), nil
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return failuref(t.Name(), api.ReasonNotFound, "file does not exist: %s", path), nil
		}
		return failure(t.Name(), api.ReasonNetworkError, err), nil
	}

	contentStr := string(content)
	if !strings.Contains(contentStr, oldText) {
		return failuref(t.Name(), api.ReasonInvalidInput, "old_text not found in file; it must match exactly including whitespace"), nil
	}
	if count := strings.Count(contentStr, oldText); count > 1 {
		return failuref(t.Name(), api.ReasonInvalidInput, "old_text found %d times; it must be unique, provide more context", count), nil
	}

	newContent := strings.Replace(contentStr, oldText, newText, 1)
	if err := os.WriteFile(absPath, []byte(newContent), 0o644); err != nil {
		return failure(t.Name(), api.ReasonNetworkError, err), nil
	}

	return success(t.Name(), fmt.Sprintf("file edited: %s (replaced %d bytes with %d bytes)", path, len(oldText), len(newText))), nil
}

// Preview renders a diff-like view of the pending edit.
func (t *EditFileTool) Preview(_ context.Context, args api.Args) (api.Preview, error) {
	path := GetStringArg(args, "path", "")
	oldText := GetStringArg(args, "old_text", "")
	newText := GetStringArg(args, "new_text", "")

	absPath, err := resolvePathInWorkspace(t.workspaceRoot, path)
	pathPreview := absPath
	if err != nil {
		pathPreview = "<invalid path: " + err.Error() + ">"
	}

	var diff strings.Builder
	for _, line := range strings.Split(oldText, "\n") {
		diff.WriteString("- " + line + "\n")
	}
	for _, line := range strings.Split(newText, "\n") {
		diff.WriteString("+ " + line + "\n")
	}
	diffText := diff.String()
	if len(diffText) > 4000 {
		diffText = diffText[:4000] + "\n... (truncated)"
	}

	return api.Preview{
		Kind:     api.PreviewDiff,
		Summary:  "Edit file: " + path,
		Content:  diffText,
		Affected: []string{pathPreview},
		RiskHint: fmt.Sprintf("Replacing %d bytes with %d bytes", len(oldText), len(newText)),
	}, nil
}
