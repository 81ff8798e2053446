package tools

import (
	"context"
	"os"
	"path/filepath"

	"github.com/agentsea/turnengine/pkg/engine/api"
)

// WriteFileTool creates or overwrites files. High-risk: requires approval
// outside full-auto mode.
type WriteFileTool struct {
	BaseTool
	workspaceRoot string
}

// NewWriteFileTool returns a write_file tool rooted at workspaceRoot.
func NewWriteFileTool(workspaceRoot string) *WriteFileTool {
	return &WriteFileTool{
		BaseTool: NewBaseTool(
			"write_file",
			"Create a new file or overwrite an existing file with the specified content. Creates parent directories if needed.",
			[]ParameterDef{
				{Name: "path", Type: "string", Description: "Path to the file to create/overwrite (relative to workspace)", Required: true},
				{Name: "content", Type: "string", Description: "Content to write to the file", Required: true},
			},
		),
		workspaceRoot: workspaceRoot,
	}
}

func (t *WriteFileTool) Execute(_ context.Context, args api.Args) (api.ToolExecutionResult, error) {
	path := GetStringArg(args, "path", "")
	if path == "" {
		return failuref(t.Name(), api.ReasonInvalidInput, "path is required"), nil
	}
	content := GetStringArg(args, "content", "")

	absPath, err := resolvePathInWorkspace(t.workspaceRoot, path)
	if err != nil {
		return failure(t.Name(), api.ReasonPermissionDenied, err), nil
	}

	_, statErr := os.Stat(absPath)
	existed := statErr == nil

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return failure(t.Name(), api.ReasonNetworkError, err), nil
	}
	if err := os.WriteFile(absPath, []byte(content), 0o644); err != nil {
		return failure(t.Name(), api.ReasonNetworkError, err), nil
	}

	if existed {
		return success(t.Name(), "file overwritten: "+path), nil
	}
	return success(t.Name(), "file created: "+path), nil
}

// Preview describes the pending write for the Approval Gate.
func (t *WriteFileTool) Preview(_ context.Context, args api.Args) (api.Preview, error) {
	path := GetStringArg(args, "path", "")
	content := GetStringArg(args, "content", "")

	absPath, err := resolvePathInWorkspace(t.workspaceRoot, path)
	if err != nil {
		absPath = "<invalid path: " + err.Error() + ">"
	}

	preview := content
	if len(preview) > 1000 {
		preview = preview[:1000] + "\n... (truncated)"
	}

	return api.Preview{
		Kind:     api.PreviewDiff,
		Summary:  "Write file: " + path,
		Content:  preview,
		Affected: []string{absPath},
		RiskHint: "This operation modifies files on disk.",
	}, nil
}
