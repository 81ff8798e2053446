package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/agentsea/turnengine/pkg/engine/api"
)

// ReadFileTool reads file contents, part of the read_only_bypass set.
type ReadFileTool struct {
	BaseTool
	workspaceRoot string
	maxBytes      int64
}

// NewReadFileTool returns a file_read tool rooted at workspaceRoot.
func NewReadFileTool(workspaceRoot string) *ReadFileTool {
	return &ReadFileTool{
		BaseTool: NewBaseTool(
			"file_read",
			"Read the contents of a file. Returns the file content as text. Files over 500 KB must be read in portions with start_line/end_line.",
			[]ParameterDef{
				{Name: "path", Type: "string", Description: "Path to the file to read (relative to workspace)", Required: true},
				{Name: "start_line", Type: "integer", Description: "Start line number (1-indexed, optional)", Required: false},
				{Name: "end_line", Type: "integer", Description: "End line number (1-indexed, inclusive, optional)", Required: false},
			},
		),
		workspaceRoot: workspaceRoot,
		maxBytes:      500 * 1024,
	}
}

func (t *ReadFileTool) Execute(_ context.Context, args api.Args) (api.ToolExecutionResult, error) {
	path := GetStringArg(args, "path", "")
	if path == "" {
		return failuref(t.Name(), api.ReasonInvalidInput, "path is required"), nil
	}

	startLine := GetIntArg(args, "start_line", 0)
	endLine := GetIntArg(args, "end_line", 0)

	absPath, err := resolvePathInWorkspace(t.workspaceRoot, path)
	if err != nil {
		return failure(t.Name(), api.ReasonPermissionDenied, err), nil
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return failuref(t.Name(), api.ReasonNotFound, "file does not exist: %s", path), nil
		}
		return failure(t.Name(), api.ReasonNetworkError, err), nil
	}
	if info.IsDir() {
		return failuref(t.Name(), api.ReasonInvalidInput, "path is a directory, not a file: %s", path), nil
	}

	if info.Size() > t.maxBytes && startLine == 0 && endLine == 0 {
		return failuref(t.Name(), api.ReasonInvalidInput,
			"file is too large (%s); use start_line/end_line to read a portion", formatSize(info.Size())), nil
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return failure(t.Name(), api.ReasonNetworkError, err), nil
	}

	if startLine > 0 || endLine > 0 {
		lines := strings.Split(string(content), "\n")
		if startLine < 1 {
			startLine = 1
		}
		if endLine < startLine {
			endLine = len(lines)
		}
		if startLine > len(lines) {
			return failuref(t.Name(), api.ReasonInvalidInput, "start_line (%d) exceeds file length (%d lines)", startLine, len(lines)), nil
		}
		if endLine > len(lines) {
			endLine = len(lines)
		}

		var out strings.Builder
		for i, line := range lines[startLine-1 : endLine] {
			fmt.Fprintf(&out, "%4d: %s\n", startLine+i, line)
		}
		return success(t.Name(), out.String()), nil
	}

	contentStr := string(content)
	if int64(len(content)) > t.maxBytes {
		contentStr = contentStr[:t.maxBytes] + "\n\n... (content truncated)"
	}
	return success(t.Name(), contentStr), nil
}
