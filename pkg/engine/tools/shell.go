package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/agentsea/turnengine/pkg/engine/api"
)

// ShellTool executes a shell command in the workspace. High-risk: requires
// approval outside full-auto mode.
type ShellTool struct {
	BaseTool
	workspaceRoot  string
	maxTimeout     time.Duration
	maxOutputBytes int
}

// NewShellTool returns a shell tool rooted at workspaceRoot.
func NewShellTool(workspaceRoot string) *ShellTool {
	return &ShellTool{
		BaseTool: NewBaseTool(
			"shell",
			"Execute a shell command in the workspace. Use for running build commands, tests, git operations, or any CLI tools.",
			[]ParameterDef{
				{Name: "command", Type: "string", Description: "Shell command to execute", Required: true},
				{Name: "timeout", Type: "integer", Description: "Timeout in seconds (default: 120)", Required: false},
			},
		),
		workspaceRoot:  workspaceRoot,
		maxTimeout:     300 * time.Second,
		maxOutputBytes: 100 * 1024,
	}
}

func (t *ShellTool) Execute(ctx context.Context, args api.Args) (api.ToolExecutionResult, error) {
	command := GetStringArg(args, "command", "")
	if command == "" {
		return failuref(t.Name(), api.ReasonInvalidInput, "command is required"), nil
	}

	timeoutSecs := GetIntArg(args, "timeout", 120)
	timeout := time.Duration(timeoutSecs) * time.Second
	if timeout > t.maxTimeout {
		timeout = t.maxTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = t.workspaceRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	var output strings.Builder
	if stdout.Len() > 0 {
		s := stdout.String()
		if len(s) > t.maxOutputBytes {
			s = s[:t.maxOutputBytes] + "\n\n... (stdout truncated)"
		}
		output.WriteString(s)
	}
	if stderr.Len() > 0 {
		s := stderr.String()
		if len(s) > t.maxOutputBytes/2 {
			s = s[:t.maxOutputBytes/2] + "\n\n... (stderr truncated)"
		}
		for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
			output.WriteString("[stderr] " + line + "\n")
		}
	}

	if runCtx.Err() == context.DeadlineExceeded {
		res := failuref(t.Name(), api.ReasonTimeout, "command timed out after %d seconds", int(timeout/time.Second))
		res.Result = output.String() + "\n\n" + res.Result
		return res, nil
	}

	if err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		res := failuref(t.Name(), api.ReasonNetworkError, "exit code %d", exitCode)
		res.Result = output.String() + fmt.Sprintf("\n\nexit code: %d", exitCode)
		return res, nil
	}

	if output.Len() == 0 {
		return success(t.Name(), "<command completed with no output>"), nil
	}
	return success(t.Name(), output.String()), nil
}

// Preview describes the pending command for the Approval Gate.
func (t *ShellTool) Preview(_ context.Context, args api.Args) (api.Preview, error) {
	command := GetStringArg(args, "command", "")
	timeoutSecs := GetIntArg(args, "timeout", 120)

	return api.Preview{
		Kind:     api.PreviewCommand,
		Summary:  "Execute shell command",
		Content:  command,
		Affected: []string{t.workspaceRoot},
		RiskHint: fmt.Sprintf("timeout: %d seconds", timeoutSecs),
	}, nil
}
