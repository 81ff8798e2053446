// Package tools implements the Tool Runner (M3): a catalog of callable
// tools plus a bounded-concurrency batch executor, grounded on the
// teacher's pkg/engine/tools package and the evoclaw tool loop's
// errgroup-based fan-out.
package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/agentsea/turnengine/pkg/engine/api"
)

// ParameterDef describes a single parameter for building a tool's JSON
// Schema parameters block.
type ParameterDef struct {
	Name        string
	Type        string // "string", "integer", "boolean", "array", "object"
	Description string
	Required    bool
}

// BaseTool provides the common api.Tool scaffolding: name, description, and
// a JSON-schema builder from a declarative parameter list.
type BaseTool struct {
	name        string
	description string
	params      []ParameterDef
}

// NewBaseTool builds a BaseTool.
func NewBaseTool(name, description string, params []ParameterDef) BaseTool {
	return BaseTool{name: name, description: description, params: params}
}

func (b BaseTool) Name() string        { return b.name }
func (b BaseTool) Description() string { return b.description }

// ParametersSchema renders the declarative parameter list as JSON Schema.
func (b BaseTool) ParametersSchema() map[string]any {
	properties := make(map[string]any, len(b.params))
	var required []string
	for _, p := range b.params {
		properties[p.Name] = map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func success(name, content string) api.ToolExecutionResult {
	return api.ToolExecutionResult{Name: name, Status: api.ExecSuccess, Type: api.ResultText, Result: content}
}

func failure(name string, reason api.ErrorReason, err error) api.ToolExecutionResult {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return api.ToolExecutionResult{
		Name:     name,
		Status:   api.ExecError,
		Type:     api.ResultText,
		Result:   msg,
		Metadata: &api.ResultMetadata{ErrorReason: reason},
	}
}

func failuref(name string, reason api.ErrorReason, format string, args ...any) api.ToolExecutionResult {
	return failure(name, reason, fmt.Errorf(format, args...))
}

// GetStringArg extracts a string argument, or defaultVal if absent/wrong type.
func GetStringArg(args api.Args, key, defaultVal string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return defaultVal
}

// GetIntArg extracts an integer argument, or defaultVal if absent/wrong type.
func GetIntArg(args api.Args, key string, defaultVal int) int {
	if v, ok := args[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		case int64:
			return int(n)
		}
	}
	return defaultVal
}

// GetBoolArg extracts a boolean argument, or defaultVal if absent/wrong type.
func GetBoolArg(args api.Args, key string, defaultVal bool) bool {
	if v, ok := args[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}

// withDuration stamps DurationMs on a result produced between start and now.
func withDuration(res api.ToolExecutionResult, start time.Time) api.ToolExecutionResult {
	res.DurationMs = time.Since(start).Milliseconds()
	return res
}

// ctxDeadlineExceeded reports whether ctx was canceled via deadline.
func ctxDeadlineExceeded(ctx context.Context) bool {
	return ctx.Err() == context.DeadlineExceeded
}
