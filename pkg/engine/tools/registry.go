package tools

import (
	"sort"
	"sync"

	"github.com/agentsea/turnengine/pkg/engine/api"
)

// Registry is a concurrency-safe catalog of api.Tool implementations,
// implementing api.ToolRegistry.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]api.Tool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]api.Tool)}
}

// Register adds tool, returning an error if its name is already taken.
func (r *Registry) Register(tool api.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name()]; exists {
		return &DuplicateToolError{Name: tool.Name()}
	}
	r.tools[tool.Name()] = tool
	return nil
}

// MustRegister adds tool, panicking on error.
func (r *Registry) MustRegister(tool api.Tool) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (api.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// All returns every registered tool, sorted by name.
func (r *Registry) All() []api.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]api.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Names returns every registered tool name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DuplicateToolError is returned by Register when a name collides.
type DuplicateToolError struct{ Name string }

func (e *DuplicateToolError) Error() string {
	return "tools: already registered: " + e.Name
}

// DefaultRegistry builds a Registry with every built-in tool wired against
// workspaceRoot. searxngURL configures web_search's backend; pass "" to
// leave it installed but unconfigured.
func DefaultRegistry(workspaceRoot, searxngURL string) *Registry {
	r := NewRegistry()
	r.MustRegister(NewLsTool(workspaceRoot))
	r.MustRegister(NewReadFileTool(workspaceRoot))
	r.MustRegister(NewWriteFileTool(workspaceRoot))
	r.MustRegister(NewEditFileTool(workspaceRoot))
	r.MustRegister(NewGlobTool(workspaceRoot))
	r.MustRegister(NewGrepTool(workspaceRoot))
	r.MustRegister(NewShellTool(workspaceRoot))
	r.MustRegister(NewWebSearchTool(searxngURL))
	r.MustRegister(NewWebFetchTool())
	plans := newPlanStore()
	r.MustRegister(NewTodoWriteTool(plans))
	r.MustRegister(NewTodoReadTool(plans))
	return r
}
