package cmd

import (
	"os"
	"path/filepath"

	"github.com/agentsea/turnengine/pkg/engine/api"
	"github.com/agentsea/turnengine/pkg/engine/approval"
	"github.com/agentsea/turnengine/pkg/engine/clockid"
	"github.com/agentsea/turnengine/pkg/engine/contextbuilder"
	"github.com/agentsea/turnengine/pkg/engine/cost"
	"github.com/agentsea/turnengine/pkg/engine/eventbus"
	"github.com/agentsea/turnengine/pkg/engine/llm"
	"github.com/agentsea/turnengine/pkg/engine/memory"
	"github.com/agentsea/turnengine/pkg/engine/reminders"
	"github.com/agentsea/turnengine/pkg/engine/tools"
	"github.com/agentsea/turnengine/pkg/engine/turnengine"
)

// resolveWorkspaceRoot returns <cwd>/workspace, creating it if necessary.
// Grounded on the teacher's cmd/engine_factory.go resolveWorkspaceRoot.
func resolveWorkspaceRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	if realWD, err := filepath.EvalSymlinks(wd); err == nil {
		wd = realWD
	}
	root := filepath.Join(wd, "workspace")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", err
	}
	return root, nil
}

// newTurnEngine wires a turnengine.Engine against every port implementation
// in the module, selecting an LLM backend from the environment the same way
// the teacher's engine_factory.go does (provider API key presence, falling
// back to a deterministic mock). The returned registry is exposed so a
// caller can register a dispatch_subagent tool bound to a concrete
// conversation id once one exists.
func newTurnEngine(workspaceRoot string) (*turnengine.Engine, *tools.Registry, error) {
	var mem api.MemoryStore
	if fs, err := memory.NewFileStore(filepath.Join(workspaceRoot, "conversations")); err == nil {
		mem = fs
	} else {
		mem = memory.NewInMemoryStore()
	}

	var sink *eventbus.JSONLSink
	if s, err := eventbus.NewJSONLSink(filepath.Join(workspaceRoot, "events")); err == nil {
		sink = s
	}
	bus := eventbus.New(sink)

	registry := tools.NewRegistry()
	if enableToolsFlag {
		registry = tools.DefaultRegistry(workspaceRoot, os.Getenv("SEARXNG_URL"))
	}
	runner := tools.NewRunner(registry, 3)

	llmPort, err := resolveLLM()
	if err != nil {
		return nil, nil, err
	}

	eng := turnengine.New(turnengine.Config{
		Memory:     mem,
		Events:     bus,
		Tools:      registry,
		ToolRunner: runner,
		LLM:        llmPort,
		Approval:   approval.NewGate(),
		Clock:      clockid.SystemClock{},
		IDs:        clockid.UUIDGenerator{Prefix: "msg"},
		Cost:       cost.Calculator{},
		Reminders:  reminders.Decorator{},
		Context:    contextbuilder.Builder{},
		Mode:       turnengine.ApprovalModeFromEnv(),
	})

	return eng, registry, nil
}

// registerSubAgentTool adds dispatch_subagent to registry, bound to
// conversationID as the parent of any child conversations it spawns.
func registerSubAgentTool(eng *turnengine.Engine, registry *tools.Registry, conversationID string) {
	agentCfg := api.AgentConfig{
		Model:               os.Getenv("MODEL"),
		EnabledTools:        registry.Names(),
		RequireToolApproval: false,
	}.WithDefaults()
	registry.MustRegister(tools.NewSubAgentTool(eng.SubAgentDispatcher(conversationID, agentCfg)))
}

// loadAgentConfig loads <workspaceRoot>/agents/<name>.yaml when present,
// falling back to an all-defaults AgentConfig with approval required and
// EnabledTools left empty (runChat fills an empty list with every
// registered tool name).
func loadAgentConfig(workspaceRoot, name string) api.AgentConfig {
	if name == "" {
		name = "default"
	}
	path := filepath.Join(workspaceRoot, "agents", name+".yaml")
	if cfg, err := turnengine.LoadAgentConfig(path); err == nil {
		return cfg
	}
	return api.AgentConfig{
		ID:                  name,
		RequireToolApproval: true,
	}.WithDefaults()
}

// resolveLLM picks a provider by which API key is set, matching the
// teacher's env-driven selection in cmd/engine_factory.go.
func resolveLLM() (api.LLMPort, error) {
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		return llm.NewAnthropicLLMFromEnv()
	}
	if os.Getenv("OPENAI_API_KEY") != "" || os.Getenv("LLM_API_KEY") != "" {
		return llm.NewOpenAILLMFromEnv()
	}
	return llm.NewMockLLM(), nil
}
