package turnengine

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/agentsea/turnengine/pkg/engine/api"
)

// LoadAgentConfig reads an AgentConfig from a YAML file and fills in its
// documented defaults, grounded on the teacher's persona/skill YAML
// loading pattern in cmd/engine_factory.go.
func LoadAgentConfig(path string) (api.AgentConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return api.AgentConfig{}, fmt.Errorf("turnengine: read agent config %s: %w", path, err)
	}
	cfg := api.AgentConfig{RequireToolApproval: true}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return api.AgentConfig{}, fmt.Errorf("turnengine: parse agent config %s: %w", path, err)
	}
	return cfg.WithDefaults(), nil
}

// CompressConfigFromEnv reads AUTO_COMPRESS_THRESHOLD/COMPRESS_KEEP_TURNS,
// matching cmd/engine_factory.go's env-driven compression defaults.
func CompressConfigFromEnv() CompressConfig {
	cfg := DefaultCompressConfig()
	if v := os.Getenv("AUTO_COMPRESS_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxMessages = n
		}
	}
	if v := os.Getenv("COMPRESS_KEEP_TURNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.KeepTurns = n
		}
	}
	return cfg
}

// ApprovalModeFromEnv reads TURNENGINE_APPROVAL_MODE, defaulting to
// api.ModeSuggest when unset or unrecognized.
func ApprovalModeFromEnv() api.ApprovalMode {
	switch api.ApprovalMode(os.Getenv("TURNENGINE_APPROVAL_MODE")) {
	case api.ModeAuto:
		return api.ModeAuto
	case api.ModeFullAuto:
		return api.ModeFullAuto
	default:
		return api.ModeSuggest
	}
}
