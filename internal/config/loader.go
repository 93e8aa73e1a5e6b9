package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chainforge-ai/chainforge/internal/chainerr"
)

// Load reads the agent/critic/refinement/compression document from path,
// overlays ambient environment variables, fills defaults for anything the
// document omits, and validates the result. A non-nil error is always a
// ConfigError and must fail process startup — it is never recovered from
// silently.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, chainerr.ConfigErrorf("reading %s: %v", path, err)
	}

	// reselect_critics defaults to true; a bool cannot tell "omitted" from
	// false after decoding, so the default is set before the document is
	// decoded over it.
	cfg := &Config{Refinement: RefinementConfig{ReselectCritics: true}}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, chainerr.ConfigErrorf("parsing %s: %v", path, err)
	}

	applyDefaults(cfg)
	overlayEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Providers == nil {
		cfg.Providers = DefaultProviders()
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "./data/chainforge.db"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.BaseDelay == 0 {
		cfg.Retry = DefaultRetry()
	}
	if cfg.Critics.MinCritics == 0 {
		cfg.Critics.MinCritics = 1
	}
	if cfg.Critics.MaxCritics == 0 {
		cfg.Critics.MaxCritics = len(cfg.Critics.Critics)
	}
	if cfg.Refinement.MaxIterations == 0 {
		cfg.Refinement.MaxIterations = 3
	}
	for name, agent := range cfg.Agents {
		if agent.Memory.SessionLimit == 0 {
			agent.Memory.SessionLimit = 5
		}
		if agent.Memory.MaxContextTokens == 0 {
			agent.Memory.MaxContextTokens = 600
		}
		if agent.Memory.TimeDecayHours == 0 {
			agent.Memory.TimeDecayHours = 168
		}
		if agent.Memory.Strategy == "" {
			agent.Memory.Strategy = StrategyKeywords
		}
		if agent.Memory.KnowledgeScope == "" {
			agent.Memory.KnowledgeScope = ScopeAllAgents
		}
		cfg.Agents[name] = agent
	}
}

func overlayEnv(cfg *Config) {
	cfg.Mock = isTruthy(os.Getenv("LLM_MOCK"))
	if dbPath := os.Getenv("CHAINFORGE_DB_PATH"); dbPath != "" {
		cfg.Store.Path = dbPath
	}
	if addr := os.Getenv("CHAINFORGE_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
}

func isTruthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Validate enforces the startup-time invariants named in SPEC_FULL.md
// §4.12: every model reference resolves to a known provider, every critic
// name referenced elsewhere exists, and cardinality bounds are sane.
func Validate(cfg *Config) error {
	criticNames := make(map[string]bool, len(cfg.Critics.Critics))
	for _, c := range cfg.Critics.Critics {
		criticNames[c.Name] = true
	}

	for name, agent := range cfg.Agents {
		if err := validateModelRef(cfg, agent.Model); err != nil {
			return chainerr.ConfigErrorf("agent %q: model %q: %v", name, agent.Model, err)
		}
		for _, fb := range agent.FallbackModels {
			if err := validateModelRef(cfg, fb); err != nil {
				return chainerr.ConfigErrorf("agent %q: fallback model %q: %v", name, fb, err)
			}
		}
	}

	for _, c := range cfg.Critics.Critics {
		if _, ok := cfg.Agents[c.Name]; !ok {
			return chainerr.ConfigErrorf("critic %q has no matching agent definition", c.Name)
		}
		if c.Weight <= 0 {
			return chainerr.ConfigErrorf("critic %q: weight must be > 0, got %v", c.Name, c.Weight)
		}
	}

	for _, fb := range cfg.Critics.FallbackCritics {
		if !criticNames[fb] {
			return chainerr.ConfigErrorf("fallback_critics references unknown critic %q", fb)
		}
	}

	if cfg.Critics.MinCritics < 1 {
		return chainerr.ConfigErrorf("min_critics must be >= 1, got %d", cfg.Critics.MinCritics)
	}
	if cfg.Critics.MaxCritics < cfg.Critics.MinCritics {
		return chainerr.ConfigErrorf("max_critics (%d) must be >= min_critics (%d)", cfg.Critics.MaxCritics, cfg.Critics.MinCritics)
	}
	if cfg.Critics.MaxCritics > len(cfg.Critics.Critics) {
		return chainerr.ConfigErrorf("max_critics (%d) exceeds registered critic count (%d)", cfg.Critics.MaxCritics, len(cfg.Critics.Critics))
	}

	if cfg.Refinement.MaxIterations < 1 {
		return chainerr.ConfigErrorf("refinement.max_iterations must be >= 1, got %d", cfg.Refinement.MaxIterations)
	}

	return nil
}

func validateModelRef(cfg *Config, model string) error {
	parts := strings.SplitN(model, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf(`must be in "provider/model" form`)
	}
	if _, ok := cfg.Providers[parts[0]]; !ok {
		return fmt.Errorf("unknown provider %q", parts[0])
	}
	return nil
}
