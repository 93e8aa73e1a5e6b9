package config

import (
	"os"
	"path/filepath"
	"testing"
)

const validFixture = `
agents:
  builder:
    name: builder
    model: openai/gpt-4o
    system_prompt: "build"
    temperature: 0.5
    max_tokens: 512
  closer:
    name: closer
    model: openai/gpt-4o
    system_prompt: "close"
    temperature: 0.3
    max_tokens: 512
  style:
    name: style
    model: anthropic/claude-3-5-sonnet-20241022
    system_prompt: "critique style"
    temperature: 0.2
    max_tokens: 256

critics:
  min_critics: 1
  max_critics: 1
  critics:
    - name: style
      weight: 1.0

refinement:
  enabled: false

compression:
  model: openai/gpt-4o-mini
  target_tokens: 200
  thresholds:
    standard: 1000
    memory_enabled: 1000
    closer: 1000

providers:
  openai:
    env_var: OPENAI_API_KEY
  anthropic:
    env_var: ANTHROPIC_API_KEY
`

func writeFixture(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsAndValidates(t *testing.T) {
	path := writeFixture(t, validFixture)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Retry != DefaultRetry() {
		t.Fatalf("Retry = %+v, want defaults", cfg.Retry)
	}
	if cfg.Refinement.MaxIterations != 3 {
		t.Fatalf("Refinement.MaxIterations = %d, want default 3", cfg.Refinement.MaxIterations)
	}
	if cfg.Agents["builder"].Memory.Strategy != StrategyKeywords {
		t.Fatalf("builder memory strategy = %q, want default %q", cfg.Agents["builder"].Memory.Strategy, StrategyKeywords)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("Server.Addr = %q, want default :8080", cfg.Server.Addr)
	}
}

func TestLoadMissingFileIsConfigError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoadEnvOverlay(t *testing.T) {
	t.Setenv("LLM_MOCK", "1")
	t.Setenv("CHAINFORGE_DB_PATH", "/tmp/custom.db")
	t.Setenv("CHAINFORGE_ADDR", ":9090")

	path := writeFixture(t, validFixture)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Mock {
		t.Fatal("expected Mock = true from LLM_MOCK=1")
	}
	if cfg.Store.Path != "/tmp/custom.db" {
		t.Fatalf("Store.Path = %q, want /tmp/custom.db", cfg.Store.Path)
	}
	if cfg.Server.Addr != ":9090" {
		t.Fatalf("Server.Addr = %q, want :9090", cfg.Server.Addr)
	}
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := &Config{
		Agents: map[string]AgentConfig{
			"builder": {Name: "builder", Model: "nope/gpt-4o"},
			"closer":  {Name: "closer", Model: "openai/gpt-4o"},
		},
		Providers: map[string]ProviderConfig{"openai": {EnvVar: "OPENAI_API_KEY"}},
		Critics:   CriticConfig{MinCritics: 1, MaxCritics: 0},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error for an unknown provider reference")
	}
}

func TestValidateRejectsCriticWithoutAgent(t *testing.T) {
	cfg := &Config{
		Agents: map[string]AgentConfig{
			"builder": {Name: "builder", Model: "openai/gpt-4o"},
			"closer":  {Name: "closer", Model: "openai/gpt-4o"},
		},
		Providers: map[string]ProviderConfig{"openai": {EnvVar: "OPENAI_API_KEY"}},
		Critics: CriticConfig{
			MinCritics: 1,
			MaxCritics: 1,
			Critics:    []CriticEntry{{Name: "ghost", Weight: 1}},
		},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error for a critic with no matching agent")
	}
}

func TestValidateRejectsMaxCriticsExceedingRegistered(t *testing.T) {
	cfg := &Config{
		Agents: map[string]AgentConfig{
			"builder": {Name: "builder", Model: "openai/gpt-4o"},
			"closer":  {Name: "closer", Model: "openai/gpt-4o"},
			"style":   {Name: "style", Model: "openai/gpt-4o"},
		},
		Providers: map[string]ProviderConfig{"openai": {EnvVar: "OPENAI_API_KEY"}},
		Critics: CriticConfig{
			MinCritics: 1,
			MaxCritics: 5,
			Critics:    []CriticEntry{{Name: "style", Weight: 1}},
		},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error when max_critics exceeds registered critic count")
	}
}
