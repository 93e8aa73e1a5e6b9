// Package config resolves the process-wide, immutable configuration for the
// orchestration runtime: agent definitions, critic registration, refinement
// and compression policy, provider credentials, and ambient service
// settings. A Config is never mutated after Load returns; a change is picked
// up by loading a new Config, which Watcher does on every write to the file
// and hands to its callback (the Chain Runtime swaps it in via
// Engine.UpdateConfig without rebuilding the rest of the runtime).
package config

import "time"

// MemoryStrategy selects how the Context Aggregator scores knowledge-slice
// candidates for a given agent.
type MemoryStrategy string

const (
	StrategySemantic MemoryStrategy = "semantic"
	StrategyHybrid   MemoryStrategy = "hybrid"
	StrategyKeywords MemoryStrategy = "keywords"
)

// KnowledgeScope controls whether the knowledge slice considers candidates
// from every agent or only from calls made by the same agent.
type KnowledgeScope string

const (
	ScopeAllAgents  KnowledgeScope = "all_agents"
	ScopeSameAgent  KnowledgeScope = "same_agent"
)

// MemoryConfig is the per-agent memory/context-injection policy.
type MemoryConfig struct {
	Enabled         bool           `yaml:"enabled"`
	Strategy        MemoryStrategy `yaml:"strategy"`
	SessionLimit    int            `yaml:"session_limit"`
	MinRelevance    float64        `yaml:"min_relevance"`
	TimeDecayHours  float64        `yaml:"time_decay_hours"`
	MaxContextTokens int           `yaml:"max_context_tokens"`
	KnowledgeScope  KnowledgeScope `yaml:"knowledge_scope"`
}

// AgentConfig describes one named agent role (builder, a critic, closer, …).
type AgentConfig struct {
	Name           string       `yaml:"name"`
	Model          string       `yaml:"model"`
	SystemPrompt   string       `yaml:"system_prompt"`
	Temperature    float64      `yaml:"temperature"`
	MaxTokens      int          `yaml:"max_tokens"`
	FallbackModels []string     `yaml:"fallback_models"`
	MemoryEnabled  bool         `yaml:"memory_enabled"`
	Memory         MemoryConfig `yaml:"memory"`
}

// CriticEntry is one critic's registration: its weight in consensus merging
// and the keyword set that drives dynamic selection.
type CriticEntry struct {
	Name     string   `yaml:"name"`
	Weight   float64  `yaml:"weight"`
	Keywords []string `yaml:"keywords"`
}

// CriticConfig is the global critic registry.
type CriticConfig struct {
	Critics           []CriticEntry `yaml:"critics"`
	MinCritics        int           `yaml:"min_critics"`
	MaxCritics        int           `yaml:"max_critics"`
	FallbackCritics   []string      `yaml:"fallback_critics"`
	DynamicSelection  bool          `yaml:"dynamic_selection_enabled"`
}

// RefinementConfig governs the bounded builder<->critic refinement loop.
type RefinementConfig struct {
	Enabled          bool     `yaml:"enabled"`
	MaxIterations    int      `yaml:"max_iterations"`
	CriticalKeywords []string `yaml:"critical_keywords"`
	IssuePatterns    []string `yaml:"issue_patterns"`
	ReselectCritics  bool     `yaml:"reselect_critics"`
}

// CompressionThresholds is the character-length trigger per agent class.
type CompressionThresholds struct {
	Standard      int `yaml:"standard"`
	MemoryEnabled int `yaml:"memory_enabled"`
	Closer        int `yaml:"closer"`
}

// CompressionConfig governs the semantic compressor.
type CompressionConfig struct {
	Model        string                `yaml:"model"`
	TargetTokens int                   `yaml:"target_tokens"`
	Thresholds   CompressionThresholds `yaml:"thresholds"`
}

// ProviderConfig names the environment variables that gate a provider.
type ProviderConfig struct {
	EnvVar        string `yaml:"env_var"`
	DisableEnvVar string `yaml:"disable_env_var"`
	BaseURL       string `yaml:"base_url,omitempty"`
}

// StoreConfig configures the Conversation Store.
type StoreConfig struct {
	Path      string `yaml:"path"`
	BackupDir string `yaml:"backup_dir"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// RetryConfig configures Connector backoff, per the spec's Open Question
// resolution: 3 retries, exponential 0.5s -> 4s.
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

// Config is the fully resolved, validated, process-wide configuration.
type Config struct {
	Agents      map[string]AgentConfig    `yaml:"agents"`
	Critics     CriticConfig              `yaml:"critics"`
	Refinement  RefinementConfig          `yaml:"refinement"`
	Compression CompressionConfig         `yaml:"compression"`
	Providers   map[string]ProviderConfig `yaml:"providers"`
	Store       StoreConfig               `yaml:"store"`
	Server      ServerConfig              `yaml:"server"`
	Retry       RetryConfig               `yaml:"retry"`

	// Mock is set from LLM_MOCK=1; not part of the YAML document.
	Mock bool `yaml:"-"`
}

// DefaultRetry returns the spec-recommended backoff schedule.
func DefaultRetry() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   4 * time.Second,
	}
}

// DefaultProviders returns the credential/disable env-var mapping for the
// providers this build ships adapters for.
func DefaultProviders() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		"openai": {
			EnvVar:        "OPENAI_API_KEY",
			DisableEnvVar: "DISABLE_OPENAI",
		},
		"anthropic": {
			EnvVar:        "ANTHROPIC_API_KEY",
			DisableEnvVar: "DISABLE_ANTHROPIC",
		},
	}
}
