package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chainforge-ai/chainforge/internal/chain"
	"github.com/chainforge-ai/chainforge/internal/compress"
	"github.com/chainforge-ai/chainforge/internal/config"
	chaincontext "github.com/chainforge-ai/chainforge/internal/context"
	"github.com/chainforge-ai/chainforge/internal/embedding"
	"github.com/chainforge-ai/chainforge/internal/httpapi"
	"github.com/chainforge-ai/chainforge/internal/llm"
	"github.com/chainforge-ai/chainforge/internal/observability"
	"github.com/chainforge-ai/chainforge/internal/providers"
	"github.com/chainforge-ai/chainforge/internal/secret"
	"github.com/chainforge-ai/chainforge/internal/session"
	"github.com/chainforge-ai/chainforge/internal/store"
	"github.com/chainforge-ai/chainforge/internal/tokenizer"
	"github.com/chainforge-ai/chainforge/pkg/logging"
)

// app is the fully wired dependency graph shared by every subcommand,
// following the wireApp() pattern: one construction path, no package-level
// globals, an error returned instead of log.Fatal so the caller controls
// the process exit code.
type app struct {
	cfg           *config.Config
	log           *logging.Logger
	db            *sql.DB
	dbPath        string
	conversations *store.ConversationStore
	sessions      *session.Manager
	registry      *providers.Registry
	engine        *chain.Engine
	metrics       *observability.Metrics
	metricsReg    *prometheus.Registry
	addr          string
}

// wireApp constructs every component in dependency order: configuration
// and logger first, then the provider registry, metrics, LLM adapters,
// cost table and LLM Connector, then the store and session manager, then
// the tokenizer, embedding engine, context aggregator and compressor, and
// finally the Chain Runtime itself.
func wireApp() (*app, error) {
	secret.Init()

	cfgPath := envOrDefault("CHAINFORGE_CONFIG", "./config/agents.yaml")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	log := logging.Default()

	reg := providers.New(cfg.Providers)
	metricsReg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(metricsReg)

	adapters := buildAdapters(cfg)
	costs := tokenizer.NewCostTable()
	connector := llm.New(reg, adapters, costs, cfg.Retry, log).WithMetrics(metrics)

	dbPath := cfg.Store.Path
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("chainforge: open store: %w", err)
	}

	conversations := store.NewConversationStore(db)
	sessions := session.New(store.NewSessionStore(db))

	counter := tokenizer.NewBPECounter("")
	embeddingEngine := buildEmbeddingEngine(cfg, log)
	aggregator := chaincontext.New(conversations, embeddingEngine, counter, log)
	compressor := compress.New(connector, counter, cfg.Compression, log)

	engine := chain.New(cfg, connector, aggregator, compressor, sessions, conversations, embeddingEngine, log).WithMetrics(metrics)

	return &app{
		cfg:           cfg,
		log:           log,
		db:            db,
		dbPath:        dbPath,
		conversations: conversations,
		sessions:      sessions,
		registry:      reg,
		engine:        engine,
		metrics:       metrics,
		metricsReg:    metricsReg,
		addr:          cfg.Server.Addr,
	}, nil
}

// buildAdapters constructs one llm.Provider per configured provider id.
// Under LLM_MOCK=1 every provider is backed by the mock adapter regardless
// of credentials, matching the Connector's "unregistered == disabled"
// contract for anything this function leaves out. Real credentials are
// held in a locked secret.Value between os.Getenv and the adapter
// constructor call, then destroyed immediately — the provider SDK client
// itself necessarily keeps its own copy once constructed, so this narrows
// rather than eliminates the credential's time in ordinary process memory.
func buildAdapters(cfg *config.Config) map[string]llm.Provider {
	adapters := make(map[string]llm.Provider, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		if cfg.Mock {
			adapters[name] = llm.NewMockProvider(name)
			continue
		}
		sv := secret.Hold(os.Getenv(pc.EnvVar))
		apiKey := sv.Reveal()
		if apiKey == "" {
			sv.Destroy()
			continue
		}
		switch name {
		case "openai":
			adapters[name] = llm.NewOpenAIProvider(apiKey)
		case "anthropic":
			adapters[name] = llm.NewAnthropicProvider(apiKey)
		}
		sv.Destroy()
	}
	return adapters
}

// buildEmbeddingEngine picks the OpenAI embedding engine when credentials
// are present and the run isn't mocked, otherwise falls back to the mock
// engine so memory injection degrades gracefully instead of failing startup.
func buildEmbeddingEngine(cfg *config.Config, log *logging.Logger) embedding.Engine {
	if cfg.Mock {
		return embedding.NewMockEngine()
	}
	if pc, ok := cfg.Providers["openai"]; ok {
		sv := secret.Hold(os.Getenv(pc.EnvVar))
		defer sv.Destroy()
		if apiKey := sv.Reveal(); apiKey != "" {
			return embedding.NewOpenAIEngine(apiKey, log)
		}
	}
	return embedding.NewMockEngine()
}

func (a *app) Close() error {
	secret.Purge()
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func httpServer(a *app) *httpapi.Server {
	return httpapi.New(a.engine, a.conversations, a.registry, a.dbPath, a.log)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
