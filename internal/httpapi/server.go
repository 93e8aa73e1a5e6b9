// Package httpapi implements §6's HTTP surface: a gin router exposing
// /ask, /chain, /logs, /metrics, /health, and the /memory/* endpoints over
// the Chain Runtime and the Conversation Store, grounded on
// services/orchestrator/main.go and routes/routes.go's router setup and
// versioned route-group layout.
package httpapi

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/chainforge-ai/chainforge/internal/chain"
	"github.com/chainforge-ai/chainforge/internal/providers"
	"github.com/chainforge-ai/chainforge/internal/store"
	"github.com/chainforge-ai/chainforge/pkg/logging"
)

// Server wires the Chain Runtime and stores into a gin.Engine.
type Server struct {
	engine        *chain.Engine
	conversations *store.ConversationStore
	registry      *providers.Registry
	log           *logging.Logger
	validate      *validator.Validate
	startedAt     time.Time
	dbPath        string

	mu            sync.Mutex
	lastRequestAt time.Time
}

// New builds a Server. registry backs the /health providers block;
// conversations backs /logs, /metrics, and /memory/*; dbPath backs
// /health's memory.db_size_mb (empty is fine — the field is just omitted).
func New(engine *chain.Engine, conversations *store.ConversationStore, registry *providers.Registry, dbPath string, log *logging.Logger) *Server {
	return &Server{
		engine:        engine,
		conversations: conversations,
		registry:      registry,
		log:           log,
		validate:      validator.New(),
		startedAt:     time.Now(),
		dbPath:        dbPath,
	}
}

// Router builds the gin.Engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())
	r.Use(otelgin.Middleware("chainforge"))

	r.GET("/health", s.handleHealth)
	r.POST("/ask", s.handleAsk)
	r.POST("/chain", s.handleChain)
	r.GET("/logs", s.handleLogs)
	r.GET("/metrics", s.handleMetrics)

	memory := r.Group("/memory")
	{
		memory.GET("/search", s.handleMemorySearch)
		memory.GET("/recent", s.handleMemoryRecent)
		memory.GET("/stats", s.handleMemoryStats)
		memory.DELETE("/:id", s.handleMemoryDelete)
	}

	return r
}

// requestLogger emits one structured line per request, matching the
// teacher's slog.Info(method, path, status, duration) shape used around its
// handlers, adapted to *logging.Logger.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.mu.Lock()
		s.lastRequestAt = start
		s.mu.Unlock()

		s.log.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// lastRequest reports the timestamp of the most recently completed
// request, or the zero Time if none has landed yet.
func (s *Server) lastRequest() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRequestAt
}

func errorResponse(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

