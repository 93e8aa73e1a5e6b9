package httpapi

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chainforge-ai/chainforge/internal/providers"
)

type healthStatus string

const (
	statusHealthy   healthStatus = "healthy"
	statusDegraded  healthStatus = "degraded"
	statusUnhealthy healthStatus = "unhealthy"
)

type providerHealth struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

type memoryHealth struct {
	Connected          bool       `json:"connected"`
	TotalConversations int64      `json:"total_conversations"`
	DBSizeMB           float64    `json:"db_size_mb"`
	LastConversationAt *time.Time `json:"last_conversation_at,omitempty"`
}

type healthResponse struct {
	Status        healthStatus              `json:"status"`
	Providers     map[string]providerHealth `json:"providers"`
	Memory        memoryHealth              `json:"memory"`
	UptimeSeconds float64                   `json:"uptime_seconds"`
	LastRequestAt *time.Time                `json:"last_request_at,omitempty"`
	Stats24h      breakdownDTO              `json:"stats_24h"`
}

// handleHealth implements GET /health per §6: unhealthy with no available
// providers, degraded with fewer than two or a disconnected store,
// otherwise healthy.
func (s *Server) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()

	providerStatuses := s.registry.All()
	providerOut := make(map[string]providerHealth, len(providerStatuses))
	for name, st := range providerStatuses {
		providerOut[name] = providerHealth{Available: st.Available, Reason: st.Reason}
	}

	mem := memoryHealth{Connected: true}
	total, err := s.conversations.TotalConversations(ctx)
	if err != nil {
		mem.Connected = false
	} else {
		mem.TotalConversations = total
		if last, lerr := s.conversations.LastConversationAt(ctx); lerr == nil {
			mem.LastConversationAt = last
		}
	}
	if s.dbPath != "" {
		if info, serr := os.Stat(s.dbPath); serr == nil {
			mem.DBSizeMB = float64(info.Size()) / (1024 * 1024)
		}
	}

	stats, err := s.conversations.Stats24h(ctx)
	var statsOut breakdownDTO
	if err == nil {
		statsOut = breakdownDTO{
			RequestCount: stats.TotalConversations,
			TotalTokens:  stats.TotalTokens,
			TotalCostUSD: stats.TotalCostUSD,
		}
	}

	status := computeStatus(s.registry, mem)

	resp := healthResponse{
		Status:        status,
		Providers:     providerOut,
		Memory:        mem,
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
		Stats24h:      statsOut,
	}
	if lr := s.lastRequest(); !lr.IsZero() {
		resp.LastRequestAt = &lr
	}

	httpStatus := http.StatusOK
	if status == statusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, resp)
}

func computeStatus(registry *providers.Registry, mem memoryHealth) healthStatus {
	available := registry.AvailableCount()
	switch {
	case available == 0:
		return statusUnhealthy
	case available < 2, !mem.Connected:
		return statusDegraded
	default:
		return statusHealthy
	}
}
