package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chainforge-ai/chainforge/internal/store"
)

const (
	defaultLimit = 20
	maxLimit     = 500
)

// queryLimit parses the "limit" query param, defaulting and clamping per
// §6's "?limit=N" contract; an invalid value falls back to the default
// rather than erroring.
func queryLimit(c *gin.Context) int {
	raw := c.Query("limit")
	if raw == "" {
		return defaultLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultLimit
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}

// handleLogs implements GET /logs?limit=N: the N most recent persisted
// ConversationRecords.
func (s *Server) handleLogs(c *gin.Context) {
	recs, err := s.conversations.Recent(c.Request.Context(), queryLimit(c), "")
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, toDTOs(recs))
}

// handleMemorySearch implements GET /memory/search?q=&agent=&limit=.
func (s *Server) handleMemorySearch(c *gin.Context) {
	q := c.Query("q")
	recs, err := s.conversations.Search(c.Request.Context(), q, c.Query("agent"), queryLimit(c))
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, toDTOs(recs))
}

// handleMemoryRecent implements GET /memory/recent?limit=&agent=.
func (s *Server) handleMemoryRecent(c *gin.Context) {
	recs, err := s.conversations.Recent(c.Request.Context(), queryLimit(c), c.Query("agent"))
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, toDTOs(recs))
}

type breakdownDTO struct {
	Key           string  `json:"key"`
	RequestCount  int64   `json:"request_count"`
	TotalTokens   int64   `json:"total_tokens"`
	TotalCostUSD  float64 `json:"total_cost_usd"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

func toBreakdownDTO(b store.AgentBreakdown) breakdownDTO {
	return breakdownDTO{
		Key:           b.Key,
		RequestCount:  b.RequestCount,
		TotalTokens:   b.TotalTokens,
		TotalCostUSD:  b.TotalCostUSD,
		AvgDurationMS: b.AvgDurationMS,
	}
}

func toBreakdownDTOs(bs []store.AgentBreakdown) []breakdownDTO {
	out := make([]breakdownDTO, len(bs))
	for i, b := range bs {
		out[i] = toBreakdownDTO(b)
	}
	return out
}

type statsResponse struct {
	Overall breakdownDTO   `json:"overall"`
	ByAgent []breakdownDTO `json:"by_agent"`
	ByModel []breakdownDTO `json:"by_model"`
}

// handleMetrics implements GET /metrics: aggregate totals and per-agent/
// per-model breakdowns over the last 24h.
func (s *Server) handleMetrics(c *gin.Context) {
	stats, err := s.conversations.StatsSince(c.Request.Context(), time.Now().Add(-24*time.Hour))
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, statsResponse{
		Overall: toBreakdownDTO(stats.Overall),
		ByAgent: toBreakdownDTOs(stats.ByAgent),
		ByModel: toBreakdownDTOs(stats.ByModel),
	})
}

// handleMemoryStats implements GET /memory/stats: totals and breakdowns
// with no time bound, since memory stats describe the whole store rather
// than a rolling window.
func (s *Server) handleMemoryStats(c *gin.Context) {
	stats, err := s.conversations.StatsSince(c.Request.Context(), time.Time{})
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, statsResponse{
		Overall: toBreakdownDTO(stats.Overall),
		ByAgent: toBreakdownDTOs(stats.ByAgent),
		ByModel: toBreakdownDTOs(stats.ByModel),
	})
}

// handleMemoryDelete implements DELETE /memory/{id}: idempotent, so a
// nonexistent id still returns 200.
func (s *Server) handleMemoryDelete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err)
		return
	}
	if err := s.conversations.Delete(c.Request.Context(), id); err != nil {
		errorResponse(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}
