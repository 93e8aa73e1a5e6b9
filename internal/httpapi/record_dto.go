package httpapi

import (
	"time"

	"github.com/chainforge-ai/chainforge/internal/store"
)

// conversationDTO is the §6 wire shape for a persisted ConversationRecord:
// every field except the embedding blob, which is never exposed over the
// HTTP surface.
type conversationDTO struct {
	ID               int64     `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	Agent            string    `json:"agent"`
	Model            string    `json:"model"`
	Provider         string    `json:"provider"`
	Prompt           string    `json:"prompt"`
	Response         string    `json:"response"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	DurationMS       float64   `json:"duration_ms"`
	EstimatedCostUSD float64   `json:"estimated_cost_usd"`
	FallbackUsed     bool      `json:"fallback_used"`
	SessionID        *string   `json:"session_id,omitempty"`
}

func toDTO(rec store.ConversationRecord) conversationDTO {
	return conversationDTO{
		ID:               rec.ID,
		Timestamp:        rec.Timestamp,
		Agent:            rec.Agent,
		Model:            rec.Model,
		Provider:         rec.Provider,
		Prompt:           rec.Prompt,
		Response:         rec.Response,
		PromptTokens:     rec.PromptTokens,
		CompletionTokens: rec.CompletionTokens,
		TotalTokens:      rec.TotalTokens,
		DurationMS:       rec.DurationMS,
		EstimatedCostUSD: rec.EstimatedCostUSD,
		FallbackUsed:     rec.FallbackUsed,
		SessionID:        rec.SessionID,
	}
}

func toDTOs(recs []store.ConversationRecord) []conversationDTO {
	out := make([]conversationDTO, len(recs))
	for i, rec := range recs {
		out[i] = toDTO(rec)
	}
	return out
}
