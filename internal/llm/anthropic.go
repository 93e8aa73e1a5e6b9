package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	anthropicAPIVersion = "2023-06-01"
	anthropicBaseURL    = "https://api.anthropic.com/v1/messages"
)

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      []anthropicSystemBlock `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicSystemBlock struct {
	Type         string                `json:"type"`
	Text         string                `json:"text"`
	CacheControl *anthropicCacheControl `json:"cache_control,omitempty"`
}

type anthropicCacheControl struct {
	Type string `json:"type"`
}

type anthropicResponse struct {
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
	Error      *anthropicAPIError `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicAPIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicProvider is a hand-rolled REST client; Anthropic has no official
// Go SDK in this stack, so requests are built and sent directly, grounded on
// services/llm/anthropic_llm.go.
type AnthropicProvider struct {
	httpClient *http.Client
	apiKey     string
}

// NewAnthropicProvider builds an adapter authenticated with apiKey.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiKey:     apiKey,
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (Reply, error) {
	var system []anthropicSystemBlock
	if req.System != "" {
		block := anthropicSystemBlock{Type: "text", Text: req.System}
		if len(req.System) > 1024 {
			block.CacheControl = &anthropicCacheControl{Type: "ephemeral"}
		}
		system = append(system, block)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	temp := req.Temperature
	payload := anthropicRequest{
		Model:       req.Model,
		Messages:    []anthropicMessage{{Role: "user", Content: req.User}},
		System:      system,
		MaxTokens:   maxTokens,
		Temperature: &temp,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Reply{}, fmt.Errorf("marshal anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicBaseURL, bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("build anthropic request: %w", err)
	}
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)
	httpReq.Header.Set("content-type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return Reply{}, &Transient{Cause: err}
	}
	defer resp.Body.Close()

	respBytes, _ := io.ReadAll(resp.Body)

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return Reply{}, &ClassifiedError{Reason: ReasonAuthFailed, Cause: fmt.Errorf("status %d", resp.StatusCode)}
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return Reply{}, &Transient{Cause: fmt.Errorf("status %d: %s", resp.StatusCode, respBytes)}
	}
	if resp.StatusCode != http.StatusOK {
		return Reply{}, fmt.Errorf("anthropic returned status %d: %s", resp.StatusCode, respBytes)
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBytes, &apiResp); err != nil {
		return Reply{}, fmt.Errorf("parse anthropic response: %w", err)
	}
	if apiResp.Error != nil {
		return Reply{}, errors.New(apiResp.Error.Type + ": " + apiResp.Error.Message)
	}
	if apiResp.StopReason == "content_filtered" || apiResp.StopReason == "safety" {
		return Reply{}, &ClassifiedError{Reason: ReasonContentFiltered, Cause: errors.New(apiResp.StopReason)}
	}

	var text string
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return Reply{}, &ClassifiedError{Reason: ReasonEmptyResponse, Cause: errors.New("no text content block")}
	}

	return Reply{
		Text:             text,
		PromptTokens:     apiResp.Usage.InputTokens,
		CompletionTokens: apiResp.Usage.OutputTokens,
	}, nil
}
