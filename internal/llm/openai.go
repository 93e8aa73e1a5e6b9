package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider adapts the go-openai client to the Provider interface,
// grounded on services/llm/openai_llm.go's request/response shape.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider builds an adapter authenticated with apiKey.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{client: openai.NewClient(apiKey)}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (Reply, error) {
	ccReq := openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		Temperature: float32(req.Temperature),
	}
	if req.MaxTokens > 0 {
		ccReq.MaxCompletionTokens = req.MaxTokens
	}

	resp, err := p.client.CreateChatCompletion(ctx, ccReq)
	if err != nil {
		return Reply{}, classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return Reply{}, &ClassifiedError{Reason: ReasonEmptyResponse, Cause: errors.New("no choices returned")}
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return Reply{}, &ClassifiedError{Reason: ReasonContentFiltered, Cause: errors.New(string(choice.FinishReason))}
	}
	if strings.TrimSpace(choice.Message.Content) == "" {
		return Reply{}, &ClassifiedError{Reason: ReasonEmptyResponse, Cause: errors.New("empty completion text")}
	}

	return Reply{
		Text:             choice.Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &ClassifiedError{Reason: ReasonAuthFailed, Cause: err}
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return &Transient{Cause: err}
		}
		return err
	}
	// Network-level failures (timeouts, connection reset) are transient.
	return &Transient{Cause: err}
}
