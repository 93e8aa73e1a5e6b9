package httpapi

import "github.com/go-playground/validator/v10"

// AskRequest is the body of POST /ask.
type AskRequest struct {
	Agent         string `json:"agent" validate:"required"`
	Prompt        string `json:"prompt" validate:"required"`
	SessionID     string `json:"session_id"`
	OverrideModel string `json:"override_model"`
}

// Validate runs go-playground/validator over the already-bound request as
// an explicit step separate from JSON parsing.
func (r AskRequest) Validate(v *validator.Validate) error {
	return v.Struct(r)
}

// ChainRequest is the body of POST /chain. Stages is accepted for forward
// compatibility with a future partial-pipeline mode; the current runtime
// always runs the full builder->critics->refine->closer pipeline and the
// field is otherwise unused.
type ChainRequest struct {
	Prompt        string   `json:"prompt" validate:"required"`
	SessionID     string   `json:"session_id"`
	OverrideModel string   `json:"override_model"`
	Stages        []string `json:"stages"`
}

func (r ChainRequest) Validate(v *validator.Validate) error {
	return v.Struct(r)
}
