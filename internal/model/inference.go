package model

import "encoding/json"

// Defaults applied to a dashboard test request.
const (
	DefaultTestModel        = "openai/gpt-oss-20b"
	DefaultTestInstructions = "You are a helpful assistant."
)

// DefaultTestInput is the conversation sent when the caller supplies none.
var DefaultTestInput = json.RawMessage(`[{"role":"user","content":"Tell me a joke"}]`)

// TestRequest is the body accepted by POST /api/test-request.
type TestRequest struct {
	APIKey       string          `json:"apiKey"`
	Model        string          `json:"model,omitempty"`
	Instructions string          `json:"instructions,omitempty"`
	Input        json.RawMessage `json:"input,omitempty"`
	Stream       *bool           `json:"stream,omitempty"`
	WebSearch    *bool           `json:"web_search,omitempty"`
}

// InferenceRequest is the body forwarded to the inference API.
type InferenceRequest struct {
	Model        string          `json:"model"`
	Instructions string          `json:"instructions"`
	Input        json.RawMessage `json:"input"`
	Stream       bool            `json:"stream"`
	WebSearch    bool            `json:"web_search"`
}

// WithDefaults fills unset fields of a test request.
func (r *TestRequest) WithDefaults() InferenceRequest {
	out := InferenceRequest{
		Model:        r.Model,
		Instructions: r.Instructions,
		Input:        r.Input,
	}
	if out.Model == "" {
		out.Model = DefaultTestModel
	}
	if out.Instructions == "" {
		out.Instructions = DefaultTestInstructions
	}
	if len(out.Input) == 0 || string(out.Input) == "null" {
		out.Input = DefaultTestInput
	}
	if r.Stream != nil {
		out.Stream = *r.Stream
	}
	if r.WebSearch != nil {
		out.WebSearch = *r.WebSearch
	}
	return out
}
