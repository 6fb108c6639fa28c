package llm

import (
	"context"
	"net/http"
	"strings"
)

// Ollama calls a local Ollama instance. Output is constrained to JSON.
type Ollama struct {
	url    string
	model  string
	client *http.Client
}

// NewOllama creates a new Ollama client.
func NewOllama(url, model string) *Ollama {
	return &Ollama{url: strings.TrimRight(url, "/"), model: model, client: newHTTPClient()}
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system"`
	Stream  bool          `json:"stream"`
	Format  string        `json:"format"`
	Options ollamaOptions `json:"options"`
}

type ollamaResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Complete calls the non-streaming generate endpoint.
func (o *Ollama) Complete(ctx context.Context, prompt string) (*Response, error) {
	in := ollamaRequest{
		Model:   o.model,
		Prompt:  prompt,
		System:  editorSystemPrompt,
		Format:  "json",
		Options: ollamaOptions{Temperature: temperature, NumPredict: maxOutput},
	}

	var out ollamaResponse
	if err := postJSON(ctx, o.client, "ollama", o.url+"/api/generate", nil, in, &out); err != nil {
		return nil, err
	}
	return &Response{
		Content:    out.Response,
		Provider:   "ollama",
		TokensUsed: out.PromptEvalCount + out.EvalCount,
	}, nil
}
