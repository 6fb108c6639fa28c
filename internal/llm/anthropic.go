package llm

import (
	"context"
	"net/http"
)

const anthropicAPI = "https://api.anthropic.com/v1/messages"

// Anthropic calls the Anthropic Messages API.
type Anthropic struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewAnthropic creates a new Anthropic API client.
func NewAnthropic(apiKey, model string) *Anthropic {
	return &Anthropic{apiKey: apiKey, model: model, endpoint: anthropicAPI, client: newHTTPClient()}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete sends one user message with the editor system prompt.
func (a *Anthropic) Complete(ctx context.Context, prompt string) (*Response, error) {
	in := anthropicRequest{
		Model:       a.model,
		MaxTokens:   maxOutput,
		Temperature: temperature,
		System:      editorSystemPrompt,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
	}
	header := http.Header{}
	header.Set("x-api-key", a.apiKey)
	header.Set("anthropic-version", "2023-06-01")

	var out anthropicResponse
	if err := postJSON(ctx, a.client, "anthropic", a.endpoint, header, in, &out); err != nil {
		return nil, err
	}

	var text string
	for _, block := range out.Content {
		if block.Type == "" || block.Type == "text" {
			text += block.Text
		}
	}
	return &Response{
		Content:    text,
		Provider:   "anthropic",
		TokensUsed: out.Usage.InputTokens + out.Usage.OutputTokens,
	}, nil
}
