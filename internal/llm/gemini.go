package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

// Gemini calls the Gemini generateContent REST endpoint.
type Gemini struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewGemini creates a new Gemini API client.
func NewGemini(apiKey, model string) *Gemini {
	return &Gemini{apiKey: apiKey, model: model, baseURL: geminiBaseURL, client: newHTTPClient()}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMimeType string  `json:"responseMimeType"`
}

type geminiRequest struct {
	SystemInstruction geminiContent          `json:"systemInstruction"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// Complete sends a prompt to Gemini and joins the parts of the first
// candidate.
func (g *Gemini) Complete(ctx context.Context, prompt string) (*Response, error) {
	in := geminiRequest{
		SystemInstruction: geminiContent{Parts: []geminiPart{{Text: editorSystemPrompt}}},
		Contents:          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      temperature,
			MaxOutputTokens:  maxOutput,
			ResponseMimeType: "application/json",
		},
	}
	header := http.Header{}
	header.Set("x-goog-api-key", g.apiKey)

	var out geminiResponse
	url := fmt.Sprintf("%s/%s:generateContent", g.baseURL, g.model)
	if err := postJSON(ctx, g.client, "gemini", url, header, in, &out); err != nil {
		return nil, err
	}
	if len(out.Candidates) == 0 {
		return nil, errors.New("gemini response missing candidates")
	}

	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return &Response{
		Content:    sb.String(),
		Provider:   "gemini",
		TokensUsed: out.UsageMetadata.TotalTokenCount,
	}, nil
}
