package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/lazypower/newswire/internal/llm"
	"github.com/lazypower/newswire/internal/logging"
	"github.com/lazypower/newswire/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Enrichment is a generated title and summary for raw post text.
type Enrichment struct {
	Title    string
	Summary  string
	Fallback bool // true when the text was truncated instead of generated
}

// Enricher turns raw text into a title and summary through an llm.Client.
// It never fails: any client error degrades to a truncated-text result.
// Calls go through a circuit breaker so an unavailable provider is not hit
// on every ingest.
type Enricher struct {
	client  llm.Client
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker[*llm.Response]
	log     zerolog.Logger
}

// NewEnricher creates an Enricher. A nil client always falls back.
func NewEnricher(client llm.Client, timeout time.Duration) *Enricher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	e := &Enricher{
		client:  client,
		timeout: timeout,
		log:     logging.Component("enrich"),
	}
	e.cb = gobreaker.NewCircuitBreaker[*llm.Response](gobreaker.Settings{
		Name:        "enrichment",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return e
}

// Enrich returns a title and summary for text.
func (e *Enricher) Enrich(ctx context.Context, text string) Enrichment {
	text = strings.TrimSpace(text)
	if e == nil || e.client == nil || text == "" {
		return fallbackEnrichment(text)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.cb.Execute(func() (*llm.Response, error) {
		return e.client.Complete(ctx, llm.EnrichPrompt(text))
	})
	if err != nil {
		logging.Ctx(ctx, e.log).Warn().Err(err).Msg("enrichment failed, using text fallback")
		return fallbackEnrichment(text)
	}
	if resp == nil {
		return fallbackEnrichment(text)
	}

	parsed, err := parseEnrichment(resp.Content)
	if err != nil {
		logging.Ctx(ctx, e.log).Warn().Err(err).Str("provider", resp.Provider).Msg("unparseable enrichment, using text fallback")
		return fallbackEnrichment(text)
	}
	if parsed.Title == "" {
		parsed.Title = fallbackEnrichment(text).Title
	}
	if parsed.Summary == "" {
		parsed.Summary = text
	}
	metrics.Enrichments.WithLabelValues("ok").Inc()
	return parsed
}

func fallbackEnrichment(text string) Enrichment {
	metrics.Enrichments.WithLabelValues("fallback").Inc()
	return Enrichment{
		Title:    truncateClean(text, fallbackTitle),
		Summary:  text,
		Fallback: true,
	}
}

// parseEnrichment decodes a {"title","summary"} object, tolerating
// markdown code fences and leading chatter around the JSON.
func parseEnrichment(content string) (Enrichment, error) {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	if i := strings.Index(s, "{"); i > 0 {
		s = s[i:]
	}
	if j := strings.LastIndex(s, "}"); j >= 0 && j < len(s)-1 {
		s = s[:j+1]
	}

	var out struct {
		Title   string `json:"title"`
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &out); err != nil {
		return Enrichment{}, fmt.Errorf("decode enrichment: %w", err)
	}
	return Enrichment{
		Title:   strings.TrimSpace(out.Title),
		Summary: strings.TrimSpace(out.Summary),
	}, nil
}
