package source

import (
	"context"
	"strings"
	"time"

	"github.com/lazypower/newswire/internal/store"
)

// ManualEntry is an item written by an editor. It is also the shape of
// one line in a bulk import file.
type ManualEntry struct {
	URL         string        `json:"url,omitempty"`
	ExternalID  string        `json:"external_id,omitempty"`
	Title       string        `json:"title" validate:"required_without_all=Summary Body"`
	Summary     string        `json:"summary,omitempty"`
	Body        string        `json:"body,omitempty"`
	ImageURL    string        `json:"image_url,omitempty" validate:"omitempty,url"`
	Media       []store.Media `json:"media,omitempty"`
	Source      string        `json:"source,omitempty"`
	Tags        []any         `json:"tags,omitempty"`
	PublishedAt *time.Time    `json:"published_at,omitempty"`
	Published   *bool         `json:"published,omitempty"`
	PinRank     *int          `json:"pin_rank,omitempty" validate:"omitempty,min=0"`
}

func (m *ManualEntry) Kind() store.SourceKind { return store.SourceManual }

// Build keeps the editor's text as written. Links are normalized; entries
// without a link must carry an external id.
func (m *ManualEntry) Build(ctx context.Context) (*Candidate, error) {
	it := &store.Item{
		ExternalID: strings.TrimSpace(m.ExternalID),
		Title:      strings.TrimSpace(m.Title),
		Summary:    strings.TrimSpace(m.Summary),
		Body:       strings.TrimSpace(m.Body),
		ImageURL:   strings.TrimSpace(m.ImageURL),
		Media:      m.Media,
		Source:     m.Source,
		SourceKind: store.SourceManual,
		Published:  true,
		PinRank:    m.PinRank,
	}
	if strings.TrimSpace(m.URL) != "" {
		link, err := NormalizeURL(m.URL)
		if err != nil {
			return nil, err
		}
		it.URL = link
	}
	if it.URL == "" && it.ExternalID == "" {
		return nil, ErrNoIdentity
	}
	if m.PublishedAt != nil {
		it.PublishedAt = m.PublishedAt.UnixMilli()
	}
	if m.Published != nil {
		it.Published = *m.Published
	}
	return &Candidate{Item: it, Tags: m.Tags}, nil
}
