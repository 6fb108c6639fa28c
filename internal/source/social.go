package source

import (
	"context"
	"strings"
	"time"

	"github.com/lazypower/newswire/internal/store"
)

// SocialPost is a post pulled from a social platform. Posts have no title;
// the pipeline generates one from the text.
type SocialPost struct {
	Platform  string        `json:"platform,omitempty"` // "x", "youtube", ...
	PostID    string        `json:"post_id" validate:"required"`
	Author    string        `json:"author,omitempty"`
	Text      string        `json:"text" validate:"required"`
	Media     []store.Media `json:"media,omitempty"`
	CreatedAt time.Time     `json:"created_at,omitempty"`
}

func (p *SocialPost) Kind() store.SourceKind { return store.SourceSocial }

// ExternalID is the dedup identity of the post.
func (p *SocialPost) ExternalID() string {
	id := strings.TrimSpace(p.PostID)
	if id == "" {
		return ""
	}
	if p.Platform == "" {
		return id
	}
	return strings.ToLower(p.Platform) + ":" + id
}

func (p *SocialPost) Build(ctx context.Context) (*Candidate, error) {
	ext := p.ExternalID()
	if ext == "" {
		return nil, ErrNoIdentity
	}
	it := &store.Item{
		ExternalID: ext,
		Summary:    strings.TrimSpace(p.Text),
		Source:     p.Author,
		SourceKind: store.SourceSocial,
		Published:  true,
	}
	if !p.CreatedAt.IsZero() {
		it.PublishedAt = p.CreatedAt.UnixMilli()
	}
	for _, m := range p.Media {
		if strings.TrimSpace(m.URL) == "" {
			continue
		}
		it.Media = append(it.Media, m)
	}
	return &Candidate{Item: it}, nil
}
