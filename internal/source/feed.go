package source

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/lazypower/newswire/internal/store"
)

var (
	imgSrcRe   = regexp.MustCompile(`(?i)<img[^>]+src\s*=\s*["']([^"']+)["']`)
	tagRe      = regexp.MustCompile(`(?s)<[^>]*>`)
	blockTagRe = regexp.MustCompile(`(?i)</?(p|br|div|li|h[1-6]|blockquote)[^>]*>`)
	spaceRe    = regexp.MustCompile(`[ \t\f\v]+`)
	blankRe    = regexp.MustCompile(`\n\s*\n+`)
)

// FeedEntry is one entry from a syndication feed.
type FeedEntry struct {
	Link          string    `json:"link" validate:"required"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"` // HTML
	Content       string    `json:"content,omitempty"`     // full HTML body, if the feed carries it
	PubDate       time.Time `json:"pub_date,omitempty"`
	EnclosureURL  string    `json:"enclosure_url,omitempty"`
	EnclosureType string    `json:"enclosure_type,omitempty"`
	SourceName    string    `json:"source_name,omitempty"`
	Categories    []string  `json:"categories,omitempty"` // feed-supplied categories, kept as tags
}

func (e *FeedEntry) Kind() store.SourceKind { return store.SourceFeed }

// Build normalizes the link, reduces the HTML to plain text and picks a
// main image from the enclosure or the first inline image.
func (e *FeedEntry) Build(ctx context.Context) (*Candidate, error) {
	link, err := NormalizeURL(e.Link)
	if err != nil {
		return nil, fmt.Errorf("feed entry link: %w", err)
	}
	base, _ := url.Parse(link)

	summary := CleanHTML(e.Description, base)
	body := ""
	if e.Content != "" {
		body = CleanHTML(e.Content, base)
	}

	it := &store.Item{
		URL:        link,
		Title:      html.UnescapeString(strings.TrimSpace(e.Title)),
		Summary:    summary,
		Body:       body,
		Source:     e.SourceName,
		SourceKind: store.SourceFeed,
		Published:  true,
	}
	if !e.PubDate.IsZero() {
		it.PublishedAt = e.PubDate.UnixMilli()
	}

	if img := e.image(); img != "" {
		it.ImageURL = img
		it.Media = []store.Media{{URL: img, Kind: "image"}}
	}

	tags := make([]any, len(e.Categories))
	for i, c := range e.Categories {
		tags[i] = c
	}
	return &Candidate{Item: it, Tags: tags}, nil
}

func (e *FeedEntry) image() string {
	if e.EnclosureURL != "" && (e.EnclosureType == "" || strings.HasPrefix(e.EnclosureType, "image/")) {
		return strings.TrimSpace(e.EnclosureURL)
	}
	for _, h := range []string{e.Content, e.Description} {
		if m := imgSrcRe.FindStringSubmatch(h); m != nil {
			return html.UnescapeString(m[1])
		}
	}
	return ""
}

// CleanHTML extracts readable text from an HTML fragment. Readability
// extraction is tried first; markup it cannot handle is tag-stripped.
func CleanHTML(s string, base *url.URL) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "<") {
		return html.UnescapeString(s)
	}
	if article, err := readability.FromReader(strings.NewReader(s), base); err == nil {
		if text := strings.TrimSpace(article.TextContent); text != "" {
			return collapseSpace(text)
		}
	}
	return StripTags(s)
}

// StripTags removes markup, keeping paragraph breaks.
func StripTags(s string) string {
	s = blockTagRe.ReplaceAllString(s, "\n")
	s = tagRe.ReplaceAllString(s, "")
	return collapseSpace(html.UnescapeString(s))
}

func collapseSpace(s string) string {
	s = spaceRe.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")
	s = blankRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
