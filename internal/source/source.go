// Package source turns raw inbound content into candidate items for the
// ingestion pipeline.
package source

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/lazypower/newswire/internal/store"
)

// ErrNoIdentity is returned when an entry has neither a link nor an id.
var ErrNoIdentity = errors.New("entry has no url or id")

// Candidate is an unclassified item plus the raw tag list supplied with it.
type Candidate struct {
	Item *store.Item
	Tags []any
}

// Builder produces a candidate from one inbound entry.
type Builder interface {
	Kind() store.SourceKind
	Build(ctx context.Context) (*Candidate, error)
}

// NormalizeURL canonicalizes an article link so the same story fetched
// over http, with a www. host or a trailing slash dedups to one item.
// Fragments are dropped; query strings are kept.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrNoIdentity
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", errors.New("url has no host: " + raw)
	}
	if u.Scheme == "http" {
		u.Scheme = "https"
	}
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}
