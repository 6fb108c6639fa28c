package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/lazypower/newswire/internal/store"
)

// LinkTagPrefix marks tags that force items to be related to each other.
const LinkTagPrefix = "link:"

// IsLinkTag reports whether a normalized tag name is a link tag.
func IsLinkTag(name string) bool {
	return strings.HasPrefix(name, LinkTagPrefix) && len(name) > len(LinkTagPrefix)
}

// NormalizeTagName trims and case-folds a tag name. It returns "" for
// names that cannot be stored.
func NormalizeTagName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == LinkTagPrefix {
		return ""
	}
	return name
}

// NormalizeTagNames normalizes raw tag input as it arrives from clients:
// non-string and blank entries are dropped, duplicates after
// normalization keep their first position.
func NormalizeTagNames(raw []any) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		name := NormalizeTagName(s)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// NormalizeTagStrings is NormalizeTagNames for string input.
func NormalizeTagStrings(raw []string) []string {
	vals := make([]any, len(raw))
	for i, s := range raw {
		vals[i] = s
	}
	return NormalizeTagNames(vals)
}

// ResolveTags normalizes raw names and finds or creates a tag for each,
// returning them in input order.
func ResolveTags(ctx context.Context, tags TagStore, raw []any) ([]store.Tag, error) {
	names := NormalizeTagNames(raw)
	if len(names) == 0 {
		return []store.Tag{}, nil
	}
	ids, err := tags.FindOrCreateTags(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("resolve tags: %w", err)
	}
	out := make([]store.Tag, len(names))
	for i := range names {
		out[i] = store.Tag{ID: ids[i], Name: names[i]}
	}
	return out, nil
}

// splitTags partitions tags into link tags and ordinary tags.
func splitTags(tags []store.Tag) (link, ordinary []store.Tag) {
	for _, t := range tags {
		if IsLinkTag(t.Name) {
			link = append(link, t)
		} else {
			ordinary = append(ordinary, t)
		}
	}
	return link, ordinary
}

func tagIDs(tags []store.Tag) []int64 {
	ids := make([]int64, len(tags))
	for i, t := range tags {
		ids[i] = t.ID
	}
	return ids
}
