package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lazypower/newswire/internal/classify"
	"github.com/lazypower/newswire/internal/logging"
	"github.com/lazypower/newswire/internal/metrics"
	"github.com/lazypower/newswire/internal/store"
	"github.com/rs/zerolog"
)

// DefaultRelatedLimit caps tag-based related lists.
const DefaultRelatedLimit = 3

// Linker maintains item tags derived from the auto-tag table and each
// item's related-item list.
type Linker struct {
	items    ItemStore
	tags     TagStore
	autoTags classify.Table
	limit    int
	log      zerolog.Logger
}

// NewLinker creates a Linker. limit <= 0 uses DefaultRelatedLimit.
func NewLinker(items ItemStore, tags TagStore, autoTags classify.Table, limit int) *Linker {
	if limit <= 0 {
		limit = DefaultRelatedLimit
	}
	return &Linker{
		items:    items,
		tags:     tags,
		autoTags: autoTags,
		limit:    limit,
		log:      logging.Component("linker"),
	}
}

// AutoTag adds a tag for every auto-tag phrase of the item's top category
// found in its title or summary. Existing tags are kept. it.Tags is
// updated and persisted only when new tags were added.
func (l *Linker) AutoTag(ctx context.Context, it *store.Item) (bool, error) {
	phrases := l.autoTags.Phrases(it.TopCategory)
	if len(phrases) == 0 {
		return false, nil
	}

	text := strings.ToLower(it.Title + " " + it.Summary)
	have := make(map[string]bool, len(it.Tags))
	for _, t := range it.Tags {
		have[t.Name] = true
	}

	var add []string
	for _, p := range NormalizeTagStrings(phrases) {
		if !have[p] && strings.Contains(text, p) {
			add = append(add, p)
		}
	}
	if len(add) == 0 {
		return false, nil
	}

	ids, err := l.tags.FindOrCreateTags(ctx, add)
	if err != nil {
		return false, fmt.Errorf("auto-tag item %d: %w", it.ID, err)
	}
	tags := append([]store.Tag(nil), it.Tags...)
	for i, name := range add {
		tags = append(tags, store.Tag{ID: ids[i], Name: name})
	}
	if err := l.items.SetItemTags(ctx, it.ID, tagIDs(tags)); err != nil {
		return false, fmt.Errorf("auto-tag item %d: %w", it.ID, err)
	}
	it.Tags = tags
	return true, nil
}

// Recompute rebuilds related lists starting from itemID.
//
// With link tags, every item carrying one of the item's link tags is
// recomputed: its related list becomes the other pool members it directly
// shares a link tag with. Otherwise the item alone gets the most recent
// items sharing an ordinary tag. Each pool member is written
// independently; failures are collected and returned after the rest are
// done.
func (l *Linker) Recompute(ctx context.Context, itemID int64) error {
	it, err := l.items.GetItem(ctx, itemID)
	if err != nil {
		return fmt.Errorf("recompute related: %w", err)
	}
	if it == nil {
		return fmt.Errorf("recompute related for item %d: %w", itemID, store.ErrNotFound)
	}

	link, ordinary := splitTags(it.Tags)
	switch {
	case len(link) > 0:
		metrics.RelatedRecomputes.WithLabelValues("link").Inc()
		return l.recomputeLinkPool(ctx, link)
	case len(ordinary) > 0:
		metrics.RelatedRecomputes.WithLabelValues("tag").Inc()
		recent, err := l.items.RecentItemsSharingTags(ctx, tagIDs(ordinary), it.ID, l.limit)
		if err != nil {
			return fmt.Errorf("recompute related for item %d: %w", it.ID, err)
		}
		return l.items.SetRelated(ctx, it.ID, itemIDs(recent))
	default:
		metrics.RelatedRecomputes.WithLabelValues("none").Inc()
		return l.items.SetRelated(ctx, it.ID, []int64{})
	}
}

func (l *Linker) recomputeLinkPool(ctx context.Context, link []store.Tag) error {
	pool, err := l.items.ItemsWithAnyTag(ctx, tagIDs(link))
	if err != nil {
		return fmt.Errorf("load link pool: %w", err)
	}

	related := LinkAdjacency(pool)
	var errs []error
	for _, member := range pool {
		if err := l.items.SetRelated(ctx, member.ID, related[member.ID]); err != nil {
			logging.Ctx(ctx, l.log).Warn().Err(err).Int64("item_id", member.ID).Msg("related update failed")
			errs = append(errs, fmt.Errorf("item %d: %w", member.ID, err))
		}
	}
	return errors.Join(errs...)
}

// LinkAdjacency computes, for each pool member, the other members that
// share at least one link tag with it. Only direct sharing counts. Output
// lists keep pool order.
func LinkAdjacency(pool []*store.Item) map[int64][]int64 {
	linkSets := make([]map[int64]bool, len(pool))
	for i, it := range pool {
		link, _ := splitTags(it.Tags)
		set := make(map[int64]bool, len(link))
		for _, t := range link {
			set[t.ID] = true
		}
		linkSets[i] = set
	}

	out := make(map[int64][]int64, len(pool))
	for i, a := range pool {
		rel := []int64{}
		for j, b := range pool {
			if i == j || a.ID == b.ID {
				continue
			}
			if intersects(linkSets[i], linkSets[j]) {
				rel = append(rel, b.ID)
			}
		}
		out[a.ID] = rel
	}
	return out
}

func intersects(a, b map[int64]bool) bool {
	if len(b) < len(a) {
		a, b = b, a
	}
	for k := range a {
		if b[k] {
			return true
		}
	}
	return false
}

func itemIDs(items []*store.Item) []int64 {
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}
