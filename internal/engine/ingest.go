package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/lazypower/newswire/internal/classify"
	"github.com/lazypower/newswire/internal/llm"
	"github.com/lazypower/newswire/internal/logging"
	"github.com/lazypower/newswire/internal/metrics"
	"github.com/lazypower/newswire/internal/source"
	"github.com/lazypower/newswire/internal/store"
)

// Pipeline is the single ingestion path for every source kind.
type Pipeline struct {
	Items      ItemStore
	Tags       TagStore
	Classifier *classify.Classifier
	Enricher   *Enricher
	Linker     *Linker
	Targeter   *Targeter // nil disables notifications
	UseBody    bool      // classify on body text as well as title and summary

	now func() time.Time
}

// Edit is an editorial change to a stored item. Nil fields are left alone.
type Edit struct {
	Title     *string
	Summary   *string
	Body      *string
	ImageURL  *string
	Tags      []any // replaces the tag list when non-nil
	Published *bool
	PinRank   *int
	ClearPin  bool
}

func (p *Pipeline) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

// Ingest builds a candidate from b and ingests it.
func (p *Pipeline) Ingest(ctx context.Context, b source.Builder) (*store.Item, bool, error) {
	c, err := b.Build(ctx)
	if err != nil {
		metrics.ItemsIngested.WithLabelValues(string(b.Kind()), "rejected").Inc()
		return nil, false, fmt.Errorf("build %s candidate: %w", b.Kind(), err)
	}
	return p.IngestCandidate(ctx, c)
}

// IngestCandidate classifies and stores a candidate unless an item with
// the same URL or external ID exists, in which case the existing item is
// returned unchanged with created=false. Newly created items are then
// announced to subscribed devices, auto-tagged and linked. Failures in
// those follow-up steps are logged, not returned.
func (p *Pipeline) IngestCandidate(ctx context.Context, c *source.Candidate) (*store.Item, bool, error) {
	it := c.Item
	kind := string(it.SourceKind)
	log := logging.Ctx(ctx, logging.Component("pipeline"))

	// Known identities skip enrichment; the insert below still guards the
	// race between two new candidates.
	if (it.URL == "") != (it.ExternalID == "") {
		existing, err := p.Items.FindItemByIdentity(ctx, it.URL, it.ExternalID)
		if err != nil {
			metrics.ItemsIngested.WithLabelValues(kind, "error").Inc()
			return nil, false, fmt.Errorf("ingest: %w", err)
		}
		if existing != nil {
			metrics.ItemsIngested.WithLabelValues(kind, "existing").Inc()
			log.Debug().Int64("item_id", existing.ID).Str("url", existing.URL).Str("external_id", existing.ExternalID).Msg("duplicate item")
			return existing, false, nil
		}
	}

	if it.Title == "" {
		p.enrich(ctx, it)
	}
	if err := validateCandidate(it); err != nil {
		metrics.ItemsIngested.WithLabelValues(kind, "rejected").Inc()
		return nil, false, err
	}
	p.prepare(it)

	// Tags are attached after the insert so duplicates create no tags.
	it.Tags = nil
	existing, created, err := p.Items.InsertItemIfAbsent(ctx, it)
	if err != nil {
		metrics.ItemsIngested.WithLabelValues(kind, "error").Inc()
		return nil, false, fmt.Errorf("ingest: %w", err)
	}
	if !created {
		metrics.ItemsIngested.WithLabelValues(kind, "existing").Inc()
		log.Debug().Int64("item_id", existing.ID).Str("url", existing.URL).Str("external_id", existing.ExternalID).Msg("duplicate item")
		return existing, false, nil
	}
	metrics.ItemsIngested.WithLabelValues(kind, "created").Inc()

	it.Tags = []store.Tag{}
	if len(c.Tags) > 0 {
		tags, err := ResolveTags(ctx, p.Tags, c.Tags)
		if err != nil {
			log.Warn().Err(err).Int64("item_id", it.ID).Msg("tag resolution failed")
		} else if len(tags) > 0 {
			if err := p.Items.SetItemTags(ctx, it.ID, tagIDs(tags)); err != nil {
				log.Warn().Err(err).Int64("item_id", it.ID).Msg("tag write failed")
			} else {
				it.Tags = tags
			}
		}
	}

	log.Info().
		Int64("item_id", it.ID).
		Str("source", kind).
		Str("top", it.TopCategory).
		Strs("categories", it.Categories).
		Msg("item stored")

	p.afterWrite(ctx, it)
	return it, true, nil
}

// Update applies an editorial edit: the item is reclassified and stored,
// then notification, auto-tagging and linking run again. No dedup check is
// made.
func (p *Pipeline) Update(ctx context.Context, id int64, e Edit) (*store.Item, error) {
	it, err := p.Items.GetItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("update item %d: %w", id, err)
	}
	if it == nil {
		return nil, fmt.Errorf("update item %d: %w", id, store.ErrNotFound)
	}

	if e.Title != nil {
		it.Title = strings.TrimSpace(*e.Title)
	}
	if e.Summary != nil {
		it.Summary = *e.Summary
	}
	if e.Body != nil {
		it.Body = *e.Body
	}
	if e.ImageURL != nil {
		it.ImageURL = strings.TrimSpace(*e.ImageURL)
	}
	if e.Published != nil {
		it.Published = *e.Published
	}
	if e.PinRank != nil {
		pin := *e.PinRank
		it.PinRank = &pin
	}
	if e.ClearPin {
		it.PinRank = nil
	}
	if err := validateCandidate(it); err != nil {
		return nil, fmt.Errorf("update item %d: %w", id, err)
	}
	p.prepare(it)

	if e.Tags != nil {
		tags, err := ResolveTags(ctx, p.Tags, e.Tags)
		if err != nil {
			return nil, fmt.Errorf("update item %d: %w", id, err)
		}
		it.Tags = tags
	}
	if err := p.Items.UpdateItem(ctx, it); err != nil {
		return nil, fmt.Errorf("update item %d: %w", id, err)
	}
	metrics.ItemsUpdated.Inc()

	p.afterWrite(ctx, it)
	return it, nil
}

// Backfill reclassifies every stored item against the current table and
// writes back the ones whose classification changed.
func (p *Pipeline) Backfill(ctx context.Context) (int, error) {
	const page = 200
	log := logging.Ctx(ctx, logging.Component("pipeline"))

	changed := 0
	var after int64
	for {
		items, err := p.Items.ItemsAfter(ctx, after, page)
		if err != nil {
			return changed, fmt.Errorf("backfill: %w", err)
		}
		if len(items) == 0 {
			break
		}
		for _, it := range items {
			after = it.ID
			res := p.Classifier.Classify(p.classifyText(it))
			if res.Top == it.TopCategory && slices.Equal(res.Categories, it.Categories) {
				continue
			}
			if err := p.Items.UpdateCategories(ctx, it.ID, res.Categories, res.Top); err != nil {
				log.Warn().Err(err).Int64("item_id", it.ID).Msg("backfill update failed")
				continue
			}
			changed++
		}
		if err := ctx.Err(); err != nil {
			return changed, err
		}
	}
	log.Info().Int("changed", changed).Msg("classification backfill done")
	return changed, nil
}

func (p *Pipeline) enrich(ctx context.Context, it *store.Item) {
	text := it.Body
	if text == "" {
		text = it.Summary
	}
	if strings.TrimSpace(text) == "" {
		return
	}
	en := p.Enricher.Enrich(ctx, text)
	it.Title = en.Title
	if it.Summary == "" || !en.Fallback {
		it.Summary = en.Summary
	}
}

// prepare fills the derived fields: classification, fallback image,
// publish time and language.
func (p *Pipeline) prepare(it *store.Item) {
	res := p.Classifier.Classify(p.classifyText(it))
	it.Categories = res.Categories
	it.TopCategory = res.Top

	if it.ImageURL == "" && len(it.Media) > 0 {
		it.ImageURL = it.Media[0].URL
	}
	if it.PublishedAt == 0 {
		it.PublishedAt = p.clock().UnixMilli()
	}
	if it.Lang == "" {
		it.Lang = "en"
		if llm.ContainsTelugu(it.Title + it.Summary) {
			it.Lang = "te"
		}
	}
}

func (p *Pipeline) classifyText(it *store.Item) string {
	text := it.Title + " " + it.Summary
	if p.UseBody && it.Body != "" {
		text += " " + it.Body
	}
	return text
}

func (p *Pipeline) afterWrite(ctx context.Context, it *store.Item) {
	log := logging.Ctx(ctx, logging.Component("pipeline"))

	if p.Targeter != nil && it.Published {
		if _, err := p.Targeter.Notify(ctx, it); err != nil {
			log.Warn().Err(err).Int64("item_id", it.ID).Msg("notify failed")
		}
	}
	if p.Linker == nil {
		return
	}
	if _, err := p.Linker.AutoTag(ctx, it); err != nil {
		log.Warn().Err(err).Int64("item_id", it.ID).Msg("auto-tag failed")
	}
	if err := p.Linker.Recompute(ctx, it.ID); err != nil {
		log.Warn().Err(err).Int64("item_id", it.ID).Msg("related recompute failed")
	}
}
