package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/lazypower/newswire/internal/metrics"
	"github.com/lazypower/newswire/internal/store"
)

// FeedOptions tune the ranker.
type FeedOptions struct {
	Window         time.Duration // candidate recency window, default 72h
	PoolSize       int           // candidate cap, default 300
	PersonalWeight float64       // weight of the personalization score, default 0.7
	DefaultLimit   int           // default 20
	MaxLimit       int           // default 100
}

// Ranked is one feed entry with its score breakdown.
type Ranked struct {
	Item      *store.Item
	Score     float64
	Personal  float64
	Freshness float64
}

// Feed is a ranked list for one device.
type Feed struct {
	Items        []Ranked
	Personalized bool
}

// Ranker orders recent items for a device by blended interest and
// freshness.
type Ranker struct {
	devices DeviceStore
	items   ItemStore
	opts    FeedOptions
	now     func() time.Time
}

// NewRanker creates a Ranker.
func NewRanker(devices DeviceStore, items ItemStore, opts FeedOptions) *Ranker {
	if opts.Window <= 0 {
		opts.Window = 72 * time.Hour
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 300
	}
	if opts.PersonalWeight <= 0 {
		opts.PersonalWeight = 0.7
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 20
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 100
	}
	return &Ranker{devices: devices, items: items, opts: opts, now: time.Now}
}

func (r *Ranker) limit(n int) int {
	if n <= 0 {
		return r.opts.DefaultLimit
	}
	if n > r.opts.MaxLimit {
		return r.opts.MaxLimit
	}
	return n
}

// Feed returns up to limit items for deviceID. Devices that are unknown or
// have an empty interest vector get the plain recency feed.
func (r *Ranker) Feed(ctx context.Context, deviceID string, limit int) (*Feed, error) {
	limit = r.limit(limit)

	var vec Vector
	if deviceID != "" {
		d, err := r.devices.GetDevice(ctx, deviceID)
		if err != nil {
			return nil, fmt.Errorf("feed: %w", err)
		}
		if d != nil {
			vec = d.Interest
		}
	}

	if len(vec) == 0 {
		metrics.FeedRequests.WithLabelValues("recency").Inc()
		items, err := r.items.RecentItems(ctx, 0, limit)
		if err != nil {
			return nil, fmt.Errorf("feed: %w", err)
		}
		out := make([]Ranked, len(items))
		for i, it := range items {
			out[i] = Ranked{Item: it}
		}
		return &Feed{Items: out}, nil
	}

	metrics.FeedRequests.WithLabelValues("personalized").Inc()
	now := r.now()
	pool, err := r.items.RecentItems(ctx, now.Add(-r.opts.Window).UnixMilli(), r.opts.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("feed: %w", err)
	}
	ranked := Rank(pool, vec, now, r.opts.PersonalWeight)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return &Feed{Items: ranked, Personalized: true}, nil
}

// Rank scores items as w*personal + (1-w)*freshness, where personal is the
// sum of the vector's weights over the item's categories and freshness
// falls linearly from 1 to 0 across FreshnessHorizon. Ties go to the more
// recently published item, then the higher id.
func Rank(items []*store.Item, vec Vector, now time.Time, personalWeight float64) []Ranked {
	out := make([]Ranked, len(items))
	for i, it := range items {
		personal := 0.0
		for _, c := range it.Categories {
			personal += vec[c]
		}
		fresh := freshness(now.Sub(it.PublishedTime()))
		out[i] = Ranked{
			Item:      it,
			Personal:  personal,
			Freshness: fresh,
			Score:     personalWeight*personal + (1-personalWeight)*fresh,
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Item.PublishedAt != out[j].Item.PublishedAt {
			return out[i].Item.PublishedAt > out[j].Item.PublishedAt
		}
		return out[i].Item.ID > out[j].Item.ID
	})
	return out
}
