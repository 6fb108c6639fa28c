package engine

import (
	"context"
	"time"

	"github.com/lazypower/newswire/internal/classify"
	"github.com/lazypower/newswire/internal/config"
	"github.com/lazypower/newswire/internal/delivery"
	"github.com/lazypower/newswire/internal/llm"
	"github.com/lazypower/newswire/internal/store"
	"golang.org/x/time/rate"
)

// ItemStore is the item half of the persistent store.
type ItemStore interface {
	InsertItemIfAbsent(ctx context.Context, it *store.Item) (*store.Item, bool, error)
	FindItemByIdentity(ctx context.Context, url, externalID string) (*store.Item, error)
	GetItem(ctx context.Context, id int64) (*store.Item, error)
	UpdateItem(ctx context.Context, it *store.Item) error
	UpdateCategories(ctx context.Context, id int64, categories []string, top string) error
	SetItemTags(ctx context.Context, itemID int64, tagIDs []int64) error
	SetRelated(ctx context.Context, itemID int64, related []int64) error
	ItemsWithAnyTag(ctx context.Context, tagIDs []int64) ([]*store.Item, error)
	RecentItemsSharingTags(ctx context.Context, tagIDs []int64, excludeID int64, limit int) ([]*store.Item, error)
	RecentItems(ctx context.Context, since int64, limit int) ([]*store.Item, error)
	ItemsAfter(ctx context.Context, afterID int64, limit int) ([]*store.Item, error)
	ItemCategories(ctx context.Context, ids []int64) (map[int64][]string, error)
}

// TagStore resolves normalized tag names to ids.
type TagStore interface {
	FindOrCreateTags(ctx context.Context, names []string) ([]int64, error)
}

// DeviceStore holds delivery targets and their interest vectors.
type DeviceStore interface {
	GetDevice(ctx context.Context, deviceID string) (*store.Device, error)
	DeviceTokensForCategories(ctx context.Context, categories []string) ([]store.DeviceToken, error)
	PruneDevice(ctx context.Context, deviceID, token string) (bool, error)
	SetInterest(ctx context.Context, deviceID string, vector map[string]float64) error
	ListDeviceIDs(ctx context.Context) ([]string, error)
}

// EventStore reads interaction history.
type EventStore interface {
	InteractionsSince(ctx context.Context, deviceID string, since int64) ([]store.Interaction, error)
}

// Store is everything the engine needs from persistence. *store.DB
// satisfies it.
type Store interface {
	ItemStore
	TagStore
	DeviceStore
	EventStore
}

// Engine wires the pipeline and its collaborators together.
type Engine struct {
	Store      Store
	Classifier *classify.Classifier
	Enricher   *Enricher
	Pipeline   *Pipeline
	Linker     *Linker
	Targeter   *Targeter
	Profiles   *ProfileBuilder
	Ranker     *Ranker
}

// Deps are the collaborators injected into New.
type Deps struct {
	Store    Store
	Table    classify.Table // category table; DefaultTable when nil
	AutoTags classify.Table // auto-tag table; DefaultTagTable when nil
	LLM      llm.Client     // nil disables enrichment
	Sender   delivery.Sender
}

// New builds an Engine from deps and configuration.
func New(deps Deps, cfg *config.Config) *Engine {
	if deps.Table == nil {
		deps.Table = classify.DefaultTable()
	}
	if deps.AutoTags == nil {
		deps.AutoTags = classify.DefaultTagTable()
	}
	if deps.Sender == nil {
		deps.Sender = &delivery.Recorder{}
	}

	e := &Engine{
		Store:      deps.Store,
		Classifier: classify.New(deps.Table),
		Enricher:   NewEnricher(deps.LLM, cfg.LLM.Timeout),
	}
	e.Linker = NewLinker(deps.Store, deps.Store, deps.AutoTags, cfg.Feed.RelatedLimit)

	var limiter *rate.Limiter
	if cfg.Notify.BatchesPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Notify.BatchesPerSec), 1)
	}
	e.Targeter = NewTargeter(deps.Store, deps.Sender, cfg.Notify.BatchSize, limiter)
	if !cfg.Notify.Enabled {
		e.Targeter = nil
	}

	e.Profiles = NewProfileBuilder(deps.Store, deps.Store, deps.Store, ProfileOptions{
		Lookback:    time.Duration(cfg.Profile.LookbackDays) * 24 * time.Hour,
		DecayRate:   cfg.Profile.DecayRate,
		Parallelism: cfg.Profile.Parallelism,
	})
	e.Ranker = NewRanker(deps.Store, deps.Store, FeedOptions{
		Window:         time.Duration(cfg.Feed.WindowHours) * time.Hour,
		PoolSize:       cfg.Feed.PoolSize,
		PersonalWeight: cfg.Feed.PersonalWeight,
		DefaultLimit:   cfg.Feed.DefaultLimit,
		MaxLimit:       cfg.Feed.MaxLimit,
	})
	e.Pipeline = &Pipeline{
		Items:      deps.Store,
		Tags:       deps.Store,
		Classifier: e.Classifier,
		Enricher:   e.Enricher,
		Linker:     e.Linker,
		Targeter:   e.Targeter,
		UseBody:    cfg.Classifier.UseBody,
	}
	return e
}
