package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lazypower/newswire/internal/logging"
	"github.com/lazypower/newswire/internal/metrics"
	"github.com/lazypower/newswire/internal/store"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrBusy is returned when a profile pass for the same device is already
// running.
var ErrBusy = errors.New("profile build already running for device")

// Vector is a per-device interest distribution over categories.
type Vector map[string]float64

// ProfileOptions tune the profile builder.
type ProfileOptions struct {
	Lookback    time.Duration // default 30 days
	DecayRate   float64       // per day, default 0.05
	Parallelism int           // concurrent devices in RebuildAll, default 4
}

// ProfileBuilder derives interest vectors from interaction history.
type ProfileBuilder struct {
	devices DeviceStore
	events  EventStore
	items   ItemStore
	opts    ProfileOptions
	now     func() time.Time
	log     zerolog.Logger

	mu       sync.Mutex
	inflight map[string]bool
}

// NewProfileBuilder creates a ProfileBuilder.
func NewProfileBuilder(devices DeviceStore, events EventStore, items ItemStore, opts ProfileOptions) *ProfileBuilder {
	if opts.Lookback <= 0 {
		opts.Lookback = 30 * 24 * time.Hour
	}
	if opts.DecayRate <= 0 {
		opts.DecayRate = DefaultDecayRate
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}
	return &ProfileBuilder{
		devices:  devices,
		events:   events,
		items:    items,
		opts:     opts,
		now:      time.Now,
		log:      logging.Component("profile"),
		inflight: make(map[string]bool),
	}
}

// Build recomputes and stores one device's interest vector. A device with
// no interactions in the lookback window gets an empty vector.
func (b *ProfileBuilder) Build(ctx context.Context, deviceID string) (Vector, error) {
	if !b.acquire(deviceID) {
		metrics.ProfileRebuilds.WithLabelValues("busy").Inc()
		return nil, ErrBusy
	}
	defer b.release(deviceID)

	now := b.now()
	since := now.Add(-b.opts.Lookback).UnixMilli()
	events, err := b.events.InteractionsSince(ctx, deviceID, since)
	if err != nil {
		metrics.ProfileRebuilds.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("build profile %s: %w", deviceID, err)
	}

	var cats map[int64][]string
	if len(events) > 0 {
		ids := make([]int64, 0, len(events))
		seen := make(map[int64]bool, len(events))
		for _, ev := range events {
			if !seen[ev.ItemID] {
				seen[ev.ItemID] = true
				ids = append(ids, ev.ItemID)
			}
		}
		cats, err = b.items.ItemCategories(ctx, ids)
		if err != nil {
			metrics.ProfileRebuilds.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("build profile %s: %w", deviceID, err)
		}
	}

	vec := ComputeVector(events, cats, now, b.opts.DecayRate)
	if err := b.devices.SetInterest(ctx, deviceID, vec); err != nil {
		metrics.ProfileRebuilds.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("build profile %s: %w", deviceID, err)
	}

	outcome := "ok"
	if len(vec) == 0 {
		outcome = "empty"
	}
	metrics.ProfileRebuilds.WithLabelValues(outcome).Inc()
	return vec, nil
}

// RebuildAll rebuilds every device's vector, several devices at a time.
// Per-device failures are logged; only cancellation is returned.
func (b *ProfileBuilder) RebuildAll(ctx context.Context) (int, error) {
	ids, err := b.devices.ListDeviceIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("rebuild profiles: %w", err)
	}

	log := logging.Ctx(ctx, b.log)
	var built atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Parallelism)
	for _, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if _, err := b.Build(gctx, id); err != nil {
				if errors.Is(err, ErrBusy) {
					return nil
				}
				log.Warn().Err(err).Str("device_id", id).Msg("profile build failed")
				return nil
			}
			built.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(built.Load()), err
	}
	log.Info().Int("devices", len(ids)).Int64("built", built.Load()).Msg("profiles rebuilt")
	return int(built.Load()), nil
}

func (b *ProfileBuilder) acquire(deviceID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inflight[deviceID] {
		return false
	}
	b.inflight[deviceID] = true
	return true
}

func (b *ProfileBuilder) release(deviceID string) {
	b.mu.Lock()
	delete(b.inflight, deviceID)
	b.mu.Unlock()
}

// ComputeVector accumulates decayed interaction scores onto every category
// of each event's item and normalizes the result to sum to 1. Events whose
// item has no known categories are ignored. The result is empty when there
// is nothing to count.
func ComputeVector(events []store.Interaction, categories map[int64][]string, now time.Time, decayRate float64) Vector {
	raw := make(Vector)
	total := 0.0
	for _, ev := range events {
		cats := categories[ev.ItemID]
		if len(cats) == 0 {
			continue
		}
		score := DecayedScore(ev.Kind, now.Sub(time.UnixMilli(ev.CreatedAt)), decayRate)
		if score <= 0 {
			continue
		}
		for _, c := range cats {
			raw[c] += score
			total += score
		}
	}
	if total == 0 {
		return Vector{}
	}
	for c := range raw {
		raw[c] /= total
	}
	return raw
}
