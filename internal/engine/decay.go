package engine

import (
	"math"
	"time"

	"github.com/lazypower/newswire/internal/store"
)

// Interest decay:
//   - each interaction scores weight(kind) * exp(-rate * ageDays)
//   - weights: viewed 1, favorited 3, shared 5
//   - default rate 0.05/day, so a view loses ~40% of its pull in ten days
//   - events outside the lookback window are not read at all

// DefaultDecayRate is the per-day exponential decay applied to interactions.
const DefaultDecayRate = 0.05

// EventWeight returns the base weight of an interaction kind. Unknown kinds
// weigh nothing.
func EventWeight(kind store.InteractionKind) float64 {
	switch kind {
	case store.Viewed:
		return 1
	case store.Favorited:
		return 3
	case store.Shared:
		return 5
	}
	return 0
}

// DecayedScore returns the contribution of one interaction of the given kind
// and age. Negative ages count as zero.
func DecayedScore(kind store.InteractionKind, age time.Duration, rate float64) float64 {
	days := age.Hours() / 24
	if days < 0 {
		days = 0
	}
	return EventWeight(kind) * math.Exp(-rate*days)
}

// FreshnessHorizon is the age at which an item's freshness reaches zero.
// It is independent of the feed's candidate window.
const FreshnessHorizon = 72 * time.Hour

// freshness is the linear recency score used by the feed ranker: 1 for a
// brand-new item, falling to 0 at FreshnessHorizon.
func freshness(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	return math.Max(0, 1-age.Hours()/FreshnessHorizon.Hours())
}
