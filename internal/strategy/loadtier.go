package strategy

import (
	"context"

	"github.com/angeloszaimis/fileserver/internal/backend"
)

// Tier is the priority bucket of a backend for one selection.
type Tier int

const (
	TierHigh Tier = iota
	TierMedium
	TierLow
)

const (
	highThreshold   = 0.5
	mediumThreshold = 1.0
)

func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "HIGH"
	case TierMedium:
		return "MEDIUM"
	case TierLow:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

// Classify maps a normalized load (load / cores) to a tier. Negative values
// mean the load could not be measured and always land in TierLow.
func Classify(normalized float64) Tier {
	switch {
	case normalized < 0:
		return TierLow
	case normalized < highThreshold:
		return TierHigh
	case normalized < mediumThreshold:
		return TierMedium
	default:
		return TierLow
	}
}

// Tiers holds the backends of one selection grouped by priority, in input order.
type Tiers struct {
	High   []*backend.Backend
	Medium []*backend.Backend
	Low    []*backend.Backend
}

// Partition samples every backend once and buckets it.
func Partition(ctx context.Context, backends []*backend.Backend) Tiers {
	var tiers Tiers

	for _, b := range backends {
		switch Classify(b.SampleLoad(ctx)) {
		case TierHigh:
			tiers.High = append(tiers.High, b)
		case TierMedium:
			tiers.Medium = append(tiers.Medium, b)
		default:
			tiers.Low = append(tiers.Low, b)
		}
	}

	return tiers
}

type loadTierStrategy struct {
	pick Strategy
}

// SelectBackend picks at random among HIGH backends, then MEDIUM ones, and
// as a last resort among every backend given, including unmeasured ones.
func (l *loadTierStrategy) SelectBackend(ctx context.Context, backends []*backend.Backend) *backend.Backend {
	if len(backends) == 0 {
		return nil
	}

	tiers := Partition(ctx, backends)

	switch {
	case len(tiers.High) > 0:
		return l.pick.SelectBackend(ctx, tiers.High)
	case len(tiers.Medium) > 0:
		return l.pick.SelectBackend(ctx, tiers.Medium)
	default:
		return l.pick.SelectBackend(ctx, backends)
	}
}

func NewLoadTierStrategy() Strategy {
	return &loadTierStrategy{
		pick: NewRandomStrategy(),
	}
}
