package strategy

import (
	"context"
	"fmt"

	"github.com/angeloszaimis/fileserver/internal/backend"
)

const (
	PickRandom     = "random"
	PickRoundRobin = "round-robin"
)

type Strategy interface {
	SelectBackend(ctx context.Context, backends []*backend.Backend) *backend.Backend
}

// NewLoadTier returns the load-tier strategy choosing inside a tier with the
// named pick policy.
func NewLoadTier(pick string) (Strategy, error) {
	switch pick {
	case PickRandom, "":
		return NewLoadTierStrategy(), nil
	case PickRoundRobin:
		return &loadTierStrategy{pick: NewRoundRobinStrategy()}, nil
	default:
		return nil, fmt.Errorf("unknown pick policy %q", pick)
	}
}
