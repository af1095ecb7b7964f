package strategy

import (
	"context"

	"go.uber.org/atomic"

	"github.com/angeloszaimis/fileserver/internal/backend"
)

type roundRobinStrategy struct {
	current atomic.Uint64
}

// SelectBackend cycles through backends by position, so a caller that
// passes lists of different lengths still gets an even spread per list.
func (rb *roundRobinStrategy) SelectBackend(_ context.Context, backends []*backend.Backend) *backend.Backend {
	if len(backends) == 0 {
		return nil
	}

	n := rb.current.Inc()
	index := (n - 1) % uint64(len(backends))

	return backends[index]
}

func NewRoundRobinStrategy() Strategy {
	return &roundRobinStrategy{}
}
