package strategy

import (
	"context"
	"math/rand/v2"

	"github.com/angeloszaimis/fileserver/internal/backend"
)

type randomStrategy struct{}

func (r *randomStrategy) SelectBackend(_ context.Context, backends []*backend.Backend) *backend.Backend {
	if len(backends) == 0 {
		return nil
	}

	index := rand.IntN(len(backends))
	return backends[index]
}

func NewRandomStrategy() Strategy {
	return &randomStrategy{}
}
