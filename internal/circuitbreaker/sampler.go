package circuitbreaker

import (
	"context"

	"github.com/angeloszaimis/fileserver/internal/backend"
)

type guardedSampler struct {
	sampler backend.Sampler
	breaker *CircuitBreaker
}

// Guard wraps sampler so that it fails with ErrOpen while cb is open.
func Guard(sampler backend.Sampler, cb *CircuitBreaker) backend.Sampler {
	return &guardedSampler{sampler: sampler, breaker: cb}
}

func (g *guardedSampler) OneMinuteLoad(ctx context.Context) (float64, error) {
	if !g.breaker.Allow() {
		return 0, ErrOpen
	}

	load, err := g.sampler.OneMinuteLoad(ctx)
	if err != nil {
		g.breaker.RecordFailure()
		return 0, err
	}

	g.breaker.RecordSuccess()
	return load, nil
}
