package backend

import (
	"context"
	"sync"
)

// Unmeasured is the normalized load reported when a sample cannot be taken.
const Unmeasured = -1.0

// Backend represents a candidate server with its core count and load source.
type Backend struct {
	host    string
	cores   int
	sampler Sampler

	mutex      sync.Mutex
	lastSample float64
	sampled    bool
}

// New creates a Backend. cores below one are treated as one so that
// normalization never divides by zero.
func New(host string, cores int, sampler Sampler) *Backend {
	if cores < 1 {
		cores = 1
	}

	return &Backend{
		host:    host,
		cores:   cores,
		sampler: sampler,
	}
}

// Host returns the backend identity.
func (b *Backend) Host() string {
	return b.host
}

// Cores returns the core count used for normalization.
func (b *Backend) Cores() int {
	return b.cores
}

// SampleLoad takes a fresh one-minute load sample and returns it divided by
// the core count, or Unmeasured if the sampler fails.
func (b *Backend) SampleLoad(ctx context.Context) float64 {
	normalized := Unmeasured

	if b.sampler != nil {
		if load, err := b.sampler.OneMinuteLoad(ctx); err == nil && load >= 0 {
			normalized = load / float64(b.cores)
		}
	}

	b.mutex.Lock()
	b.lastSample = normalized
	b.sampled = true
	b.mutex.Unlock()

	return normalized
}

// LastSample returns the most recent normalized sample and whether one
// has been taken.
func (b *Backend) LastSample() (float64, bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.lastSample, b.sampled
}
