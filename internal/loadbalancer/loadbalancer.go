package loadbalancer

import (
	"context"
	"errors"
	"sync"

	"github.com/angeloszaimis/fileserver/internal/backend"
	"github.com/angeloszaimis/fileserver/internal/strategy"
)

var (
	ErrNoBackends  = errors.New("no backends configured")
	ErrNoSelection = errors.New("strategy returned nil backend")
)

type LoadBalancer struct {
	strategy strategy.Strategy
	mutex    sync.Mutex
	selected map[string]int64
}

// Status is a backend as last seen, without taking a new sample.
type Status struct {
	Host     string  `json:"host"`
	Cores    int     `json:"cores"`
	Load     float64 `json:"load"`
	Sampled  bool    `json:"sampled"`
	Tier     string  `json:"tier"`
	Selected int64   `json:"selected"`
}

func NewLoadBalancer(strategy strategy.Strategy) *LoadBalancer {
	return &LoadBalancer{
		strategy: strategy,
		selected: make(map[string]int64),
	}
}

// Select picks one backend. Calls are serialized so a strategy never sees
// two selections interleave.
func (lb *LoadBalancer) Select(ctx context.Context, backends []*backend.Backend) (*backend.Backend, error) {
	if len(backends) == 0 {
		return nil, ErrNoBackends
	}

	lb.mutex.Lock()
	defer lb.mutex.Unlock()

	chosen := lb.strategy.SelectBackend(ctx, backends)
	if chosen == nil {
		return nil, ErrNoSelection
	}

	lb.selected[chosen.Host()]++
	return chosen, nil
}

// Statuses reports the cached state of every backend in input order.
func (lb *LoadBalancer) Statuses(backends []*backend.Backend) []Status {
	lb.mutex.Lock()
	defer lb.mutex.Unlock()

	statuses := make([]Status, 0, len(backends))
	for _, b := range backends {
		load, ok := b.LastSample()
		st := Status{
			Host:     b.Host(),
			Cores:    b.Cores(),
			Load:     load,
			Sampled:  ok,
			Selected: lb.selected[b.Host()],
		}
		if ok {
			st.Tier = strategy.Classify(load).String()
		}
		statuses = append(statuses, st)
	}
	return statuses
}

func (lb *LoadBalancer) LoadBalancerStrategy() strategy.Strategy {
	return lb.strategy
}
