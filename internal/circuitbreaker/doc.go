// Package circuitbreaker stops repeatedly sampling a backend whose load
// cannot be read.
//
// After threshold consecutive sampling failures the breaker opens and the
// guarded sampler fails fast with ErrOpen, which the selector treats as an
// unmeasured backend. Once the cooldown has passed a single probe is let
// through: success closes the breaker, failure opens it again.
//
//	registry := circuitbreaker.NewRegistry(3, 30*time.Second)
//	sampler := circuitbreaker.Guard(procSampler, registry.Breaker("app-1"))
//	b := backend.New("app-1", 8, sampler)
package circuitbreaker
