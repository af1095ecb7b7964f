// Package loadbalancer answers "which server should take the next job" over
// a list of known backends, delegating the choice to a strategy and keeping
// per-host selection counts.
package loadbalancer
