// Package strategy defines the backend selection interface and implements:
//
//   - Random: uniform random choice among the given backends
//   - Round Robin: cycles through the given backends by position
//   - Load Tier: buckets backends by normalized one-minute load into HIGH,
//     MEDIUM and LOW priority tiers and picks uniformly at random from the
//     best non-empty tier
//
// Load Tier is an O(1)-per-server heuristic, not a lowest-load search: two
// servers in the same tier are interchangeable even when their loads differ.
// NewLoadTier swaps the in-tier random pick for round robin.
package strategy
