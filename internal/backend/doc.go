// Package backend models the candidate servers that the load-tier strategy
// chooses between. A Backend knows its host, its core count and how to sample
// its one-minute load average; it never mutates caller-owned configuration.
package backend
