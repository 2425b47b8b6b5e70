// Package ratelimit implements per-author block-window admission
// control. It is deliberately simpler than
// pkg/concurrency/rate_limiter.go's sliding-window-over-wall-clock
// design (this node's window is over block height, not time), but
// keeps that file's mutex-protected-map shape.
package ratelimit

import "sync"

// Config controls the admission window: at most N items per author in
// any [height-W, height] range.
type Config struct {
	N int
	W int
}

// RateLimiter admits or rejects newly observed items per author per
// block window.
type RateLimiter struct {
	cfg Config

	mu      sync.Mutex
	heights map[string][]int64 // author address -> sorted block heights seen
}

// New constructs a RateLimiter from Config.
func New(cfg Config) *RateLimiter {
	return &RateLimiter{
		cfg:     cfg,
		heights: make(map[string][]int64),
	}
}

// Admit reports whether an item authored by author at blockHeight may
// be stored, given the counts already recorded via Record. It does not
// itself record the item — callers record only after a successful
// store write, so a rejected item never pollutes the window.
func (r *RateLimiter) Admit(author string, blockHeight int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	lowerBound := blockHeight - int64(r.cfg.W)
	for _, h := range r.heights[author] {
		if h >= lowerBound && h <= blockHeight {
			count++
		}
	}
	return count < r.cfg.N
}

// Record registers that an item by author at blockHeight was admitted
// and stored. Must be called only after Admit returned true and the
// store write succeeded.
func (r *RateLimiter) Record(author string, blockHeight int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.heights[author] = append(r.heights[author], blockHeight)
}

// Seed pre-populates the limiter's window for an author from heights
// already present in the store (e.g. at startup, or lazily on first
// sight of an author within a process lifetime).
func (r *RateLimiter) Seed(author string, blockHeights []int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.heights[author] = append(r.heights[author], blockHeights...)
}
