// rate_limiter.go - Per-peer token buckets guarding order intake.
//
// A peer that floods the intake endpoint exhausts its own bucket without
// affecting anyone else's. Tokens accrue continuously, so a peer submitting
// at exactly the refill rate never gets rejected.

package main

import (
	"sync"
	"time"
)

type bucket struct {
	tokens float64
	last   time.Time
}

// PeerRateLimiter holds one token bucket per submitting peer.
type PeerRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	burst   float64
	perSec  float64
	nowFunc func() time.Time
}

// NewPeerRateLimiter builds a limiter allowing a burst of maxTokens and a
// sustained rate of refill tokens per period.
func NewPeerRateLimiter(maxTokens, refill int, period time.Duration) *PeerRateLimiter {
	return &PeerRateLimiter{
		buckets: make(map[string]*bucket),
		burst:   float64(maxTokens),
		perSec:  float64(refill) / period.Seconds(),
		nowFunc: time.Now,
	}
}

// Allow consumes one token from the peer's bucket, creating a full bucket on
// first contact. Reports whether the submission may proceed.
func (prl *PeerRateLimiter) Allow(peerID string) bool {
	prl.mu.Lock()
	defer prl.mu.Unlock()

	now := prl.nowFunc()
	b, ok := prl.buckets[peerID]
	if !ok {
		b = &bucket{tokens: prl.burst, last: now}
		prl.buckets[peerID] = b
	}

	b.tokens += now.Sub(b.last).Seconds() * prl.perSec
	if b.tokens > prl.burst {
		b.tokens = prl.burst
	}
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Tokens reports the peer's remaining budget, without accruing.
func (prl *PeerRateLimiter) Tokens(peerID string) float64 {
	prl.mu.Lock()
	defer prl.mu.Unlock()
	if b, ok := prl.buckets[peerID]; ok {
		return b.tokens
	}
	return prl.burst
}

// Forget drops a peer's bucket; its next submission starts a fresh one.
func (prl *PeerRateLimiter) Forget(peerID string) {
	prl.mu.Lock()
	defer prl.mu.Unlock()
	delete(prl.buckets, peerID)
}
