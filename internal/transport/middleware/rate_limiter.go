// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"math"
	"sync"
	"time"
)

// defaultMaxClients bounds the bucket map of an unauthenticated endpoint.
const defaultMaxClients = 10_000

type verdict struct {
	allowed    bool
	remaining  int
	retryAfter time.Duration
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// clientLimiter is a token bucket per client address, all sharing one rate.
// A bucket refills completely in a minute; buckets untouched for longer are
// equivalent to new ones and get dropped.
type clientLimiter struct {
	perMinute  float64
	perSecond  float64
	maxClients int
	now        func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

func newClientLimiter(limitPerMinute int, now func() time.Time) *clientLimiter {
	if limitPerMinute <= 0 {
		limitPerMinute = 1
	}
	if now == nil {
		now = time.Now
	}
	return &clientLimiter{
		perMinute:  float64(limitPerMinute),
		perSecond:  float64(limitPerMinute) / 60,
		maxClients: defaultMaxClients,
		now:        now,
		buckets:    make(map[string]*bucket, 32),
	}
}

func (l *clientLimiter) limit() int { return int(l.perMinute) }

func (l *clientLimiter) take(client string) verdict {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[client]
	if !ok {
		l.sweep(now, len(l.buckets) >= l.maxClients)
		if len(l.buckets) >= l.maxClients {
			// every slot is held by a client active within the last minute
			return verdict{retryAfter: time.Second}
		}
		b = &bucket{tokens: l.perMinute, seen: now}
		l.buckets[client] = b
	}

	if elapsed := now.Sub(b.seen).Seconds(); elapsed > 0 {
		b.tokens = math.Min(l.perMinute, b.tokens+elapsed*l.perSecond)
	}
	b.seen = now

	if b.tokens < 1 {
		wait := time.Duration(math.Ceil((1-b.tokens)/l.perSecond)) * time.Second
		return verdict{retryAfter: max(wait, time.Second)}
	}
	b.tokens--
	return verdict{allowed: true, remaining: int(b.tokens)}
}

// sweep drops idle buckets at most once a minute unless forced; callers hold l.mu.
func (l *clientLimiter) sweep(now time.Time, force bool) {
	if !force && now.Sub(l.lastSweep) < time.Minute {
		return
	}
	l.lastSweep = now
	for client, b := range l.buckets {
		if now.Sub(b.seen) > time.Minute {
			delete(l.buckets, client)
		}
	}
}
