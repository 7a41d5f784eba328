package server

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Policy decides what happens to a connection that arrives while every
// session slot is taken.
type Policy string

const (
	// PolicyReject closes the new connection immediately.
	PolicyReject Policy = "reject"
	// PolicyQueue holds the acceptor until a slot frees.
	PolicyQueue Policy = "queue"
)

// admission bounds concurrent sessions.
type admission struct {
	sem    *semaphore.Weighted
	policy Policy
}

func newAdmission(maxSessions int, policy Policy) *admission {
	if maxSessions < 1 {
		maxSessions = 1
	}
	if policy != PolicyReject {
		policy = PolicyQueue
	}
	return &admission{sem: semaphore.NewWeighted(int64(maxSessions)), policy: policy}
}

// acquire takes a session slot. It returns false if the connection must be
// turned away, either by policy or because ctx ended while queued.
func (a *admission) acquire(ctx context.Context) bool {
	if a.policy == PolicyReject {
		return a.sem.TryAcquire(1)
	}
	return a.sem.Acquire(ctx, 1) == nil
}

func (a *admission) release() {
	a.sem.Release(1)
}

const limiterIdleTTL = 10 * time.Minute

// ipLimiter rate limits new connections per remote IP.
type ipLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*ipBucket
	sweptAt time.Time
}

type ipBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// newIPLimiter returns nil when perMinute is 0, which allows everything.
func newIPLimiter(perMinute, burst int) *ipLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &ipLimiter{
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   burst,
		buckets: make(map[string]*ipBucket),
	}
}

func (l *ipLimiter) allow(addr net.Addr, now time.Time) bool {
	if l == nil {
		return true
	}
	ip := remoteIP(addr)
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.sweptAt) > limiterIdleTTL {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) > limiterIdleTTL {
				delete(l.buckets, k)
			}
		}
		l.sweptAt = now
	}
	b, ok := l.buckets[ip]
	if !ok {
		b = &ipBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = now
	return b.lim.AllowN(now, 1)
}

func remoteIP(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
