package auth

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// Per-principal request throttling for the gateway. A principal is an api
// key, a JWT subject or a remote address, so frontend apps, sync agents
// and unauthenticated readers each draw from their own budget.
//
// Buckets live in a bounded expirable cache rather than a plain map: sync
// agents reconnect with fresh source ports and unauthenticated traffic
// rotates addresses, and an unbounded per-ip map would grow for the life
// of the process. An evicted principal starts over with a full burst,
// which is acceptable at these limits.

const (
	defaultRPS   = 5
	defaultBurst = 10

	limiterCacheSize = 4096
	limiterTTL       = 10 * time.Minute
)

type limiterPool struct {
	cfg     SecConfig
	buckets *expirable.LRU[string, *rate.Limiter]
}

func newLimiterPool(cfg SecConfig) *limiterPool {
	return &limiterPool{
		cfg:     cfg,
		buckets: expirable.NewLRU[string, *rate.Limiter](limiterCacheSize, nil, limiterTTL),
	}
}

// Allow reports whether the principal still has budget for one request.
func (p *limiterPool) Allow(key string) bool {
	if l, ok := p.buckets.Get(key); ok {
		return l.Allow()
	}
	rps := p.cfg.RPS
	if rps <= 0 {
		rps = defaultRPS
	}
	burst := p.cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	l := rate.NewLimiter(rate.Limit(rps), burst)
	// a racing add hands out at most one extra burst, once
	p.buckets.Add(key, l)
	return l.Allow()
}
