package server

import (
	"sync"
	"time"

	"github.com/bluele/gcache"
)

const rateWindow = time.Minute

// rateLimiter admits at most limit connections per address over a sliding
// window. Idle addresses age out of the cache.
type rateLimiter struct {
	sync.Mutex

	limit  int
	window time.Duration
	seen   gcache.Cache
	now    func() time.Time
}

func newRateLimiter(limit, size int) *rateLimiter {
	return &rateLimiter{
		limit:  limit,
		window: rateWindow,
		seen:   gcache.New(size).LRU().Build(),
		now:    time.Now,
	}
}

// Allow records an attempt from addr and reports whether it is admitted.
// A limit below one admits everything.
func (l *rateLimiter) Allow(addr string) bool {
	if l.limit < 1 {
		return true
	}

	l.Lock()
	defer l.Unlock()

	now := l.now()
	var stamps []time.Time
	if v, err := l.seen.Get(addr); err == nil {
		stamps = v.([]time.Time)
	}

	cutoff := now.Add(-l.window)
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	allowed := len(kept) < l.limit
	if allowed {
		kept = append(kept, now)
	}
	_ = l.seen.SetWithExpire(addr, kept, l.window)
	return allowed
}
