package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ipLimiter allows perMinute requests per client IP, refilled evenly.
type ipLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	perMinute int
}

func newIPLimiter(perMinute int) *ipLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	return &ipLimiter{limiters: map[string]*rate.Limiter{}, perMinute: perMinute}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)
		l.limiters[ip] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
