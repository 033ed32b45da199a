package probe

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter throttles requests per host so one board full of images from the
// same CDN does not hammer it.
type HostLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewHostLimiter allows perSecond requests per host. perSecond <= 0 disables throttling.
func NewHostLimiter(perSecond float64, burst int) *HostLimiter {
	if burst <= 0 {
		burst = 5
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// Wait blocks until a request to rawURL's host is allowed or ctx is done.
func (l *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	return l.get(parsed.Host).Wait(ctx)
}

func (l *HostLimiter) get(host string) *rate.Limiter {
	l.mu.RLock()
	limiter, ok := l.limiters[host]
	l.mu.RUnlock()
	if ok {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.limiters[host]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(l.limit, l.burst)
	l.limiters[host] = limiter
	return limiter
}
