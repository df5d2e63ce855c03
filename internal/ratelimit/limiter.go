// Package ratelimit provides per-domain token buckets so the static fast
// path never hammers one host, however many configs point at it.
package ratelimit

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter gates outbound requests per target host.
type RateLimiter interface {
	// Wait blocks until a request to the URL's host may proceed, or the
	// context is cancelled.
	Wait(ctx context.Context, urlStr string) error

	// Allow reports whether a request could proceed right now.
	Allow(urlStr string) bool
}

// DomainLimiter keeps one token bucket per host, created lazily.
type DomainLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	perHost  rate.Limit
	burst    int
}

// NewDomainLimiter creates a limiter allowing requestsPerSecond per host
// with the given burst (defaults: 5 rps, burst 10).
func NewDomainLimiter(requestsPerSecond float64, burst int) *DomainLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5.0
	}
	if burst <= 0 {
		burst = 10
	}
	return &DomainLimiter{
		limiters: make(map[string]*rate.Limiter),
		perHost:  rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

func (dl *DomainLimiter) Wait(ctx context.Context, urlStr string) error {
	host := hostOf(urlStr)
	if host == "" {
		// Unparseable URL, let the request fail where it fails.
		return nil
	}
	return dl.limiter(host).Wait(ctx)
}

func (dl *DomainLimiter) Allow(urlStr string) bool {
	host := hostOf(urlStr)
	if host == "" {
		return true
	}
	return dl.limiter(host).Allow()
}

// SetLimit overrides the rate for one host.
func (dl *DomainLimiter) SetLimit(host string, requestsPerSecond float64, burst int) {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	if lim, ok := dl.limiters[host]; ok {
		lim.SetLimit(rate.Limit(requestsPerSecond))
		lim.SetBurst(burst)
		return
	}
	dl.limiters[host] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

func (dl *DomainLimiter) limiter(host string) *rate.Limiter {
	dl.mu.RLock()
	lim, ok := dl.limiters[host]
	dl.mu.RUnlock()
	if ok {
		return lim
	}

	dl.mu.Lock()
	defer dl.mu.Unlock()
	if lim, ok := dl.limiters[host]; ok {
		return lim
	}
	lim = rate.NewLimiter(dl.perHost, dl.burst)
	dl.limiters[host] = lim
	return lim
}

func hostOf(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return u.Host
}
