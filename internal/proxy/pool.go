// Package proxy rotates outbound proxies for both the browser allocator and
// the static HTTP client.
package proxy

import (
	"net/http"
	"net/url"
	"sync"
	"time"
)

// failureCooldown is how long a proxy sits out after a reported failure.
const failureCooldown = 5 * time.Minute

// Pool rotates proxy addresses round-robin, skipping ones that failed
// recently.
type Pool struct {
	mu      sync.Mutex
	proxies []string
	index   int
	failed  map[string]time.Time
}

// NewPool creates a Pool over the given proxy addresses. An empty list is
// valid: GetNext then always returns "".
func NewPool(proxies []string) *Pool {
	return &Pool{
		proxies: proxies,
		failed:  make(map[string]time.Time),
	}
}

// GetNext returns the next healthy proxy. When every proxy is cooling down
// the current one is returned anyway; a bad proxy beats no proxy.
func (p *Pool) GetNext() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.proxies) == 0 {
		return ""
	}

	start := p.index
	for {
		addr := p.proxies[p.index]
		p.index = (p.index + 1) % len(p.proxies)

		if failedAt, ok := p.failed[addr]; ok {
			if time.Since(failedAt) < failureCooldown {
				if p.index == start {
					return addr
				}
				continue
			}
			delete(p.failed, addr)
		}
		return addr
	}
}

// MarkFailed benches a proxy for the cooldown period.
func (p *Pool) MarkFailed(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed[addr] = time.Now()
}

// MarkHealthy clears a proxy's failure status.
func (p *Pool) MarkHealthy(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.failed, addr)
}

// Size returns the number of configured proxies.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proxies)
}

// ProxyFunc adapts the pool for use as an http.Transport Proxy function,
// picking a fresh proxy per request.
func (p *Pool) ProxyFunc() func(*http.Request) (*url.URL, error) {
	return func(*http.Request) (*url.URL, error) {
		addr := p.GetNext()
		if addr == "" {
			return nil, nil
		}
		return url.Parse(addr)
	}
}
