package crawler

import (
	"math/rand/v2"
	"sync"
	"time"
)

// DefaultUserAgents is used when a job configures no user agents.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_2_1) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.3 Safari/605.1.15",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:126.0) Gecko/20100101 Firefox/126.0",
}

// NewRand returns a random source seeded from the wall clock.
func NewRand() *rand.Rand {
	now := uint64(time.Now().UnixNano())
	return rand.New(rand.NewPCG(now, now>>1|1))
}

type randomPool struct {
	mu    sync.Mutex
	items []string
	rng   *rand.Rand
}

// newRandomPool takes ownership of rng; it must not be shared with another pool.
func newRandomPool(items []string, rng *rand.Rand) *randomPool {
	if rng == nil {
		rng = NewRand()
	}
	return &randomPool{items: cleanList(items), rng: rng}
}

func (p *randomPool) pick() string {
	if len(p.items) == 0 {
		return ""
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.items[p.rng.IntN(len(p.items))]
}

// UserAgentPool picks a user agent uniformly at random per request.
type UserAgentPool struct {
	pool *randomPool
}

// NewUserAgentPool builds a pool over agents, falling back to DefaultUserAgents.
func NewUserAgentPool(agents []string, rng *rand.Rand) *UserAgentPool {
	p := newRandomPool(agents, rng)
	if len(p.items) == 0 {
		p.items = append([]string(nil), DefaultUserAgents...)
	}
	return &UserAgentPool{pool: p}
}

// Pick returns a random user agent.
func (u *UserAgentPool) Pick() string {
	return u.pool.pick()
}

// Primary returns the first configured agent; robots rules are evaluated against it.
func (u *UserAgentPool) Primary() string {
	return u.pool.items[0]
}

// ProxyPool picks a proxy uniformly at random per request. An empty pool means direct connections.
type ProxyPool struct {
	pool *randomPool
}

// NewProxyPool builds a pool over proxies.
func NewProxyPool(proxies []string, rng *rand.Rand) *ProxyPool {
	return &ProxyPool{pool: newRandomPool(proxies, rng)}
}

// Pick returns a random proxy URL or "" when the pool is empty.
func (p *ProxyPool) Pick() string {
	return p.pool.pick()
}
