// Package nsrep is the nameserver-reputation sub-cache: an address-keyed
// RTT score the iterator layer uses to elect which nameserver to try next
// and to penalize ones that time out.
package nsrep

import (
	"net"
	"sync"
	"time"
)

// NSTimeout is the sentinel score recorded against an address that failed
// to answer before the overall task timeout fired.
const NSTimeout = time.Second * 4

// NSValid is the score Score reports for an address with no recorded
// sample. It equals NSTimeout, so an untried address ranks level with a
// penalized one and behind any address with a measured RTT below
// NSTimeout. No code uses it as a cut-off: an address is never excluded
// because of its score.
const NSValid = NSTimeout

// entry is one address's running reputation.
type entry struct {
	rtt     time.Duration
	updated time.Time
}

// Cache tracks RTT-derived scores per nameserver address, generalizing the
// teacher's ForwardingResolver upstreamFailedAt map (binary up/down) to a
// continuous running score, since the iterator needs to rank several
// candidate addresses rather than just skip dead ones.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
}

// New returns an empty reputation cache.
func New() *Cache {
	return &Cache{entries: make(map[string]entry)}
}

func key(addr net.IP) string {
	return addr.String()
}

// Score returns addr's current RTT estimate, or NSValid (untried) if there
// is no recorded entry yet.
func (c *Cache) Score(addr net.IP) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key(addr)]
	if !ok {
		return NSValid
	}
	return e.rtt
}

// Update records a fresh RTT sample for addr, exponentially averaged
// against any prior sample (weight 1/8 for the new sample, matching the
// smoothing knot-resolver's nsrep applies so a single slow reply doesn't
// immediately blacklist an otherwise-good nameserver).
func (c *Cache) Update(addr net.IP, rtt time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key(addr)
	e, ok := c.entries[k]
	if !ok {
		c.entries[k] = entry{rtt: rtt, updated: time.Now()}
		return
	}
	e.rtt = e.rtt - e.rtt/8 + rtt/8
	e.updated = time.Now()
	c.entries[k] = e
}

// Penalize records a timeout against addr: its score jumps to NSTimeout
// (or higher, never decreasing) so it loses the next election.
func (c *Cache) Penalize(addr net.IP) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key(addr)
	e := c.entries[k]
	if e.rtt < NSTimeout {
		e.rtt = NSTimeout
	}
	e.updated = time.Now()
	c.entries[k] = e
}

// Elect picks the lowest-scoring address from candidates. Returns false if
// candidates is empty.
func (c *Cache) Elect(candidates []net.IP) (net.IP, bool) {
	if len(candidates) == 0 {
		return nil, false
	}
	best := candidates[0]
	bestScore := c.Score(best)
	for _, addr := range candidates[1:] {
		if s := c.Score(addr); s < bestScore {
			best, bestScore = addr, s
		}
	}
	return best, true
}
