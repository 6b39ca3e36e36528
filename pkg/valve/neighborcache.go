package valve

import (
	"net"
	"sync"
	"time"
)

// Neighbor is one resolved (or resolving) IP->MAC binding for a route
// manager.
type Neighbor struct {
	IP           net.IP
	MAC          net.HardwareAddr // nil while unresolved
	Port         int
	LastRefresh  time.Time
	RetryCount   int
	BackoffUntil time.Time
}

// NeighborCache holds one IP version's neighbor table for a VLAN.
type NeighborCache struct {
	mu      sync.Mutex
	entries map[string]*Neighbor
}

// NewNeighborCache builds an empty cache.
func NewNeighborCache() *NeighborCache {
	return &NeighborCache{entries: make(map[string]*Neighbor)}
}

// Get returns the neighbor entry for ip, if any.
func (c *NeighborCache) Get(ip net.IP) (*Neighbor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.entries[ip.String()]
	return n, ok
}

// Put inserts or replaces the entry for n.IP.
func (c *NeighborCache) Put(n *Neighbor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[n.IP.String()] = n
}

// Delete removes the entry for ip.
func (c *NeighborCache) Delete(ip net.IP) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, ip.String())
}

// All returns a snapshot of every neighbor entry.
func (c *NeighborCache) All() []*Neighbor {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Neighbor, 0, len(c.entries))
	for _, n := range c.entries {
		out = append(out, n)
	}
	return out
}

// Len reports how many neighbor entries are cached.
func (c *NeighborCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
