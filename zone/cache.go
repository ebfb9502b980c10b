package zone

import (
	"sync/atomic"
	"time"
)

// cachedInterval is the most recently resolved interval of a Cached zone.
type cachedInterval struct {
	Interval
	offset Offset
}

// Cached wraps a Zone and remembers the interval of the last lookup, so
// that repeated queries for nearby instants skip the binary search and
// tail evaluation. Results are identical to those of the wrapped zone.
// A Cached is safe for concurrent use.
type Cached struct {
	zone   *Zone
	last   atomic.Pointer[cachedInterval]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCached returns a caching view of z.
func NewCached(z *Zone) *Cached {
	return &Cached{zone: z}
}

// Zone returns the wrapped zone.
func (c *Cached) Zone() *Zone { return c.zone }

// ID returns the ID of the wrapped zone.
func (c *Cached) ID() string { return c.zone.id }

// Lookup is like Zone.Lookup.
func (c *Cached) Lookup(sec int64) (Offset, Interval) {
	if last := c.last.Load(); last != nil && last.Contains(sec) {
		c.hits.Add(1)
		return last.offset, last.Interval
	}
	c.misses.Add(1)
	off, iv := c.zone.Lookup(sec)
	c.last.Store(&cachedInterval{Interval: iv, offset: off})
	return off, iv
}

// OffsetAt returns the offset in effect at t.
func (c *Cached) OffsetAt(t time.Time) Offset {
	off, _ := c.Lookup(t.Unix())
	return off
}

// Hits returns the number of lookups answered from the cached interval.
func (c *Cached) Hits() uint64 { return c.hits.Load() }

// Misses returns the number of lookups that consulted the zone.
func (c *Cached) Misses() uint64 { return c.misses.Load() }
