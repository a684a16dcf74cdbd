package session

import (
	"sync"
	"time"
)

// TurnClock issues turn IDs: millisecond timestamps bumped so that every ID is
// strictly greater than the one before, even within the same millisecond.
type TurnClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

// NewTurnClock creates a clock reading now; nil uses time.Now.
func NewTurnClock(now func() time.Time) *TurnClock {
	if now == nil {
		now = time.Now
	}
	return &TurnClock{now: now}
}

// Next returns the next turn ID and the wall time it was taken at.
func (c *TurnClock) Next() (int64, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now()
	id := t.UnixMilli()
	if id <= c.last {
		id = c.last + 1
	}
	c.last = id
	return id, t
}

// Observe moves the clock past id, used after restoring a saved log.
func (c *TurnClock) Observe(id int64) {
	c.mu.Lock()
	if id > c.last {
		c.last = id
	}
	c.mu.Unlock()
}
