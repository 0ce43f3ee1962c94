package services

import (
	"sync"
	"time"
)

// Clock assigns message timestamps that never go backwards, even if the wall
// clock does.
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// NewClock returns a Clock backed by time.Now in UTC, truncated to the
// microsecond precision Postgres stores.
func NewClock() *Clock {
	return newClockWith(func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) })
}

func newClockWith(now func() time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns a timestamp no earlier than any previously returned one.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now()
	if t.Before(c.last) {
		t = c.last
	}
	c.last = t
	return t
}
