package testutil

import (
	"sync"
	"time"
)

// Epoch is the instant a DeterministicClock starts from.
var Epoch = time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)

// DeterministicClock is a reproducible timestamp source for tests.
//
// Every call to Now returns Epoch plus one second per call, so a scenario run
// twice stamps identical created_at/updated_at values.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu  sync.Mutex
	seq int64
}

// NewDeterministicClock creates a new deterministic clock.
//
// The first call to Now() returns Epoch plus one second.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Now advances the clock and returns the new instant.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return Epoch.Add(time.Duration(c.seq) * time.Second)
}

// Current returns the number of instants handed out so far.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset rewinds the clock. After Reset(), the next Now() returns Epoch plus
// one second again.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
