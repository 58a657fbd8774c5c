package testutil

import (
	"sync"
	"time"
)

// Epoch is the instant a DeterministicClock starts from.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock is a thread-safe fake clock for record timestamps.
//
// Each call to Now advances the clock by one step, so timestamps are distinct,
// strictly increasing and identical across runs. Reset rewinds it for reuse.
type DeterministicClock struct {
	mu   sync.Mutex
	tick int64
	step time.Duration
}

// NewDeterministicClock creates a clock that advances one second per call.
//
// The first call to Now returns Epoch plus one second.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{step: time.Second}
}

// Now advances the clock and returns the new time. It has the signature of
// time.Now so it can be passed wherever a clock func is accepted.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tick++
	return c.at(c.tick)
}

// Current returns the last time handed out without advancing.
// Before the first Now it returns Epoch.
func (c *DeterministicClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at(c.tick)
}

// Ticks returns how many times Now has been called since the last Reset.
func (c *DeterministicClock) Ticks() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tick
}

// Reset rewinds the clock to Epoch.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tick = 0
}

func (c *DeterministicClock) at(tick int64) time.Time {
	return Epoch.Add(time.Duration(tick) * c.step)
}
