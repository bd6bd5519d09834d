package ignis

import (
	"sync"
	"time"
)

// Clock is the time source the engine uses to record durations into
// [State.Times]. It allows injecting a fixed or scripted clock in tests.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the elapsed time since t.
	Since(t time.Time) time.Duration
}

// DefaultClock is the standard Clock using the system time.
type DefaultClock struct{}

// NewDefaultClock creates a new DefaultClock.
func NewDefaultClock() *DefaultClock {
	return &DefaultClock{}
}

// Now returns the current system time.
func (c *DefaultClock) Now() time.Time {
	return time.Now()
}

// Since returns the elapsed system time since t.
func (c *DefaultClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// MockClock is a Clock that returns a settable fixed time.
// Useful for testing duration recording.
type MockClock struct {
	mu      sync.Mutex
	current time.Time
}

// NewMockClock creates a MockClock fixed at the given time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{current: t}
}

// Now returns the mock's current time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Since returns the elapsed mock time since t.
func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Advance moves the mock's current time forward by d.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}
