package testutil

import (
	"fmt"
	"sync"
	"time"

	"hbk-go/internal/hbk"
)

// Fixed is the instant FixedClock starts at.
var Fixed = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// StubClock is an hbk.Clock that only moves when told to.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

var _ hbk.Clock = (*StubClock)(nil)

func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock at Fixed.
func FixedClock() *StubClock {
	return NewStubClock(Fixed)
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock by d, which may be negative.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// StubIDGenerator hands out operation IDs "op-1", "op-2", ... and remembers
// them, so tests can tell how many operations a call started.
type StubIDGenerator struct {
	mu     sync.Mutex
	issued []string
}

var _ hbk.IDGenerator = (*StubIDGenerator)(nil)

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := fmt.Sprintf("op-%d", len(g.issued)+1)
	g.issued = append(g.issued, id)
	return id
}

// Issued returns the IDs handed out so far, oldest first.
func (g *StubIDGenerator) Issued() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.issued...)
}
