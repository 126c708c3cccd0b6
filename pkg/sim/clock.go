package sim

import (
	"sync/atomic"
	"time"
)

// Clock is a 1 MHz tick source counting from its creation. It wraps at 32 bits
// like the hardware timer it replaces.
type Clock struct {
	start  time.Time
	offset uint32
}

func NewClock() *Clock {
	return &Clock{start: time.Now()}
}

// NewClockAt returns a clock whose first tick is offset, to exercise
// wraparound early.
func NewClockAt(offset uint32) *Clock {
	return &Clock{start: time.Now(), offset: offset}
}

func (c *Clock) NowTicks() uint32 {
	return c.offset + uint32(time.Since(c.start).Microseconds())
}

// Pin is a simulated digital output.
type Pin struct {
	high    atomic.Bool
	toggles atomic.Uint64
}

func (p *Pin) High() {
	if !p.high.Swap(true) {
		p.toggles.Add(1)
	}
}

func (p *Pin) Low() {
	if p.high.Swap(false) {
		p.toggles.Add(1)
	}
}

func (p *Pin) IsHigh() bool { return p.high.Load() }

// Toggles counts level changes.
func (p *Pin) Toggles() uint64 { return p.toggles.Load() }
