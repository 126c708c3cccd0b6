package sensor

import (
	"sync/atomic"

	"github.com/chewxy/math32"
)

// Sensor holds the latest sample of one hardware channel.
//
// There is a single writer, the acquisition task. Readers never block and may
// observe fields from two different updates.
type Sensor struct {
	id        uint8
	raw       atomic.Uint32
	processed atomic.Uint32 // float32 bits
	timestamp atomic.Uint32
}

// New creates a sensor with the given hardware channel id.
func New(id uint8) *Sensor {
	return &Sensor{id: id}
}

// ID returns the hardware channel id.
func (s *Sensor) ID() uint8 { return s.id }

// LastRaw returns the latest raw ADC count.
func (s *Sensor) LastRaw() uint16 { return uint16(s.raw.Load()) }

// LastProcessed returns the latest processed value.
func (s *Sensor) LastProcessed() float32 { return math32.Float32frombits(s.processed.Load()) }

// LastTimestamp returns the tick counter value of the latest sample.
func (s *Sensor) LastTimestamp() uint32 { return s.timestamp.Load() }

// Update stores a raw sample, its processed value and its timestamp.
func (s *Sensor) Update(raw uint16, processed float32, ts uint32) {
	s.processed.Store(math32.Float32bits(processed))
	s.UpdateRaw(raw, ts)
}

// UpdateRaw stores a raw sample and timestamp, leaving the processed value.
func (s *Sensor) UpdateRaw(raw uint16, ts uint32) {
	s.raw.Store(uint32(raw))
	s.timestamp.Store(ts)
}
