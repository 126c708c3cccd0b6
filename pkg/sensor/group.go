package sensor

import (
	"fmt"

	"github.com/itohio/goacq/pkg/signal"
)

// Group binds an index space [0, n) to sensors and their per-channel
// processors. It is where raw ADC counts become processed readings.
type Group struct {
	sensors    []*Sensor
	processors []signal.Processor
}

// NewGroup creates a group. Nil sensors leave their index unbound. A nil
// processors slice mirrors raw values into the processed field, while a nil
// processor entry makes its index raw only.
func NewGroup(sensors []*Sensor, processors []signal.Processor) (*Group, error) {
	if len(sensors) == 0 {
		return nil, fmt.Errorf("sensor group is empty")
	}
	if processors == nil {
		processors = make([]signal.Processor, len(sensors))
		for i := range processors {
			processors[i] = signal.Identity{}
		}
	}
	if len(processors) != len(sensors) {
		return nil, fmt.Errorf("got %d processors for %d sensors", len(processors), len(sensors))
	}

	return &Group{sensors: sensors, processors: processors}, nil
}

// UpdateAt advances the processor at index exactly once and stores the
// result. Raw only indexes keep their processed value. Out of range indexes
// are ignored.
func (g *Group) UpdateAt(index int, raw uint16, ts uint32) {
	if index < 0 || index >= len(g.sensors) {
		return
	}
	s := g.sensors[index]
	if s == nil {
		return
	}
	p := g.processors[index]
	if p == nil {
		s.UpdateRaw(raw, ts)
		return
	}
	s.Update(raw, p.Process(float32(raw)), ts)
}

// Reset clears every processor's history.
func (g *Group) Reset() {
	for _, p := range g.processors {
		if p != nil {
			p.Reset()
		}
	}
}

// Len returns the size of the index space.
func (g *Group) Len() int { return len(g.sensors) }

// At returns the sensor bound to index.
func (g *Group) At(index int) (*Sensor, bool) {
	if index < 0 || index >= len(g.sensors) || g.sensors[index] == nil {
		return nil, false
	}
	return g.sensors[index], true
}
