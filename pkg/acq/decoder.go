package acq

import (
	"fmt"
	"sync/atomic"

	"github.com/itohio/goacq/pkg/adc"
)

// RankMap maps a rank within a scan sequence to a sensor id. Id 0 marks an
// unused rank.
type RankMap []uint8

// Updater is the indexed sensor view a decoder writes to. Sensor id n lives
// at index n-1.
type Updater interface {
	UpdateAt(index int, raw uint16, ts uint32)
}

// ApplySequence dispatches one scan sequence. values shorter than ranks are
// ignored.
func ApplySequence(values []uint16, ranks RankMap, group Updater, ts uint32) {
	if len(values) < len(ranks) {
		return
	}
	for rank, id := range ranks {
		if id == 0 {
			continue
		}
		group.UpdateAt(int(id)-1, values[rank], ts)
	}
}

// TicksPerSequenceEstimate is the rounded number of ticks between sequences.
func TicksPerSequenceEstimate(rateHz, ticksPerSecond uint32) uint32 {
	if rateHz == 0 {
		return 0
	}
	return (ticksPerSecond + rateHz/2) / rateHz
}

// TimestampStepper estimates the tick distance between sequences from the
// end timestamps of consecutive half buffers.
type TimestampStepper struct {
	estimate uint32
	prev     uint32
	hasPrev  bool
}

func NewTimestampStepper(estimate uint32) *TimestampStepper {
	return &TimestampStepper{estimate: estimate}
}

// Step returns (endTs - previous endTs) / sequences once a previous end
// timestamp is known, else the estimate. It records endTs.
func (s *TimestampStepper) Step(endTs uint32, sequences int) uint32 {
	step := s.estimate
	if s.hasPrev && sequences > 0 {
		step = (endTs - s.prev) / uint32(sequences)
	}
	s.prev = endTs
	s.hasPrev = true
	return step
}

func (s *TimestampStepper) Reset() {
	s.prev = 0
	s.hasPrev = false
}

// maxSequenceGap bounds what counts as lost frames rather than a restarted stream.
const maxSequenceGap = 64

// FrameDecoder turns half buffers of one ADC group into timestamped sensor
// updates.
type FrameDecoder struct {
	ranks   RankMap
	group   Updater
	stepper *TimestampStepper

	lastSequenceID uint32
	missed         atomic.Uint64
}

// NewFrameDecoder creates a decoder for a group with len(ranks) ranks per
// sequence.
func NewFrameDecoder(ranks RankMap, group Updater, estimate uint32) (*FrameDecoder, error) {
	if len(ranks) == 0 {
		return nil, fmt.Errorf("rank map is empty")
	}
	if group == nil {
		return nil, fmt.Errorf("sensor group is nil")
	}
	return &FrameDecoder{
		ranks:   ranks,
		group:   group,
		stepper: NewTimestampStepper(estimate),
	}, nil
}

// Decode dispatches every complete sequence of desc and returns how many were
// decoded. Sequence i of S gets endTs - (S-1-i)*step; the last gets endTs.
//
// When sequence ids show that frames were lost since the previous one, the
// step is measured over all half buffers in between. Larger gaps and ids
// going backwards restart the step from the estimate.
func (d *FrameDecoder) Decode(desc adc.FrameDescriptor) int {
	r := len(d.ranks)
	n := min(int(desc.ElementCount), len(desc.Data))
	s := n / r
	if s == 0 {
		return 0
	}

	spanned := s
	if d.lastSequenceID != 0 {
		// a backward id wraps to a large gap
		switch gap := desc.SequenceID - d.lastSequenceID; {
		case gap > maxSequenceGap:
			d.stepper.Reset()
		case gap > 1:
			d.missed.Add(uint64(gap - 1))
			spanned = s * int(gap)
		}
	}
	d.lastSequenceID = desc.SequenceID

	step := d.stepper.Step(desc.TimestampTicks, spanned)
	ts := desc.TimestampTicks - uint32(s-1)*step
	for i := range s {
		ApplySequence(desc.Data[i*r:(i+1)*r], d.ranks, d.group, ts)
		ts += step
	}
	return s
}

// Reset forgets the previous timestamp and sequence id.
func (d *FrameDecoder) Reset() {
	d.stepper.Reset()
	d.lastSequenceID = 0
}

// Missed returns the number of frames detected lost by sequence id gaps.
func (d *FrameDecoder) Missed() uint64 { return d.missed.Load() }
