package adc

import (
	"fmt"

	"github.com/itohio/goacq/pkg/config"
)

// Group identifies one ADC peripheral and its DMA stream.
type Group uint8

const (
	ADC1 Group = iota
	ADC2
	ADC3
)

// NumGroups is the number of ADC groups.
const NumGroups = 3

// Groups lists every ADC group in order.
var Groups = [NumGroups]Group{ADC1, ADC2, ADC3}

// MaxSequencesPerHalfBuffer bounds the statically reserved buffers.
const MaxSequencesPerHalfBuffer = config.MaxSequencesPerHalfBuffer

func (g Group) String() string {
	switch g {
	case ADC1:
		return "ADC1"
	case ADC2:
		return "ADC2"
	case ADC3:
		return "ADC3"
	default:
		return fmt.Sprintf("ADC?(%d)", uint8(g))
	}
}

// Valid reports whether g is a known group.
func (g Group) Valid() bool { return g < NumGroups }

// Ranks returns the number of conversions in one scan sequence of g.
func (g Group) Ranks() int {
	if !g.Valid() {
		return 0
	}
	return config.RanksPerSequence[g]
}

// FrameDescriptor describes one completed half of a double DMA buffer.
//
// Data aliases the DMA buffer and stays valid only until DMA wraps around to
// the same half again.
type FrameDescriptor struct {
	Group          Group
	Half           uint8 // 0 = first half, 1 = second half
	SequenceID     uint32
	TimestampTicks uint32 // Captured at interrupt time, end of the half buffer
	Data           []uint16
	ElementCount   uint16
	ElementSize    uint8 // Bytes per element
}
