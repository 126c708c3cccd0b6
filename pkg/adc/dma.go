package adc

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/itohio/goacq/pkg/config"
)

// Peripheral is one ADC with its circular DMA channel.
type Peripheral interface {
	Calibrate() error
	StartDMA(buf []uint16) error
	StopDMA()
}

// TriggerConfig parameterizes the external conversion trigger.
type TriggerConfig struct {
	ChannelRateHz uint32
	ADC2PhaseUs   uint32
	ADC3PhaseUs   uint32
}

// TriggerSchedule drives the conversion triggers of every ADC group.
type TriggerSchedule interface {
	Start(cfg TriggerConfig) error
	Stop()
}

// DMA manages the double-buffered circular DMA of every ADC group and turns
// half/full complete interrupts into frame descriptors.
type DMA struct {
	cfg     config.AcquisitionConfig
	periphs [NumGroups]Peripheral
	trigger TriggerSchedule
	frames  chan<- FrameDescriptor

	buffers [NumGroups][]uint16

	// mu stands in for masking interrupts around state shared with handlers.
	mu         sync.Mutex
	running    bool
	halfLen    [NumGroups]int
	sequenceID [NumGroups]uint32

	calibrated bool
	dropped    atomic.Uint64
}

// NewDMA reserves every group's buffer up front. Frames are posted to frames
// without blocking.
func NewDMA(cfg config.AcquisitionConfig, periphs [NumGroups]Peripheral, trigger TriggerSchedule, frames chan<- FrameDescriptor) (*DMA, error) {
	for _, g := range Groups {
		if periphs[g] == nil {
			return nil, fmt.Errorf("missing %s peripheral", g)
		}
	}
	if trigger == nil {
		return nil, fmt.Errorf("missing trigger schedule")
	}
	if frames == nil {
		return nil, fmt.Errorf("missing frame queue")
	}

	d := &DMA{
		cfg:     cfg,
		periphs: periphs,
		trigger: trigger,
		frames:  frames,
	}
	for _, g := range Groups {
		d.buffers[g] = make([]uint16, 2*MaxSequencesPerHalfBuffer*g.Ranks())
	}
	return d, nil
}

// Start calibrates once, starts DMA on every group and then the trigger.
// Any failure leaves everything stopped.
func (d *DMA) Start() error {
	d.Stop()

	if err := d.calibrateOnce(); err != nil {
		d.Stop()
		return fmt.Errorf("failed to calibrate adcs: %w", err)
	}

	sequences := int(d.cfg.SequencesPerHalfBuffer)
	if sequences < 1 || sequences > MaxSequencesPerHalfBuffer {
		d.Stop()
		return fmt.Errorf("sequences per half buffer must be in [1, %d], got %d", MaxSequencesPerHalfBuffer, sequences)
	}

	d.mu.Lock()
	for _, g := range Groups {
		d.halfLen[g] = sequences * g.Ranks()
	}
	d.running = true
	d.mu.Unlock()

	for _, g := range Groups {
		n := 2 * sequences * g.Ranks()
		if err := d.periphs[g].StartDMA(d.buffers[g][:n]); err != nil {
			d.Stop()
			return fmt.Errorf("failed to start %s dma: %w", g, err)
		}
	}

	err := d.trigger.Start(TriggerConfig{
		ChannelRateHz: d.cfg.ChannelRateHz,
		ADC2PhaseUs:   d.cfg.ADC2PhaseUs,
		ADC3PhaseUs:   d.cfg.ADC3PhaseUs,
	})
	if err != nil {
		d.Stop()
		return fmt.Errorf("failed to start trigger schedule: %w", err)
	}

	return nil
}

// Stop halts the trigger and every DMA channel. Safe to call when stopped.
func (d *DMA) Stop() {
	d.mu.Lock()
	d.running = false
	d.halfLen = [NumGroups]int{}
	d.mu.Unlock()

	d.trigger.Stop()
	for _, g := range Groups {
		d.periphs[g].StopDMA()
	}
}

// Running reports whether DMA was started and not stopped since.
func (d *DMA) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Dropped returns the number of frames lost to a full frame queue.
func (d *DMA) Dropped() uint64 { return d.dropped.Load() }

// HandleHalfComplete posts the first half of g's buffer.
func (d *DMA) HandleHalfComplete(g Group, ts uint32) { d.post(g, 0, ts) }

// HandleFullComplete posts the second half of g's buffer.
func (d *DMA) HandleFullComplete(g Group, ts uint32) { d.post(g, 1, ts) }

func (d *DMA) post(g Group, half uint8, ts uint32) {
	if !g.Valid() {
		return
	}

	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.sequenceID[g]++
	n := d.halfLen[g]
	off := int(half) * n
	desc := FrameDescriptor{
		Group:          g,
		Half:           half,
		SequenceID:     d.sequenceID[g],
		TimestampTicks: ts,
		Data:           d.buffers[g][off : off+n],
		ElementCount:   uint16(n),
		ElementSize:    2,
	}
	d.mu.Unlock()

	select {
	case d.frames <- desc:
	default:
		d.dropped.Add(1)
	}
}

func (d *DMA) calibrateOnce() error {
	if d.calibrated {
		return nil
	}
	for _, g := range Groups {
		if err := d.periphs[g].Calibrate(); err != nil {
			return fmt.Errorf("%s: %w", g, err)
		}
	}
	d.calibrated = true
	return nil
}
