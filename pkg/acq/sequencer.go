package acq

import "fmt"

// OutputPin is a digital output, here the analog front-end enable line.
type OutputPin interface {
	High()
	Low()
}

// Delay blocks the caller for a number of microseconds.
type Delay interface {
	DelayUs(us uint32)
}

// DMAControl starts and stops ADC acquisition.
type DMAControl interface {
	Start() error
	Stop()
}

// TickSource is a free running 1 MHz counter that wraps at 32 bits.
type TickSource interface {
	NowTicks() uint32
}

// SpinDelay busy-waits against a tick source. It never yields to a sleep,
// so settle times stay exact.
type SpinDelay struct {
	ticks TickSource
}

func NewSpinDelay(ticks TickSource) *SpinDelay {
	return &SpinDelay{ticks: ticks}
}

func (d *SpinDelay) DelayUs(us uint32) {
	start := d.ticks.NowTicks()
	for d.ticks.NowTicks()-start < us {
	}
}

// Sequencer orders powering the front end, settling and starting DMA.
type Sequencer struct {
	pin   OutputPin
	delay Delay
	dma   DMAControl
}

func NewSequencer(pin OutputPin, delay Delay, dma DMAControl) *Sequencer {
	return &Sequencer{pin: pin, delay: delay, dma: dma}
}

// Enable powers the front end, waits settleUs and starts DMA.
func (s *Sequencer) Enable(settleUs uint32) error {
	s.pin.High()
	s.delay.DelayUs(settleUs)
	if err := s.dma.Start(); err != nil {
		return fmt.Errorf("failed to start acquisition dma: %w", err)
	}
	return nil
}

// Disable powers the front end down and stops DMA.
func (s *Sequencer) Disable() {
	s.pin.Low()
	s.dma.Stop()
}
