package sim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/itohio/goacq/pkg/adc"
)

var (
	ErrCalibration = errors.New("simulated calibration failure")
	ErrNotRunning  = errors.New("dma not running")
)

// ADC simulates one ADC with a circular DMA channel.
type ADC struct {
	group adc.Group

	mu           sync.Mutex
	failCal      bool
	startErr     error
	calibrations int
	buf          []uint16
	next         uint8
	running      bool
}

func newADC(g adc.Group, failCal bool) *ADC {
	return &ADC{group: g, failCal: failCal}
}

func (a *ADC) Calibrate() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calibrations++
	if a.failCal {
		return fmt.Errorf("%s: %w", a.group, ErrCalibration)
	}
	return nil
}

func (a *ADC) StartDMA(buf []uint16) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.startErr != nil {
		return a.startErr
	}
	if len(buf) == 0 || len(buf)%(2*a.group.Ranks()) != 0 {
		return fmt.Errorf("%s: buffer of %d elements does not hold whole sequences", a.group, len(buf))
	}
	a.buf = buf
	a.next = 0
	a.running = true
	return nil
}

func (a *ADC) StopDMA() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = false
	a.buf = nil
}

// FailCalibration makes subsequent calibrations fail.
func (a *ADC) FailCalibration(fail bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failCal = fail
}

// FailStart makes StartDMA return err. A nil err clears the failure.
func (a *ADC) FailStart(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.startErr = err
}

func (a *ADC) Calibrations() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calibrations
}

func (a *ADC) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// fill writes the next half buffer with sample(rank, sequence) and returns
// which half was written.
func (a *ADC) fill(sample func(rank, sequence, sequences int) uint16) (half uint8, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return 0, false
	}

	ranks := a.group.Ranks()
	n := len(a.buf) / 2
	sequences := n / ranks
	off := int(a.next) * n
	for s := range sequences {
		for r := range ranks {
			a.buf[off+s*ranks+r] = sample(r, s, sequences)
		}
	}

	half = a.next
	a.next ^= 1
	return half, true
}
