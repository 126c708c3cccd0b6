package signal

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Processor is a single-purpose per-sample transform.
type Processor interface {
	Reset()
	Process(x float32) float32
}

// TwoPhase is a Processor that separates ingesting a sample from reading the
// latest output. ComputeOrRaw returns raw until the stage has an output.
type TwoPhase interface {
	Processor
	Push(x float32)
	ComputeOrRaw(raw float32) float32
}

var (
	_ TwoPhase  = (*EMA)(nil)
	_ TwoPhase  = (*SG5)(nil)
	_ Processor = Identity{}
	_ Processor = (*TIACurrent)(nil)
)

// Identity passes samples through unchanged.
type Identity struct{}

func (Identity) Reset() {}

func (Identity) Process(x float32) float32 { return x }

// EMA is an exponential moving average with a rational smoothing coefficient.
// The first sample seeds the running value.
type EMA struct {
	alpha  float32
	lo, hi float32
	value  float32
	seeded bool
}

// NewEMA creates an EMA with alpha = num/den, clamped to the 16-bit ADC range.
func NewEMA(num, den int32) (*EMA, error) {
	if den <= 0 {
		return nil, fmt.Errorf("ema denominator must be > 0, got %d", den)
	}
	if num < 0 || num > den {
		return nil, fmt.Errorf("ema numerator must be in [0, %d], got %d", den, num)
	}
	return &EMA{
		alpha: float32(num) / float32(den),
		lo:    0,
		hi:    65535,
	}, nil
}

// WithClamp replaces the output range. Use ±math32.MaxFloat32 to disable clamping.
func (e *EMA) WithClamp(lo, hi float32) *EMA {
	e.lo, e.hi = lo, hi
	return e
}

func (e *EMA) Reset() {
	e.value = 0
	e.seeded = false
}

func (e *EMA) Push(x float32) {
	if !e.seeded {
		e.value = x
		e.seeded = true
		return
	}
	e.value = math32.Min(math32.Max(e.value+e.alpha*(x-e.value), e.lo), e.hi)
}

func (e *EMA) ComputeOrRaw(raw float32) float32 {
	if !e.seeded {
		return raw
	}
	return e.value
}

func (e *EMA) Process(x float32) float32 {
	e.Push(x)
	return e.ComputeOrRaw(x)
}

// sg5Weights are the 5-point Savitzky-Golay coefficients, oldest to newest.
var sg5Weights = [5]float32{3, -5, -3, 9, 31}

const sg5Norm = 35

// SG5 is a 5-point Savitzky-Golay smoother. Until five samples have been
// pushed it returns the raw input.
type SG5 struct {
	history [5]float32
	next    int
	filled  int
}

func NewSG5() *SG5 { return &SG5{} }

func (s *SG5) Reset() {
	*s = SG5{}
}

func (s *SG5) Push(x float32) {
	s.history[s.next] = x
	s.next = (s.next + 1) % len(s.history)
	if s.filled < len(s.history) {
		s.filled++
	}
}

func (s *SG5) ComputeOrRaw(raw float32) float32 {
	if s.filled < len(s.history) {
		return raw
	}
	var acc float32
	// next points at the oldest entry once the window is full.
	for i, w := range sg5Weights {
		acc += w * s.history[(s.next+i)%len(s.history)]
	}
	return acc / sg5Norm
}

func (s *SG5) Process(x float32) float32 {
	s.Push(x)
	return s.ComputeOrRaw(x)
}

// TIACurrent converts raw counts of an inverting transimpedance front end to
// current in mA: (max - raw) * Vref_mV / (max * Rf).
type TIACurrent struct {
	max   float32
	scale float32
}

// NewTIACurrent creates a converter for an adcBits wide ADC.
func NewTIACurrent(vrefMilliVolts, adcBits, rfOhms int32) (*TIACurrent, error) {
	if adcBits < 1 || adcBits > 32 {
		return nil, fmt.Errorf("tia adc bits must be in [1, 32], got %d", adcBits)
	}
	if rfOhms <= 0 {
		return nil, fmt.Errorf("tia feedback resistor must be > 0, got %d", rfOhms)
	}
	full := float32(uint64(1)<<uint(adcBits) - 1)
	return &TIACurrent{
		max:   full,
		scale: float32(vrefMilliVolts) / (full * float32(rfOhms)),
	}, nil
}

func (t *TIACurrent) Reset() {}

func (t *TIACurrent) Process(raw float32) float32 {
	return (t.max - raw) * t.scale
}

// SaturationMilliAmps is the output at zero counts.
func (t *TIACurrent) SaturationMilliAmps() float32 {
	return t.max * t.scale
}

// cached adapts a single-phase Processor to TwoPhase by running Process on
// Push and replaying the cached output.
type cached struct {
	p   Processor
	out float32
	has bool
}

// AsTwoPhase returns p itself when it already is two-phase.
func AsTwoPhase(p Processor) TwoPhase {
	if tp, ok := p.(TwoPhase); ok {
		return tp
	}
	return &cached{p: p}
}

func (c *cached) Reset() {
	c.p.Reset()
	c.out = 0
	c.has = false
}

func (c *cached) Push(x float32) {
	c.out = c.p.Process(x)
	c.has = true
}

func (c *cached) ComputeOrRaw(raw float32) float32 {
	if !c.has {
		return raw
	}
	return c.out
}

func (c *cached) Process(x float32) float32 {
	c.Push(x)
	return c.out
}
