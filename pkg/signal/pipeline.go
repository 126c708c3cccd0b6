package signal

import (
	"errors"
	"fmt"

	"github.com/itohio/goacq/pkg/config"
)

// ErrNoStages is returned when a pipeline is built without stages.
var ErrNoStages = errors.New("pipeline needs at least one stage")

var (
	_ TwoPhase = (*Pipeline)(nil)
	_ TwoPhase = (*Decimated)(nil)
)

// Pipeline chains stages so each stage's output is the next stage's input.
//
// Every stage but the last is applied on Push. The last stage is only pushed;
// ComputeOrRaw reads it with the input it last received. For two-phase
// stages this is identical to pushing and computing each stage by hand.
type Pipeline struct {
	stages    []TwoPhase
	lastInput float32
	hasInput  bool
}

// NewPipeline builds a continuous pipeline. Single-phase stages are adapted
// with AsTwoPhase.
func NewPipeline(stages ...Processor) (*Pipeline, error) {
	if len(stages) == 0 {
		return nil, ErrNoStages
	}
	p := &Pipeline{stages: make([]TwoPhase, len(stages))}
	for i, s := range stages {
		if s == nil {
			return nil, fmt.Errorf("stage %d is nil", i)
		}
		p.stages[i] = AsTwoPhase(s)
	}
	return p, nil
}

func (p *Pipeline) Reset() {
	for _, s := range p.stages {
		s.Reset()
	}
	p.lastInput = 0
	p.hasInput = false
}

func (p *Pipeline) Push(x float32) {
	last := len(p.stages) - 1
	for _, s := range p.stages[:last] {
		s.Push(x)
		x = s.ComputeOrRaw(x)
	}
	p.stages[last].Push(x)
	p.lastInput = x
	p.hasInput = true
}

func (p *Pipeline) ComputeOrRaw(raw float32) float32 {
	if !p.hasInput {
		return raw
	}
	return p.stages[len(p.stages)-1].ComputeOrRaw(p.lastInput)
}

func (p *Pipeline) Process(x float32) float32 {
	p.Push(x)
	return p.ComputeOrRaw(x)
}

// Len returns the number of stages.
func (p *Pipeline) Len() int { return len(p.stages) }

// Decimated ingests every sample but recomputes the final output only on
// pushes 0, K, 2K, ... and holds the last computed value in between.
type Decimated struct {
	chain    *Pipeline
	factor   int
	phase    int
	value    float32
	computed bool
}

// NewDecimated wraps stages in a pipeline computed once every factor pushes.
func NewDecimated(factor int, stages ...Processor) (*Decimated, error) {
	if factor < 1 {
		return nil, fmt.Errorf("decimation factor must be >= 1, got %d", factor)
	}
	chain, err := NewPipeline(stages...)
	if err != nil {
		return nil, err
	}
	return &Decimated{chain: chain, factor: factor}, nil
}

func (d *Decimated) Reset() {
	d.chain.Reset()
	d.phase = 0
	d.value = 0
	d.computed = false
}

func (d *Decimated) Push(x float32) {
	d.chain.Push(x)
	if d.phase == 0 {
		d.value = d.chain.ComputeOrRaw(x)
		d.computed = true
	}
	d.phase++
	if d.phase >= d.factor {
		d.phase = 0
	}
}

func (d *Decimated) ComputeOrRaw(raw float32) float32 {
	if !d.computed {
		return raw
	}
	return d.value
}

func (d *Decimated) Process(x float32) float32 {
	d.Push(x)
	return d.ComputeOrRaw(x)
}

// Factor returns the decimation factor.
func (d *Decimated) Factor() int { return d.factor }

// Stage kinds accepted by New.
const (
	KindIdentity = "identity"
	KindEMA      = "ema"
	KindSG5      = "sg5"
	KindTIA      = "tia"
)

// NewStage builds one stage of the given kind.
func NewStage(kind string, cfg config.SignalConfig) (Processor, error) {
	switch kind {
	case KindIdentity:
		return Identity{}, nil
	case KindEMA:
		ema, err := NewEMA(cfg.EMA.Numerator, cfg.EMA.Denominator)
		if err != nil {
			return nil, err
		}
		return ema, nil
	case KindSG5:
		return NewSG5(), nil
	case KindTIA:
		tia, err := NewTIACurrent(cfg.TIA.VrefMilliVolts, cfg.TIA.AdcBits, cfg.TIA.RfOhms)
		if err != nil {
			return nil, err
		}
		return tia, nil
	default:
		return nil, fmt.Errorf("unknown stage kind %q", kind)
	}
}

// New builds a fresh per-channel processor from the signal configuration.
// Disabled filtering yields a pass-through pipeline; a decimation factor
// above one yields a Decimated pipeline.
func New(cfg config.SignalConfig) (TwoPhase, error) {
	kinds := cfg.Stages
	if !cfg.FilteringEnabled {
		kinds = []string{KindIdentity}
	}

	stages := make([]Processor, 0, len(kinds))
	for _, kind := range kinds {
		s, err := NewStage(kind, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to build signal stage: %w", err)
		}
		stages = append(stages, s)
	}

	if cfg.Decimation > 1 {
		d, err := NewDecimated(cfg.Decimation, stages...)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	p, err := NewPipeline(stages...)
	if err != nil {
		return nil, err
	}
	return p, nil
}
