package sim

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itohio/goacq/pkg/adc"
	"github.com/itohio/goacq/pkg/config"
)

// Handler receives DMA transfer complete interrupts.
type Handler interface {
	HandleHalfComplete(g adc.Group, ts uint32)
	HandleFullComplete(g adc.Group, ts uint32)
}

// Frontend simulates the transimpedance front end, three ADCs and their
// common trigger. Once started it fills one half buffer per group every
// half buffer period and raises the matching interrupt. ADC2 and ADC3
// interrupts carry their trigger phase in the timestamp.
type Frontend struct {
	cfg   config.SimConfig
	tia   config.TIAConfig
	clkHz uint32
	clock *Clock
	pin   *Pin
	ranks [adc.NumGroups][]uint8
	adcs  [adc.NumGroups]*ADC

	mu         sync.Mutex
	handler    Handler
	triggerErr error
	cancel     context.CancelFunc
	done       chan struct{}

	rng    *rand.Rand
	halves atomic.Uint64

	// phase holds the trigger delay of each group in clock ticks
	phase [adc.NumGroups]uint32
}

// NewFrontend creates a simulated front end for cfg. Attach must be called
// before the trigger is started.
func NewFrontend(cfg *config.Config, clock *Clock, pin *Pin) *Frontend {
	f := &Frontend{
		cfg:   cfg.Sim,
		tia:   cfg.Signal.TIA,
		clkHz: cfg.Acquisition.TimerClockHz,
		clock: clock,
		pin:   pin,
		ranks: [adc.NumGroups][]uint8{cfg.Sensors.ADC1Rank, cfg.Sensors.ADC2Rank, cfg.Sensors.ADC3Rank},
		rng:   rand.New(rand.NewPCG(1, 2)),
	}
	for _, g := range adc.Groups {
		f.adcs[g] = newADC(g, cfg.Sim.FailCalibration)
	}
	return f
}

// Peripherals returns the simulated ADCs.
func (f *Frontend) Peripherals() [adc.NumGroups]adc.Peripheral {
	var p [adc.NumGroups]adc.Peripheral
	for _, g := range adc.Groups {
		p[g] = f.adcs[g]
	}
	return p
}

func (f *Frontend) ADC(g adc.Group) *ADC { return f.adcs[g] }

// Attach sets the interrupt handler.
func (f *Frontend) Attach(h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

// FailTrigger makes Start return err. A nil err clears the failure.
func (f *Frontend) FailTrigger(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggerErr = err
}

// Halves returns the number of half buffers emitted.
func (f *Frontend) Halves() uint64 { return f.halves.Load() }

// Start starts the trigger timers.
func (f *Frontend) Start(tc adc.TriggerConfig) error {
	f.Stop()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.triggerErr != nil {
		return f.triggerErr
	}
	if f.handler == nil {
		return fmt.Errorf("no interrupt handler attached")
	}
	if tc.ChannelRateHz == 0 {
		return fmt.Errorf("channel rate must be positive")
	}

	a := f.adcs[adc.ADC1]
	a.mu.Lock()
	sequences := len(a.buf) / 2 / adc.ADC1.Ranks()
	a.mu.Unlock()
	if sequences == 0 {
		return fmt.Errorf("%s: %w", adc.ADC1, ErrNotRunning)
	}

	acq := config.AcquisitionConfig{
		ChannelRateHz:          tc.ChannelRateHz,
		SequencesPerHalfBuffer: uint32(sequences),
		ADC2PhaseUs:            tc.ADC2PhaseUs,
		ADC3PhaseUs:            tc.ADC3PhaseUs,
	}
	periodUs := adc.HalfBufferPeriodUs(acq)
	if periodUs == 0 {
		return fmt.Errorf("channel rate %d Hz too high for %d sequences", tc.ChannelRateHz, sequences)
	}
	f.phase = PhaseOffsets(f.clkHz, acq)

	period := time.Duration(periodUs) * time.Microsecond
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.done = make(chan struct{})
	go f.run(ctx, f.handler, period, tc.ChannelRateHz, f.done)
	return nil
}

// Stop stops the trigger timers and waits for the generator to exit.
func (f *Frontend) Stop() {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	f.cancel, f.done = nil, nil
	f.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (f *Frontend) run(ctx context.Context, h Handler, period time.Duration, rateHz uint32, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.emit(h, rateHz)
		}
	}
}

// PhaseOffsets returns how many microseconds each group's trigger lags
// ADC1. ADC2 and ADC3 are shifted within their own trigger period.
func PhaseOffsets(timerClkHz uint32, cfg config.AcquisitionConfig) [adc.NumGroups]uint32 {
	var offsets [adc.NumGroups]uint32
	rates := adc.TriggerRates(cfg)
	phases := [adc.NumGroups]uint32{adc.ADC2: cfg.ADC2PhaseUs, adc.ADC3: cfg.ADC3PhaseUs}

	for _, g := range []adc.Group{adc.ADC2, adc.ADC3} {
		settings := adc.ComputeTimerSettings(timerClkHz, rates[g])
		if settings.TickHz == 0 {
			continue
		}
		ticks := adc.PhaseTicks(settings, phases[g])
		offsets[g] = uint32(uint64(ticks) * 1_000_000 / uint64(settings.TickHz))
	}
	return offsets
}

// emit fills the next half buffer of every running group.
func (f *Frontend) emit(h Handler, rateHz uint32) {
	start := f.clock.NowTicks()
	powered := f.pin.IsHigh()

	for _, g := range adc.Groups {
		ts := start + f.phase[g]
		now := float64(ts) / 1e6
		ranks := f.ranks[g]
		half, ok := f.adcs[g].fill(func(rank, sequence, sequences int) uint16 {
			if rank >= len(ranks) {
				return 0
			}
			t := now - float64(sequences-1-sequence)/float64(rateHz)
			return f.sample(ranks[rank], t, powered)
		})
		if !ok {
			continue
		}
		f.halves.Add(1)
		if half == 0 {
			h.HandleHalfComplete(g, ts)
		} else {
			h.HandleFullComplete(g, ts)
		}
	}
}

// sample converts the simulated photocurrent of sensor id at time t into
// ADC counts of an inverting transimpedance stage.
func (f *Frontend) sample(id uint8, t float64, powered bool) uint16 {
	full := math.Min(float64(uint64(1)<<uint(f.tia.AdcBits)-1), math.MaxUint16)

	counts := 0.0
	if powered {
		counts = Current(f.cfg, id, t) / 1000 * float64(f.tia.RfOhms) / float64(f.tia.VrefMilliVolts) * full
	}
	if f.cfg.NoiseCounts > 0 {
		counts += f.rng.NormFloat64() * f.cfg.NoiseCounts
	}

	raw := math.Round(full - counts)
	return uint16(math.Max(0, math.Min(raw, full)))
}

// Current is the simulated photocurrent of sensor id at time t, in µA.
// Every sensor gets its own frequency and phase.
func Current(cfg config.SimConfig, id uint8, t float64) float64 {
	hz := cfg.SignalHz * (1 + float64(id%4)/2)
	phase := 2 * math.Pi * float64(id) / 22
	return cfg.FullScaleMicroAmps / 2 * (1 + math.Sin(2*math.Pi*hz*t+phase))
}
