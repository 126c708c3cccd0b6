package adc

import "github.com/itohio/goacq/pkg/config"

// TimerSettings holds the prescaler and auto-reload values of a trigger timer.
type TimerSettings struct {
	Prescaler uint32
	Period    uint32
	TickHz    uint32
}

const desiredTickHz = 1_000_000

// ComputeTimerSettings derives a 1 MHz tick where possible and the period
// for targetHz. Both registers are 16 bits wide. A zero target yields zero
// settings.
func ComputeTimerSettings(timerClkHz, targetHz uint32) TimerSettings {
	if targetHz == 0 {
		return TimerSettings{}
	}

	var prescaler uint32
	if timerClkHz > desiredTickHz {
		prescaler = timerClkHz/desiredTickHz - 1
	}
	if prescaler > 0xFFFF {
		prescaler = 0xFFFF
	}

	tickHz := timerClkHz / (prescaler + 1)
	var period uint32
	if tickHz >= targetHz {
		period = tickHz/targetHz - 1
	}
	if period > 0xFFFF {
		period = 0xFFFF
	}

	return TimerSettings{Prescaler: prescaler, Period: period, TickHz: tickHz}
}

// PhaseTicks returns the compare value shifting a timer by phaseUs within
// its period. Zero phase means half a period.
func PhaseTicks(s TimerSettings, phaseUs uint32) uint32 {
	periodTicks := s.Period + 1

	phase := uint32(uint64(phaseUs) * uint64(s.TickHz) / 1_000_000)
	if phaseUs == 0 {
		phase = periodTicks / 2
	}
	return phase % periodTicks
}

// TriggerRates returns the conversion trigger rate of each group: one
// conversion per rank per channel sample.
func TriggerRates(cfg config.AcquisitionConfig) [NumGroups]uint32 {
	var rates [NumGroups]uint32
	for _, g := range Groups {
		rates[g] = uint32(g.Ranks()) * cfg.ChannelRateHz
	}
	return rates
}

// HalfBufferPeriodUs returns how long one half buffer takes to fill.
func HalfBufferPeriodUs(cfg config.AcquisitionConfig) uint32 {
	if cfg.ChannelRateHz == 0 {
		return 0
	}
	return cfg.SequencesPerHalfBuffer * 1_000_000 / cfg.ChannelRateHz
}
