package config

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// MaxSequencesPerHalfBuffer bounds the statically reserved DMA buffers.
const MaxSequencesPerHalfBuffer = 32

// RanksPerSequence is the scan length of ADC1, ADC2 and ADC3 in the reference wiring.
var RanksPerSequence = [3]int{7, 7, 8}

// Validate checks the configuration for inconsistencies and returns every
// problem found combined into one error.
func (c *Config) Validate() error {
	var err error

	a := c.Acquisition
	if a.ChannelRateHz == 0 {
		err = multierr.Append(err, fmt.Errorf("acquisition.channel_rate_hz must be > 0"))
	}
	if a.SequencesPerHalfBuffer < 1 || a.SequencesPerHalfBuffer > MaxSequencesPerHalfBuffer {
		err = multierr.Append(err, fmt.Errorf("acquisition.sequences_per_half_buffer must be in [1, %d], got %d",
			MaxSequencesPerHalfBuffer, a.SequencesPerHalfBuffer))
	}
	if a.TicksPerSecond == 0 {
		err = multierr.Append(err, fmt.Errorf("acquisition.ticks_per_second must be > 0"))
	}
	if a.FrameQueueSize <= 0 || a.ControlQueueSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("acquisition queue sizes must be > 0"))
	}
	if a.FrameWait <= 0 || a.FrameWait > 10*time.Millisecond {
		err = multierr.Append(err, fmt.Errorf("acquisition.frame_wait must be in (0, 10ms], got %v", a.FrameWait))
	}

	err = multierr.Append(err, c.Sensors.validate())
	err = multierr.Append(err, c.Signal.validate())

	if c.Telemetry.PeriodMs < 1 || c.Telemetry.PeriodMs > 1000 {
		err = multierr.Append(err, fmt.Errorf("telemetry.period_ms must be in [1, 1000], got %d", c.Telemetry.PeriodMs))
	}
	switch c.Telemetry.Transport {
	case "serial", "websocket", "none":
	default:
		err = multierr.Append(err, fmt.Errorf("telemetry.transport %q is not one of serial, websocket, none", c.Telemetry.Transport))
	}

	return err
}

func (s SensorsConfig) validate() error {
	var err error

	if len(s.IDs) == 0 {
		err = multierr.Append(err, fmt.Errorf("sensors.ids must not be empty"))
	}
	if hasZero(s.IDs) {
		err = multierr.Append(err, fmt.Errorf("sensors.ids must be non-zero"))
	}
	if !unique(s.IDs) {
		err = multierr.Append(err, fmt.Errorf("sensors.ids must be unique"))
	}

	tables := []struct {
		name  string
		ranks []uint8
	}{
		{"adc1_ranks", s.ADC1Rank},
		{"adc2_ranks", s.ADC2Rank},
		{"adc3_ranks", s.ADC3Rank},
	}
	for i, t := range tables {
		if len(t.ranks) != RanksPerSequence[i] {
			err = multierr.Append(err, fmt.Errorf("sensors.%s must have %d entries, got %d",
				t.name, RanksPerSequence[i], len(t.ranks)))
		}
		if !unique(t.ranks) {
			err = multierr.Append(err, fmt.Errorf("sensors.%s must not contain duplicates", t.name))
		}
		if !allIn(t.ranks, s.IDs) {
			err = multierr.Append(err, fmt.Errorf("sensors.%s must reference configured ids", t.name))
		}
	}

	return err
}

func (s SignalConfig) validate() error {
	var err error

	if s.EMA.Denominator <= 0 {
		err = multierr.Append(err, fmt.Errorf("signal.ema.denominator must be > 0"))
	}
	if s.EMA.Numerator < 0 || s.EMA.Numerator > s.EMA.Denominator {
		err = multierr.Append(err, fmt.Errorf("signal.ema.numerator must be in [0, denominator]"))
	}
	if s.Decimation < 1 || s.Decimation > 255 {
		err = multierr.Append(err, fmt.Errorf("signal.decimation must be in [1, 255], got %d", s.Decimation))
	}
	if s.TIA.AdcBits < 1 || s.TIA.AdcBits > 32 {
		err = multierr.Append(err, fmt.Errorf("signal.tia.adc_bits must be in [1, 32]"))
	}
	if s.TIA.RfOhms <= 0 {
		err = multierr.Append(err, fmt.Errorf("signal.tia.rf_ohms must be > 0"))
	}
	if s.FilteringEnabled && len(s.Stages) == 0 {
		err = multierr.Append(err, fmt.Errorf("signal.stages must not be empty when filtering is enabled"))
	}

	return err
}

func hasZero(ids []uint8) bool {
	for _, id := range ids {
		if id == 0 {
			return true
		}
	}
	return false
}

func unique(ids []uint8) bool {
	var seen [256]bool
	for _, id := range ids {
		if seen[id] {
			return false
		}
		seen[id] = true
	}
	return true
}

func allIn(values, set []uint8) bool {
	var known [256]bool
	for _, id := range set {
		known[id] = true
	}
	for _, v := range values {
		if !known[v] {
			return false
		}
	}
	return true
}
