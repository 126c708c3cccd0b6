package telemetry

import (
	"fmt"
	"sync/atomic"
)

const (
	MinPeriodMs = 1
	MaxPeriodMs = 1000
)

// Mode selects which sensor value is streamed.
type Mode uint8

const (
	Raw Mode = iota
	Processed
)

func (m Mode) String() string {
	if m == Processed {
		return "processed"
	}
	return "raw"
}

// ParseMode parses "raw" or "processed".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "raw":
		return Raw, nil
	case "processed":
		return Processed, nil
	default:
		return Raw, fmt.Errorf("unknown telemetry mode %q", s)
	}
}

// CommandKind is the kind of a telemetry command.
type CommandKind uint8

const (
	Off CommandKind = iota
	Observe
	SetPeriod
)

// Command is a request sent to the telemetry task.
type Command struct {
	Kind     CommandKind
	SensorID uint8
	Mode     Mode
	PeriodMs uint32
}

// Status is a snapshot of the telemetry task state.
type Status struct {
	Enabled  bool
	SensorID uint8
	Mode     Mode
	PeriodMs uint32
}

// StatusCell is written by the telemetry task and read by controls.
type StatusCell struct {
	enabled  atomic.Bool
	sensorID atomic.Uint32
	mode     atomic.Uint32
	periodMs atomic.Uint32
}

func (c *StatusCell) Load() Status {
	return Status{
		Enabled:  c.enabled.Load(),
		SensorID: uint8(c.sensorID.Load()),
		Mode:     Mode(c.mode.Load()),
		PeriodMs: c.periodMs.Load(),
	}
}

func (c *StatusCell) setOff() {
	c.enabled.Store(false)
	c.sensorID.Store(0)
}

func (c *StatusCell) setObserving(id uint8, mode Mode) {
	c.sensorID.Store(uint32(id))
	c.mode.Store(uint32(mode))
	c.enabled.Store(true)
}

// ClampPeriodMs limits a send period to [MinPeriodMs, MaxPeriodMs].
func ClampPeriodMs(ms uint32) uint32 {
	return max(MinPeriodMs, min(ms, MaxPeriodMs))
}

// PeriodFromHz converts a send rate to a rounded period in milliseconds.
func PeriodFromHz(hz uint32) (uint32, error) {
	if hz == 0 {
		return 0, fmt.Errorf("frequency must be positive")
	}
	return (1000 + hz/2) / hz, nil
}

// Control enqueues commands for the telemetry task.
type Control struct {
	queue  chan<- Command
	status *StatusCell
}

func NewControl(queue chan<- Command, status *StatusCell) *Control {
	return &Control{queue: queue, status: status}
}

// RequestOff stops streaming. It returns true without enqueuing when
// already off.
func (c *Control) RequestOff() bool {
	if !c.status.enabled.Load() {
		return true
	}
	return c.send(Command{Kind: Off})
}

func (c *Control) RequestObserve(id uint8, mode Mode) bool {
	return c.send(Command{Kind: Observe, SensorID: id, Mode: mode})
}

func (c *Control) RequestSetPeriod(ms uint32) bool {
	return c.send(Command{Kind: SetPeriod, PeriodMs: ms})
}

func (c *Control) Status() Status { return c.status.Load() }

func (c *Control) send(cmd Command) bool {
	select {
	case c.queue <- cmd:
		return true
	default:
		return false
	}
}
