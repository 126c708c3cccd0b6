package acq

import "sync/atomic"

// Command is a request sent to the acquisition task.
type Command uint8

const (
	Enable Command = iota + 1
	Disable
)

func (c Command) String() string {
	switch c {
	case Enable:
		return "enable"
	case Disable:
		return "disable"
	default:
		return "unknown"
	}
}

// State is the acquisition state published by the task.
type State uint32

const (
	Disabled State = iota
	Enabled
)

func (s State) String() string {
	if s == Enabled {
		return "enabled"
	}
	return "disabled"
}

// StateCell holds the authoritative state. Only the acquisition task stores
// into it; anyone may load.
type StateCell struct {
	v atomic.Uint32
}

func (c *StateCell) Load() State { return State(c.v.Load()) }

func (c *StateCell) Store(s State) { c.v.Store(uint32(s)) }

// StateReader is implemented by anything exposing the acquisition state.
type StateReader interface {
	State() State
}

// Control enqueues commands for the acquisition task.
type Control struct {
	queue chan<- Command
	state *StateCell
}

// NewControl creates a control over the task's command queue.
func NewControl(queue chan<- Command, state *StateCell) *Control {
	return &Control{queue: queue, state: state}
}

// RequestEnable asks the task to start acquiring. It returns true without
// enqueuing when already enabled and false only when the queue is full.
func (c *Control) RequestEnable() bool {
	if c.state.Load() == Enabled {
		return true
	}
	return c.send(Enable)
}

// RequestDisable asks the task to stop acquiring. It returns true without
// enqueuing when already disabled and false only when the queue is full.
func (c *Control) RequestDisable() bool {
	if c.state.Load() == Disabled {
		return true
	}
	return c.send(Disable)
}

// State returns the last published state.
func (c *Control) State() State { return c.state.Load() }

func (c *Control) send(cmd Command) bool {
	select {
	case c.queue <- cmd:
		return true
	default:
		return false
	}
}
