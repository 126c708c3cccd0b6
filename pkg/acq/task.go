package acq

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/itohio/goacq/pkg/adc"
	"github.com/itohio/goacq/pkg/config"
)

// Resetter clears processing history.
type Resetter interface {
	Reset()
}

// Stats are counters maintained by the acquisition task.
type Stats struct {
	Enables          uint64
	EnableFailures   uint64
	FramesProcessed  uint64
	FramesDropped    uint64 // Unknown group
	SequencesDecoded uint64
	FramesMissed     uint64 // Sequence id gaps seen by the decoders
}

// Task is the acquisition state machine. It owns the receive side of the
// frame queue and the control queue, and is the only writer of sensor state
// and of the published acquisition state.
type Task struct {
	frames    <-chan adc.FrameDescriptor
	control   <-chan Command
	sequencer *Sequencer
	decoders  [adc.NumGroups]*FrameDecoder
	filters   Resetter
	state     *StateCell

	settleUs  uint32
	frameWait time.Duration

	enables          atomic.Uint64
	enableFailures   atomic.Uint64
	framesProcessed  atomic.Uint64
	framesDropped    atomic.Uint64
	sequencesDecoded atomic.Uint64
}

// NewTask creates the acquisition task. A nil decoder leaves frames of that
// group undecoded; filters may be nil.
func NewTask(cfg config.AcquisitionConfig, frames <-chan adc.FrameDescriptor, control <-chan Command,
	sequencer *Sequencer, decoders [adc.NumGroups]*FrameDecoder, filters Resetter, state *StateCell) *Task {
	frameWait := cfg.FrameWait
	if frameWait <= 0 {
		frameWait = time.Millisecond
	}
	return &Task{
		frames:    frames,
		control:   control,
		sequencer: sequencer,
		decoders:  decoders,
		filters:   filters,
		state:     state,
		settleUs:  cfg.SettleUs,
		frameWait: frameWait,
	}
}

// Run executes the state machine until ctx is done. It starts and ends in
// the Disabled state.
func (t *Task) Run(ctx context.Context) {
	t.enterDisabled()
	defer t.enterDisabled()

	wait := time.NewTimer(t.frameWait)
	wait.Stop()

	for ctx.Err() == nil {
		if t.state.Load() == Disabled {
			t.handleDisabled(ctx)
			continue
		}
		t.handleEnabled(ctx, wait)
	}
}

// State returns the published state.
func (t *Task) State() State { return t.state.Load() }

// Stats returns a snapshot of the task counters.
func (t *Task) Stats() Stats {
	s := Stats{
		Enables:          t.enables.Load(),
		EnableFailures:   t.enableFailures.Load(),
		FramesProcessed:  t.framesProcessed.Load(),
		FramesDropped:    t.framesDropped.Load(),
		SequencesDecoded: t.sequencesDecoded.Load(),
	}
	for _, d := range t.decoders {
		if d != nil {
			s.FramesMissed += d.Missed()
		}
	}
	return s
}

func (t *Task) handleDisabled(ctx context.Context) {
	var cmd Command
	select {
	case <-ctx.Done():
		return
	case cmd = <-t.control:
	}

	switch cmd {
	case Disable:
		t.enterDisabled()
	case Enable:
		t.drainFrames()
		t.resetDecoders()
		if err := t.sequencer.Enable(t.settleUs); err != nil {
			t.enterDisabled()
			t.enableFailures.Add(1)
			return
		}
		t.enables.Add(1)
		t.state.Store(Enabled)
	}
}

func (t *Task) handleEnabled(ctx context.Context, wait *time.Timer) {
	if cmd, ok := t.latestCommand(); ok && cmd == Disable {
		t.enterDisabled()
		return
	}

	wait.Reset(t.frameWait)
	defer wait.Stop()

	select {
	case <-ctx.Done():
	case <-wait.C:
	case desc := <-t.frames:
		t.processFrame(desc)
	}
}

// latestCommand drains the control queue and keeps the most recent command.
func (t *Task) latestCommand() (Command, bool) {
	var (
		latest Command
		ok     bool
	)
	for {
		select {
		case cmd := <-t.control:
			latest, ok = cmd, true
		default:
			return latest, ok
		}
	}
}

func (t *Task) processFrame(desc adc.FrameDescriptor) {
	if !desc.Group.Valid() || t.decoders[desc.Group] == nil {
		t.framesDropped.Add(1)
		return
	}
	n := t.decoders[desc.Group].Decode(desc)
	t.framesProcessed.Add(1)
	t.sequencesDecoded.Add(uint64(n))
}

func (t *Task) enterDisabled() {
	t.sequencer.Disable()
	t.drainFrames()
	t.resetDecoders()
	if t.filters != nil {
		t.filters.Reset()
	}
	t.state.Store(Disabled)
}

func (t *Task) drainFrames() {
	for {
		select {
		case <-t.frames:
		default:
			return
		}
	}
}

func (t *Task) resetDecoders() {
	for _, d := range t.decoders {
		if d != nil {
			d.Reset()
		}
	}
}
