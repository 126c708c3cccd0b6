package telemetry

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/itohio/goacq/pkg/acq"
	"github.com/itohio/goacq/pkg/sensor"
)

// Sender pushes one telemetry value. Delivery is best effort.
type Sender interface {
	Send(value uint32)
}

// SensorFinder looks sensors up by id.
type SensorFinder interface {
	FindByID(id uint8) (*sensor.Sensor, bool)
}

// Task streams the value of one observed sensor at a fixed period while
// acquisition is enabled.
type Task struct {
	control       <-chan Command
	status        *StatusCell
	sensors       SensorFinder
	acquisition   acq.StateReader
	sender        Sender
	defaultPeriod uint32

	sent atomic.Uint64
}

func NewTask(periodMs uint32, control <-chan Command, status *StatusCell, sensors SensorFinder,
	acquisition acq.StateReader, sender Sender) *Task {
	return &Task{
		control:       control,
		status:        status,
		sensors:       sensors,
		acquisition:   acquisition,
		sender:        sender,
		defaultPeriod: ClampPeriodMs(periodMs),
	}
}

// Run serves commands and sends values until ctx is done.
func (t *Task) Run(ctx context.Context) {
	t.status.setOff()
	t.status.mode.Store(uint32(Raw))
	t.status.periodMs.Store(t.defaultPeriod)

	wait := time.NewTimer(time.Millisecond)
	wait.Stop()

	for ctx.Err() == nil {
		st := t.status.Load()
		if !st.Enabled {
			select {
			case <-ctx.Done():
			case cmd := <-t.control:
				t.apply(cmd)
			}
			continue
		}

		s, ok := t.sensors.FindByID(st.SensorID)
		if !ok {
			t.status.setOff()
			continue
		}

		wait.Reset(time.Duration(st.PeriodMs) * time.Millisecond)
		select {
		case <-ctx.Done():
			wait.Stop()
			continue
		case cmd := <-t.control:
			wait.Stop()
			t.apply(cmd)
			continue
		case <-wait.C:
		}

		if t.acquisition.State() != acq.Enabled {
			continue
		}
		t.sender.Send(Value(s, st.Mode))
		t.sent.Add(1)
	}
}

// Sent returns the number of values handed to the sender.
func (t *Task) Sent() uint64 { return t.sent.Load() }

func (t *Task) apply(cmd Command) {
	switch cmd.Kind {
	case Off:
		t.status.setOff()
	case Observe:
		if _, ok := t.sensors.FindByID(cmd.SensorID); !ok {
			t.status.setOff()
			return
		}
		t.status.setObserving(cmd.SensorID, cmd.Mode)
	case SetPeriod:
		t.status.periodMs.Store(ClampPeriodMs(cmd.PeriodMs))
	}
}

// Value is the wire value of a sensor: the raw count, or the processed
// value scaled by 1000 and saturated to the uint32 range.
func Value(s *sensor.Sensor, mode Mode) uint32 {
	if mode == Raw {
		return uint32(s.LastRaw())
	}
	v := float64(s.LastProcessed()) * 1000
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= math.MaxUint32:
		return math.MaxUint32
	}
	return uint32(v)
}
