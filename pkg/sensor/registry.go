package sensor

import (
	"errors"
	"fmt"
)

var ErrInvalidID = errors.New("sensor id must be non-zero")

// Registry owns a fixed set of sensors for the lifetime of the process.
type Registry struct {
	sensors []*Sensor
}

// NewRegistry creates one sensor per id. Ids must be non-zero and unique.
func NewRegistry(ids []uint8) (*Registry, error) {
	r := &Registry{sensors: make([]*Sensor, 0, len(ids))}
	for _, id := range ids {
		if id == 0 {
			return nil, ErrInvalidID
		}
		if _, ok := r.FindByID(id); ok {
			return nil, fmt.Errorf("duplicate sensor id %d", id)
		}
		r.sensors = append(r.sensors, New(id))
	}
	return r, nil
}

// FindByID returns the sensor with the given id. It fails for 0 and unknown ids.
func (r *Registry) FindByID(id uint8) (*Sensor, bool) {
	if id == 0 {
		return nil, false
	}
	for _, s := range r.sensors {
		if s.id == id {
			return s, true
		}
	}
	return nil, false
}

// Sensors returns the sensors in registration order.
func (r *Registry) Sensors() []*Sensor {
	result := make([]*Sensor, len(r.sensors))
	copy(result, r.sensors)
	return result
}

// Len returns the number of sensors.
func (r *Registry) Len() int { return len(r.sensors) }
