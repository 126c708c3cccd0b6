package system

import (
	"github.com/itohio/goacq/pkg/adc"
	"github.com/itohio/goacq/pkg/config"
	"github.com/itohio/goacq/pkg/sim"
)

// Simulated returns hardware backed by the simulator.
func Simulated(cfg *config.Config) (Hardware, *sim.Frontend) {
	clock := sim.NewClock()
	pin := &sim.Pin{}
	fe := sim.NewFrontend(cfg, clock, pin)

	return Hardware{
		Pin:         pin,
		Ticks:       clock,
		Peripherals: fe.Peripherals(),
		Trigger:     fe,
		Connect:     func(dma *adc.DMA) { fe.Attach(dma) },
	}, fe
}
