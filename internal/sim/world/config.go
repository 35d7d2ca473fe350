package world

import "trafficsim.ai/internal/sim/simtime"

type WorldConfig struct {
	ID   string
	Seed uint64

	// SpeedReportEvery is the simulated period between speed reports in the run loops.
	SpeedReportEvery simtime.Tick

	// Nominal speeds in m/s used to time trip legs.
	WalkSpeed  float64
	DriveSpeed float64
	BusSpeed   float64

	BusDwellTicks simtime.Tick
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "sim"
	}
	if c.SpeedReportEvery == 0 {
		c.SpeedReportEvery = simtime.FromMinutes(1)
	}
	if c.WalkSpeed <= 0 {
		c.WalkSpeed = 1.34
	}
	if c.DriveSpeed <= 0 {
		c.DriveSpeed = 10
	}
	if c.BusSpeed <= 0 {
		c.BusSpeed = 8
	}
	if c.BusDwellTicks == 0 {
		c.BusDwellTicks = simtime.FromSeconds(10)
	}
}
