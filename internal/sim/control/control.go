// Package control assigns a traffic control to every intersection. Only the crossing
// delay each control imposes is modeled.
package control

import (
	"fmt"

	"trafficsim.ai/internal/sim/mapmodel"
	"trafficsim.ai/internal/sim/simtime"
)

type Kind uint8

const (
	None Kind = iota
	StopSign
	Signal
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case StopSign:
		return "stop_sign"
	case Signal:
		return "signal"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

const (
	DefaultStopSignDelay simtime.Tick = 3 * 10 // 3 s
	DefaultSignalDelay   simtime.Tick = 15 * 10

	signalMinRoads = 4
)

type Config struct {
	StopSignDelay simtime.Tick
	SignalDelay   simtime.Tick
}

func (c *Config) applyDefaults() {
	if c.StopSignDelay == 0 {
		c.StopSignDelay = DefaultStopSignDelay
	}
	if c.SignalDelay == 0 {
		c.SignalDelay = DefaultSignalDelay
	}
}

type ControlMap struct {
	cfg   Config
	kinds []Kind
}

// New places signals at intersections joining four or more roads and stop signs
// everywhere else. Borders are uncontrolled.
func New(m *mapmodel.Map, cfg Config) *ControlMap {
	cfg.applyDefaults()
	cm := &ControlMap{cfg: cfg, kinds: make([]Kind, len(m.AllIntersections()))}
	for _, i := range m.AllIntersections() {
		switch {
		case i.Border:
			cm.kinds[i.ID] = None
		case len(i.Roads) >= signalMinRoads:
			cm.kinds[i.ID] = Signal
		default:
			cm.kinds[i.ID] = StopSign
		}
	}
	return cm
}

func (cm *ControlMap) Kind(i mapmodel.IntersectionID) Kind {
	if cm == nil || int(i) < 0 || int(i) >= len(cm.kinds) {
		return None
	}
	return cm.kinds[i]
}

// Delay is the time a vehicle loses crossing i.
func (cm *ControlMap) Delay(i mapmodel.IntersectionID) simtime.Tick {
	switch cm.Kind(i) {
	case StopSign:
		return cm.cfg.StopSignDelay
	case Signal:
		return cm.cfg.SignalDelay
	}
	return 0
}

// Counts tallies intersections per control kind.
func (cm *ControlMap) Counts() map[Kind]int {
	out := map[Kind]int{}
	for _, k := range cm.kinds {
		out[k]++
	}
	return out
}
