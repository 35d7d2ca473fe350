// Package simtime holds the discrete clock of the simulation.
package simtime

import "fmt"

// TimestepSeconds is the simulated time covered by one tick.
const TimestepSeconds = 0.1

const ticksPerSecond = 10

// Tick counts elapsed timesteps since the start of a simulation.
type Tick uint64

const Zero Tick = 0

func FromSeconds(secs uint64) Tick { return Tick(secs * ticksPerSecond) }

func FromMinutes(mins uint64) Tick { return FromSeconds(mins * 60) }

func (t Tick) Next() Tick { return t + 1 }

// IsMultipleOf reports whether t falls exactly on a period boundary. A zero period
// never matches.
func (t Tick) IsMultipleOf(period Tick) bool {
	return period != 0 && t%period == 0
}

// Seconds converts to simulated seconds.
func (t Tick) Seconds() float64 { return float64(t) * TimestepSeconds }

// FromDuration rounds simulated seconds up to whole ticks; at least one tick.
func FromDuration(secs float64) Tick {
	if secs <= 0 {
		return 1
	}
	n := Tick(secs * ticksPerSecond)
	if float64(n) < secs*ticksPerSecond {
		n++
	}
	if n == 0 {
		n = 1
	}
	return n
}

func (t Tick) String() string {
	hours := uint64(t) / (ticksPerSecond * 3600)
	rem := uint64(t) % (ticksPerSecond * 3600)
	mins := rem / (ticksPerSecond * 60)
	rem %= ticksPerSecond * 60
	return fmt.Sprintf("%02d:%02d:%02d.%d", hours, mins, rem/ticksPerSecond, rem%ticksPerSecond)
}
