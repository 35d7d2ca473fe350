package world

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"trafficsim.ai/internal/sim/control"
	"trafficsim.ai/internal/sim/mapmodel"
	"trafficsim.ai/internal/sim/simtime"
)

var (
	ErrTimeLimit  = errors.New("time limit hit")
	ErrCarClaimed = errors.New("parked car already claimed by a trip")
)

// ExpectationsError is returned when the time limit passes with expectations left.
type ExpectationsError struct {
	Tick      simtime.Tick
	Remaining []Event
}

func (e *ExpectationsError) Error() string {
	parts := make([]string, len(e.Remaining))
	for i, ev := range e.Remaining {
		parts[i] = ev.String()
	}
	return fmt.Sprintf("time limit %s hit, but %d expectations never met: [%s]", e.Tick, len(e.Remaining), strings.Join(parts, "; "))
}

func (e *ExpectationsError) Unwrap() error { return ErrTimeLimit }

type benchmark struct {
	wall time.Time
	tick simtime.Tick
}

func (w *World) startBenchmark() benchmark {
	return benchmark{wall: w.now(), tick: w.tick}
}

// measureSpeed returns simulated seconds per wall-clock second since b started, then
// restarts b.
func (w *World) measureSpeed(b *benchmark) float64 {
	elapsed := w.now().Sub(b.wall).Seconds()
	simulated := (w.tick - b.tick).Seconds()
	*b = w.startBenchmark()
	if elapsed <= 0 {
		return 0
	}
	return simulated / elapsed
}

func (w *World) reportSpeed(b *benchmark) {
	speed := w.measureSpeed(b)
	summary := w.Summary()
	w.logger.Info(fmt.Sprintf("%s, speed = %.2fx", summary, speed))
	report := SpeedReport{Tick: w.tick, Ratio: speed, Summary: summary}
	for _, o := range w.observers {
		o.ObserveSpeed(report)
	}
}

// RunUntilDone steps until IsDone, calling cb after every step including the last.
func (w *World) RunUntilDone(m *mapmodel.Map, cm *control.ControlMap, cb func(*World)) {
	bench := w.startBenchmark()
	for {
		w.Step(m, cm)
		if w.tick.IsMultipleOf(w.cfg.SpeedReportEvery) {
			w.reportSpeed(&bench)
		}
		if cb != nil {
			cb(w)
		}
		if w.IsDone() {
			return
		}
	}
}

// RunUntilExpectationsMet steps until every expectation has been observed in order.
// Events that don't match the head of the queue are ignored. Reaching timeLimit first
// returns an *ExpectationsError holding the unmet remainder.
func (w *World) RunUntilExpectationsMet(m *mapmodel.Map, cm *control.ControlMap, expectations []Event, timeLimit simtime.Tick) error {
	bench := w.startBenchmark()
	remaining := append([]Event(nil), expectations...)
	for {
		if len(remaining) == 0 {
			return nil
		}
		for _, ev := range w.Step(m, cm) {
			if ev != remaining[0] {
				continue
			}
			w.logger.Info("met expectation", "tick", w.tick, "event", ev)
			remaining = remaining[1:]
			if len(remaining) == 0 {
				return nil
			}
		}
		if w.tick.IsMultipleOf(w.cfg.SpeedReportEvery) {
			w.reportSpeed(&bench)
		}
		if w.tick >= timeLimit {
			return &ExpectationsError{Tick: w.tick, Remaining: remaining}
		}
	}
}

// SpawnSpecificPedestrian starts a walk on the next tick.
func (w *World) SpawnSpecificPedestrian(from, to SidewalkSpot) TripRecord {
	return w.StartTripJustWalking(w.tick.Next(), from, to)
}

// MakePedUsingCar sends the owner of a parked car on a drive starting next tick.
func (w *World) MakePedUsingCar(m *mapmodel.Map, car CarID, to DrivingGoal) (TripRecord, error) {
	parked, ok := w.parking.Lookup(car)
	if !ok {
		return TripRecord{}, fmt.Errorf("%s is not parked", car)
	}
	if !parked.HasOwner {
		return TripRecord{}, fmt.Errorf("%s has no owner", car)
	}
	if trip, claimed := w.claimed[car]; claimed {
		return TripRecord{}, fmt.Errorf("%s already taken by %s: %w", car, trip, ErrCarClaimed)
	}
	return w.StartTripUsingParkedCar(w.tick.Next(), m, parked, parked.Owner, to), nil
}
