package world

import (
	"io"
	"math/rand/v2"
	"time"

	"github.com/charmbracelet/log"

	"trafficsim.ai/internal/sim/mapmodel"
	"trafficsim.ai/internal/sim/simtime"
)

// World is the simulation context. It owns the clock, the seeded random source, the
// parking inventory, trips, and buses. It is not safe for concurrent use.
type World struct {
	cfg WorldConfig

	tick   simtime.Tick
	rng    *rand.Rand
	logger *log.Logger
	now    func() time.Time

	parking *ParkingState
	// parked cars promised to a trip whose driver hasn't reached them yet
	claimed map[CarID]TripID

	pending  []*trip // sorted by (spawn, id)
	active   []*trip // sorted by id
	buses    []*bus
	finished int

	nextCar  CarID
	nextPed  PedestrianID
	nextTrip TripID

	// Optional sinks (may be nil). Implemented in internal/persistence/* and internal/observability.
	tickLogger TickLogger
	observers  []StepObserver
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// StepObserver receives every tick and every speed report.
type StepObserver interface {
	ObserveTick(entry TickLogEntry)
	ObserveSpeed(report SpeedReport)
}

// DigestFilter is optionally implemented by a TickLogger or StepObserver that only
// reads TickLogEntry.Digest for some entries. The digest is computed only when at least
// one sink wants it; otherwise the entry arrives with an empty Digest.
type DigestFilter interface {
	NeedsDigest(entry TickLogEntry) bool
}

type TickLogEntry struct {
	Tick   simtime.Tick `json:"tick"`
	Events []Event      `json:"events,omitempty"`
	Digest string       `json:"digest"`
}

type SpeedReport struct {
	Tick    simtime.Tick `json:"tick"`
	Ratio   float64      `json:"ratio"`
	Summary string       `json:"summary"`
}

func New(cfg WorldConfig) *World {
	cfg.applyDefaults()
	return &World{
		cfg:      cfg,
		rng:      newRNG(cfg.Seed),
		logger:   log.New(io.Discard),
		now:      time.Now,
		parking:  NewParkingState(),
		claimed:  map[CarID]TripID{},
		nextCar:  1,
		nextPed:  1,
		nextTrip: 1,
	}
}

func (w *World) Config() WorldConfig { return w.cfg }

func (w *World) ID() string { return w.cfg.ID }

func (w *World) CurrentTick() simtime.Tick { return w.tick }

// RNG is the single seeded source every draw must go through.
func (w *World) RNG() *rand.Rand { return w.rng }

func (w *World) Logger() *log.Logger { return w.logger }

func (w *World) SetLogger(l *log.Logger) {
	if l == nil {
		l = log.New(io.Discard)
	}
	w.logger = l
}

func (w *World) SetTickLogger(l TickLogger) { w.tickLogger = l }

func (w *World) AddStepObserver(o StepObserver) {
	if o != nil {
		w.observers = append(w.observers, o)
	}
}

// SetClock replaces the wall clock used for speed reports.
func (w *World) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	w.now = now
}

func (w *World) Parking() *ParkingState { return w.parking }

// ParkedCarsByOwner lists the cars parked for building b, ordered by car ID.
func (w *World) ParkedCarsByOwner(b mapmodel.BuildingID) []ParkedCar {
	return w.parking.ByOwner(b)
}

func (w *World) LookupParkedCar(car CarID) (ParkedCar, bool) {
	return w.parking.Lookup(car)
}

// CarClaimed reports whether a pending or active trip is already headed for the parked car.
func (w *World) CarClaimed(car CarID) bool {
	_, ok := w.claimed[car]
	return ok
}

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// forkRNG derives an independent generator from rng, consuming two draws.
func forkRNG(rng *rand.Rand) *rand.Rand {
	return rand.New(rand.NewPCG(rng.Uint64(), rng.Uint64()))
}
