package scenario

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"trafficsim.ai/internal/persistence/objects"
	"trafficsim.ai/internal/sim/mapmodel"
	"trafficsim.ai/internal/sim/simtime"
	"trafficsim.ai/internal/sim/world"
)

const tracerName = "trafficsim.ai/internal/sim/scenario"

// Report is the outcome of one Instantiate call.
type Report struct {
	Scenario string `json:"scenario"`

	Trips            []world.TripRecord `json:"trips"`
	Attempted        int                `json:"attempted"`
	Skipped          map[SkipReason]int `json:"skipped,omitempty"`
	ParkedCarsSeeded int                `json:"parked_cars_seeded"`
	// WalkFallbacks counts agents with a free car but no driving goal.
	WalkFallbacks int `json:"walk_fallbacks"`
}

func (r *Report) Spawned() int { return len(r.Trips) }

// CountByMode returns how many trips of each mode were emitted.
func (r *Report) CountByMode() map[world.Mode]int {
	out := map[world.Mode]int{}
	for _, t := range r.Trips {
		out[t.Mode]++
	}
	return out
}

func (r *Report) skip(s *Skip, n int) {
	if r.Skipped == nil {
		r.Skipped = map[SkipReason]int{}
	}
	r.Skipped[s.Reason] += n
}

type instantiation struct {
	s   *Scenario
	w   *world.World
	m   *mapmodel.Map
	rng *rand.Rand
	res *Resolver

	bldgs map[string][]mapmodel.BuildingID
	roads map[string][]mapmodel.RoadID

	report *Report
}

// Instantiate expands the scenario into trips inside w. It must run at tick zero, and
// all draws come from w's seeded RNG in record order.
func (s Scenario) Instantiate(ctx context.Context, w *world.World, m *mapmodel.Map, store objects.Store) (*Report, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "scenario.Instantiate")
	defer span.End()
	span.SetAttributes(
		attribute.String("scenario", s.ScenarioName),
		attribute.String("map", s.MapName),
	)

	rep, err := s.instantiate(ctx, w, m, store)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("attempted", rep.Attempted),
		attribute.Int("spawned", rep.Spawned()),
		attribute.Int("parked_cars_seeded", rep.ParkedCarsSeeded),
	)
	return rep, nil
}

func (s Scenario) instantiate(ctx context.Context, w *world.World, m *mapmodel.Map, store objects.Store) (*Report, error) {
	logger := w.Logger()
	logger.Info("instantiating scenario", "scenario", s.ScenarioName)

	if err := s.Validate(); err != nil {
		return nil, err
	}
	if w.CurrentTick() != simtime.Zero {
		return nil, fmt.Errorf("%w: now %s", ErrNotTickZero, w.CurrentTick())
	}
	if s.MapName != m.Name() {
		return nil, fmt.Errorf("%w: scenario map %q, loaded map %q", ErrMapMismatch, s.MapName, m.Name())
	}

	hoods := map[string]*Neighborhood{}
	if store != nil {
		loaded, err := LoadAllNeighborhoods(ctx, store, s.MapName, m.GPSBounds())
		if err != nil {
			return nil, fmt.Errorf("load neighborhoods: %w", err)
		}
		hoods = loaded
	}
	hoods[Everywhere] = MakeEverywhere(m)

	in := &instantiation{
		s:      &s,
		w:      w,
		m:      m,
		rng:    w.RNG(),
		bldgs:  make(map[string][]mapmodel.BuildingID, len(hoods)),
		roads:  make(map[string][]mapmodel.RoadID, len(hoods)),
		report: &Report{Scenario: s.ScenarioName, Attempted: s.Attempted()},
	}
	for name, n := range hoods {
		in.bldgs[name] = n.FindMatchingBuildings(m)
		in.roads[name] = n.FindMatchingRoads(m)
	}
	in.res = NewResolver(m, in.bldgs, in.rng, logger)

	if err := in.seedParkedCars(); err != nil {
		return nil, err
	}
	if err := in.spawnOverTime(); err != nil {
		return nil, err
	}
	if err := in.borderSpawnOverTime(); err != nil {
		return nil, err
	}

	rep := in.report
	logger.Info("instantiated scenario",
		"scenario", s.ScenarioName,
		"attempted", rep.Attempted,
		"spawned", rep.Spawned(),
		"parked_cars", rep.ParkedCarsSeeded,
	)
	return rep, nil
}

func (in *instantiation) seedParkedCars() error {
	for _, r := range in.s.SeedParkedCars {
		if _, ok := in.bldgs[r.Neighborhood]; !ok {
			return fmt.Errorf("seed_parked_cars: neighborhood %s: %w", r.Neighborhood, ErrUndeclaredNeighborhood)
		}
		in.report.ParkedCarsSeeded += in.w.SeedParkedCars(in.m, in.bldgs[r.Neighborhood], in.roads[r.Neighborhood], r.CarsPerBuilding)
	}
	return nil
}

func (in *instantiation) spawnTick(start, stop simtime.Tick) simtime.Tick {
	return start + simtime.Tick(in.rng.Uint64N(uint64(stop-start)))
}

func (in *instantiation) emit(rec world.TripRecord) {
	in.report.Trips = append(in.report.Trips, rec)
}

func (in *instantiation) spawnOverTime() error {
	for _, r := range in.s.SpawnOverTime {
		bldgs, ok := in.bldgs[r.StartFromNeighborhood]
		if !ok {
			return fmt.Errorf("spawn_over_time: neighborhood %s: %w", r.StartFromNeighborhood, ErrUndeclaredNeighborhood)
		}
		if len(bldgs) == 0 {
			in.w.Logger().Warn("no buildings to start from", "neighborhood", r.StartFromNeighborhood, "agents", r.NumAgents)
			in.report.skip(&Skip{Reason: SkipEmptyNeighborhood, Detail: r.StartFromNeighborhood}, r.NumAgents)
			continue
		}
		for k := 0; k < r.NumAgents; k++ {
			if err := in.spawnAgent(r, bldgs); err != nil {
				return err
			}
		}
	}
	return nil
}

func (in *instantiation) spawnAgent(r SpawnOverTime, bldgs []mapmodel.BuildingID) error {
	at := in.spawnTick(r.StartTick, r.StopTick)
	// Several agents may share a building.
	from := bldgs[in.rng.IntN(len(bldgs))]

	if car, ok := in.freeCar(from); ok {
		goal, skip, err := in.res.DrivingGoal(r.Goal)
		if err != nil {
			return err
		}
		if skip == nil {
			in.emit(in.w.StartTripUsingParkedCar(at, in.m, car, from, goal))
			return nil
		}
		in.report.WalkFallbacks++
	}

	goal, skip, err := in.res.WalkingGoal(r.Goal)
	if err != nil {
		return err
	}
	if skip != nil {
		in.report.skip(skip, 1)
		return nil
	}
	in.emit(in.w.StartTripJustWalking(at, world.BuildingSpot(from, in.m), goal))
	return nil
}

func (in *instantiation) freeCar(b mapmodel.BuildingID) (world.ParkedCar, bool) {
	for _, pc := range in.w.ParkedCarsByOwner(b) {
		if !in.w.CarClaimed(pc.Car) {
			return pc, true
		}
	}
	return world.ParkedCar{}, false
}

func (in *instantiation) borderSpawnOverTime() error {
	logger := in.w.Logger()
	for _, r := range in.s.BorderSpawnOverTime {
		if !in.m.HasIntersection(r.StartFromBorder) {
			return fmt.Errorf("border_spawn_over_time: %s: %w", r.StartFromBorder, ErrUnknownIntersection)
		}

		if start, ok := world.StartAtBorder(r.StartFromBorder, in.m); ok {
			for k := 0; k < r.NumPeds; k++ {
				at := in.spawnTick(r.StartTick, r.StopTick)
				goal, skip, err := in.res.WalkingGoal(r.Goal)
				if err != nil {
					return err
				}
				if skip != nil {
					in.report.skip(skip, 1)
					continue
				}
				in.emit(in.w.StartTripJustWalking(at, start, goal))
			}
		} else if r.NumPeds > 0 {
			logger.Warn("can't start at border without sidewalk", "intersection", r.StartFromBorder, "peds", r.NumPeds)
			in.report.skip(&Skip{Reason: SkipNoSidewalk, Detail: r.StartFromBorder.String()}, r.NumPeds)
		}

		lanes := in.m.OutgoingLanes(r.StartFromBorder, mapmodel.LaneDriving)
		if len(lanes) == 0 {
			if r.NumCars > 0 {
				logger.Warn("can't start car at border", "intersection", r.StartFromBorder, "cars", r.NumCars)
				in.report.skip(&Skip{Reason: SkipNoDrivingLane, Detail: r.StartFromBorder.String()}, r.NumCars)
			}
			continue
		}
		for k := 0; k < r.NumCars; k++ {
			at := in.spawnTick(r.StartTick, r.StopTick)
			goal, skip, err := in.res.DrivingGoal(r.Goal)
			if err != nil {
				return err
			}
			if skip != nil {
				in.report.skip(skip, 1)
				continue
			}
			in.emit(in.w.StartTripWithCarAtBorder(at, in.m, lanes[0], goal))
		}
	}
	return nil
}

// SkipReasons returns the reasons present in the report, sorted.
func (r *Report) SkipReasons() []SkipReason {
	out := make([]SkipReason, 0, len(r.Skipped))
	for k := range r.Skipped {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TotalSkipped sums every skip.
func (r *Report) TotalSkipped() int {
	n := 0
	for _, c := range r.Skipped {
		n += c
	}
	return n
}
