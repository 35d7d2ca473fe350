package scenario

import (
	"errors"
	"fmt"
)

// Validate checks the scenario on its own, without a map. Instantiate calls it first.
func (s Scenario) Validate() error {
	var errs []error
	if s.ScenarioName == "" {
		errs = append(errs, fmt.Errorf("%w: missing scenario_name", ErrInvalid))
	}
	if s.MapName == "" {
		errs = append(errs, fmt.Errorf("%w: missing map_name", ErrInvalid))
	}
	for i, r := range s.SeedParkedCars {
		if r.Neighborhood == "" {
			errs = append(errs, fmt.Errorf("%w: seed_parked_cars[%d] has no neighborhood", ErrInvalid, i))
		}
		total := uint(0)
		for _, w := range r.CarsPerBuilding.Weights {
			total += w
		}
		if total == 0 {
			errs = append(errs, fmt.Errorf("seed_parked_cars[%d]: %w", i, ErrNoWeights))
		}
	}
	for i, r := range s.SpawnOverTime {
		if r.NumAgents < 0 {
			errs = append(errs, fmt.Errorf("spawn_over_time[%d]: %w", i, ErrNegativeCount))
		}
		if r.StopTick <= r.StartTick {
			errs = append(errs, fmt.Errorf("spawn_over_time[%d] [%d, %d): %w", i, r.StartTick, r.StopTick, ErrEmptySpawnWindow))
		}
		if r.StartFromNeighborhood == "" {
			errs = append(errs, fmt.Errorf("%w: spawn_over_time[%d] has no start_neighborhood", ErrInvalid, i))
		}
		if err := r.Goal.validate(); err != nil {
			errs = append(errs, fmt.Errorf("spawn_over_time[%d]: %w", i, err))
		}
	}
	for i, r := range s.BorderSpawnOverTime {
		if r.NumPeds < 0 || r.NumCars < 0 {
			errs = append(errs, fmt.Errorf("border_spawn_over_time[%d]: %w", i, ErrNegativeCount))
		}
		if r.StopTick <= r.StartTick {
			errs = append(errs, fmt.Errorf("border_spawn_over_time[%d] [%d, %d): %w", i, r.StartTick, r.StopTick, ErrEmptySpawnWindow))
		}
		if err := r.Goal.validate(); err != nil {
			errs = append(errs, fmt.Errorf("border_spawn_over_time[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (od OriginDestination) validate() error {
	switch od.Kind {
	case ODNeighborhood:
		if od.Name == "" {
			return fmt.Errorf("%w: neighborhood goal without name", ErrInvalid)
		}
	case ODBorder:
	default:
		return fmt.Errorf("%w: goal kind %q", ErrInvalid, od.Kind)
	}
	return nil
}
