// Package observability exposes Prometheus metrics and OpenTelemetry tracing for
// simulation runs.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trafficsim.ai/internal/sim/scenario"
	"trafficsim.ai/internal/sim/world"
)

// RunCollector bundles the run-loop and instantiation metrics. It implements
// world.StepObserver so it can be attached to a World directly.
type RunCollector struct {
	gatherer prometheus.Gatherer

	Ticks      prometheus.Counter
	Events     *prometheus.CounterVec
	SpeedRatio prometheus.Gauge

	TripsSpawned     *prometheus.CounterVec
	AgentsSkipped    *prometheus.CounterVec
	ParkedCarsSeeded prometheus.Counter
	WalkFallbacks    prometheus.Counter
}

var (
	_ world.StepObserver = (*RunCollector)(nil)
	_ world.DigestFilter = (*RunCollector)(nil)
)

// NewRunCollector registers the metrics against reg, defaulting to the global
// registry when nil. Registering twice against the same registry reuses the
// existing collectors.
func NewRunCollector(reg prometheus.Registerer) (*RunCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	ticks, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trafficsim_ticks_total",
		Help: "Simulation ticks stepped.",
	}), "trafficsim_ticks_total")
	if err != nil {
		return nil, err
	}
	events, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trafficsim_events_total",
		Help: "Events observed during stepping, labeled by kind.",
	}, []string{"kind"}), "trafficsim_events_total")
	if err != nil {
		return nil, err
	}
	speed, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trafficsim_speed_ratio",
		Help: "Simulated seconds per wall-clock second at the last speed report.",
	}), "trafficsim_speed_ratio")
	if err != nil {
		return nil, err
	}
	trips, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trafficsim_trips_spawned_total",
		Help: "Trips handed to the spawner by scenario instantiation, labeled by mode.",
	}, []string{"mode"}), "trafficsim_trips_spawned_total")
	if err != nil {
		return nil, err
	}
	skipped, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trafficsim_agents_skipped_total",
		Help: "Agents dropped during instantiation, labeled by reason.",
	}, []string{"reason"}), "trafficsim_agents_skipped_total")
	if err != nil {
		return nil, err
	}
	parked, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trafficsim_parked_cars_seeded_total",
		Help: "Parked cars seeded by scenario instantiation.",
	}), "trafficsim_parked_cars_seeded_total")
	if err != nil {
		return nil, err
	}
	fallbacks, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trafficsim_walk_fallbacks_total",
		Help: "Agents with a free car and no driving goal who walked instead.",
	}), "trafficsim_walk_fallbacks_total")
	if err != nil {
		return nil, err
	}

	return &RunCollector{
		gatherer:         gatherer,
		Ticks:            ticks,
		Events:           events,
		SpeedRatio:       speed,
		TripsSpawned:     trips,
		AgentsSkipped:    skipped,
		ParkedCarsSeeded: parked,
		WalkFallbacks:    fallbacks,
	}, nil
}

func (c *RunCollector) ObserveTick(entry world.TickLogEntry) {
	if c == nil {
		return
	}
	c.Ticks.Inc()
	for _, ev := range entry.Events {
		c.Events.WithLabelValues(ev.Kind.String()).Inc()
	}
}

// NeedsDigest is false: the counters never read the state digest.
func (c *RunCollector) NeedsDigest(world.TickLogEntry) bool { return false }

func (c *RunCollector) ObserveSpeed(report world.SpeedReport) {
	if c == nil {
		return
	}
	c.SpeedRatio.Set(report.Ratio)
}

// ObserveInstantiation adds one instantiation outcome to the counters.
func (c *RunCollector) ObserveInstantiation(r *scenario.Report) {
	if c == nil || r == nil {
		return
	}
	for mode, n := range r.CountByMode() {
		c.TripsSpawned.WithLabelValues(string(mode)).Add(float64(n))
	}
	for reason, n := range r.Skipped {
		c.AgentsSkipped.WithLabelValues(string(reason)).Add(float64(n))
	}
	c.ParkedCarsSeeded.Add(float64(r.ParkedCarsSeeded))
	c.WalkFallbacks.Add(float64(r.WalkFallbacks))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *RunCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return c, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, g prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return g, nil
}
