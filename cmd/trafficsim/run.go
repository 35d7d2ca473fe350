package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"trafficsim.ai/internal/observability"
	"trafficsim.ai/internal/persistence/indexdb"
	persistlog "trafficsim.ai/internal/persistence/log"
	"trafficsim.ai/internal/persistence/objects"
	"trafficsim.ai/internal/sim/control"
	"trafficsim.ai/internal/sim/mapmodel"
	"trafficsim.ai/internal/sim/scenario"
	"trafficsim.ai/internal/sim/world"
	"trafficsim.ai/internal/transport/observer"
)

const tracerName = "trafficsim.ai/cmd/trafficsim"

type runOptions struct {
	Scenario     string
	Seed         uint64
	EventsDir    string
	KeepEmpty    bool
	IndexPath    string
	MetricsAddr  string
	ObserverAddr string
	Trace        bool
}

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Instantiate a scenario and step the simulation until every trip is done",
		Example: `  trafficsim run --scenario small_spawn --grid 4x4
  trafficsim run --map maps/downtown.yaml --scenario rush_hour --events-dir data/events`,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := a.tune.Storage
			opts := runOptions{
				Scenario:     a.v.GetString("scenario"),
				Seed:         a.tune.Seed,
				EventsDir:    firstNonEmpty(a.v.GetString("events-dir"), st.EventsDir),
				KeepEmpty:    a.v.GetBool("keep-empty-ticks"),
				IndexPath:    firstNonEmpty(a.v.GetString("index"), st.IndexPath),
				MetricsAddr:  firstNonEmpty(a.v.GetString("metrics-addr"), a.tune.MetricsAddr),
				ObserverAddr: firstNonEmpty(a.v.GetString("observer-addr"), a.tune.ObserverAddr),
				Trace:        a.v.GetBool("trace"),
			}
			if cmd.Flags().Changed("seed") {
				opts.Seed = a.v.GetUint64("seed")
			}
			return a.run(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.String("scenario", scenario.SmallSpawnName, "built-in (small_spawn, big_spawn) or stored scenario name")
	f.Uint64("seed", 0, "RNG seed (overrides tuning)")
	f.String("events-dir", "", "write zstd JSONL tick logs here")
	f.Bool("keep-empty-ticks", false, "also log ticks without events")
	f.String("index", "", "record the run in this SQLite index")
	f.String("metrics-addr", "", "serve Prometheus /metrics on this address")
	f.String("observer-addr", "", "serve the observer websocket on this address")
	f.Bool("trace", false, "export OpenTelemetry spans to stderr")
	return cmd
}

// runResult is what a finished run reports on stdout.
type runResult struct {
	RunID   string
	Report  *scenario.Report
	Summary string
}

func (a *app) run(cmd *cobra.Command, opts runOptions) error {
	res, err := a.execRun(cmd.Context(), opts)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %d of %d agents spawned", res.RunID, res.Report.Spawned(), res.Report.Attempted)
	if n := res.Report.TotalSkipped(); n > 0 {
		fmt.Fprintf(out, ", %d skipped", n)
	}
	fmt.Fprintf(out, "\n%s\n", res.Summary)
	return nil
}

func (a *app) execRun(ctx context.Context, opts runOptions) (*runResult, error) {
	logger := a.logger
	m, err := a.loadMap()
	if err != nil {
		return nil, err
	}
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	defer store.Close()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     opts.Trace,
		ServiceName: "trafficsim",
		Exporter:    "stdout",
		Writer:      os.Stderr,
	}, logger)
	if err != nil {
		return nil, err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	tune := a.tune
	tune.Seed = opts.Seed
	runID := persistlog.NewRunID()
	w := world.New(tune.WorldConfig(runID))
	w.SetLogger(logger.WithPrefix("world"))
	cm := control.New(m, tune.ControlConfig())

	collector, err := observability.NewRunCollector(prometheus.NewRegistry())
	if err != nil {
		return nil, err
	}
	w.AddStepObserver(collector)

	var servers []*http.Server
	defer func() {
		for _, s := range servers {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = s.Shutdown(sctx)
			cancel()
		}
	}()
	if opts.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
			rw.WriteHeader(http.StatusOK)
			_, _ = rw.Write([]byte("ok\n"))
		})
		s, err := serve(opts.MetricsAddr, mux, logger.WithPrefix("metrics"))
		if err != nil {
			return nil, err
		}
		servers = append(servers, s)
	}
	if opts.ObserverAddr != "" {
		hub := observer.NewHub(observer.Info{
			RunID:    runID,
			WorldID:  w.ID(),
			MapName:  m.Name(),
			Scenario: opts.Scenario,
		}, observer.Options{TickHz: tune.ObserverTickHz, Logger: logger.WithPrefix("observer")})
		defer hub.Close()
		w.AddStepObserver(hub)
		mux := http.NewServeMux()
		mux.Handle(observer.Path, hub.Handler())
		s, err := serve(opts.ObserverAddr, mux, logger.WithPrefix("observer"))
		if err != nil {
			return nil, err
		}
		servers = append(servers, s)
	}

	var sinks tickSinks
	if opts.EventsDir != "" {
		el := persistlog.NewEventLogger(opts.EventsDir, runID)
		el.KeepEmpty = opts.KeepEmpty
		sinks.add(el, el.Close)
	}
	var idx *indexdb.SQLiteIndex
	if opts.IndexPath != "" {
		idx, err = indexdb.OpenSQLite(opts.IndexPath)
		if err != nil {
			return nil, fmt.Errorf("open run index: %w", err)
		}
		rl := idx.RecordRun(indexdb.RunInfo{
			ID:        runID,
			MapName:   m.Name(),
			Scenario:  opts.Scenario,
			Seed:      w.Config().Seed,
			StartedAt: time.Now().UTC(),
		})
		sinks.add(rl, idx.Close)
	}
	if !sinks.empty() {
		w.SetTickLogger(&sinks)
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			logger.Warn("closing tick sinks", "err", err)
		}
	}()

	rep, err := instantiateNamed(ctx, opts.Scenario, w, m, store)
	if err != nil {
		return nil, err
	}
	collector.ObserveInstantiation(rep)
	logger.Info("scenario instantiated",
		"run", runID, "scenario", opts.Scenario, "seed", w.Config().Seed,
		"spawned", rep.Spawned(), "skipped", rep.TotalSkipped(), "parked_cars", rep.ParkedCarsSeeded)
	for _, reason := range rep.SkipReasons() {
		logger.Warn("agents skipped", "reason", reason, "count", rep.Skipped[reason])
	}

	_, span := otel.Tracer(tracerName).Start(ctx, "world.RunUntilDone")
	span.SetAttributes(attribute.String("run_id", runID), attribute.String("scenario", opts.Scenario))
	w.RunUntilDone(m, cm, func(w *world.World) {
		if ctx.Err() == nil {
			return
		}
		// Loops can't be cancelled; persist what we have and leave.
		logger.Warn("interrupted", "tick", w.CurrentTick())
		if idx != nil {
			idx.FinishRun(runID, w.CurrentTick(), "interrupted: "+w.Summary())
		}
		_ = sinks.Close()
		os.Exit(130)
	})
	span.SetAttributes(attribute.Int64("end_tick", int64(w.CurrentTick())))
	span.End()

	summary := w.Summary()
	if idx != nil {
		idx.FinishRun(runID, w.CurrentTick(), summary)
	}
	return &runResult{RunID: runID, Report: rep, Summary: summary}, nil
}

// instantiateNamed runs a built-in scenario or loads a stored one for m.
func instantiateNamed(ctx context.Context, name string, w *world.World, m *mapmodel.Map, store objects.Store) (*scenario.Report, error) {
	if fn, ok := scenario.Builtin(name); ok {
		return fn(ctx, w, m, store)
	}
	s, err := scenario.LoadScenario(ctx, store, m.Name(), name)
	if err != nil {
		return nil, fmt.Errorf("scenario %q for map %q: %w", name, m.Name(), err)
	}
	return s.Instantiate(ctx, w, m, store)
}

func serve(addr string, h http.Handler, logger *log.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	s := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("serving", "addr", ln.Addr().String())
		if err := s.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", "err", err)
		}
	}()
	return s, nil
}

// tickSinks fans one tick out to several loggers. A failing sink doesn't stop the others.
type tickSinks struct {
	loggers []world.TickLogger
	closers []func() error
	closed  bool
}

func (s *tickSinks) add(l world.TickLogger, closer func() error) {
	s.loggers = append(s.loggers, l)
	s.closers = append(s.closers, closer)
}

func (s *tickSinks) empty() bool { return len(s.loggers) == 0 }

func (s *tickSinks) WriteTick(e world.TickLogEntry) error {
	var errs []error
	for _, l := range s.loggers {
		if err := l.WriteTick(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *tickSinks) NeedsDigest(e world.TickLogEntry) bool {
	for _, l := range s.loggers {
		if f, ok := l.(world.DigestFilter); !ok || f.NeedsDigest(e) {
			return true
		}
	}
	return false
}

func (s *tickSinks) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
