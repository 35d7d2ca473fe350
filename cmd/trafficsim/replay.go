package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"trafficsim.ai/internal/persistence/indexdb"
	persistlog "trafficsim.ai/internal/persistence/log"
	"trafficsim.ai/internal/sim/control"
	"trafficsim.ai/internal/sim/simtime"
	"trafficsim.ai/internal/sim/world"
)

func newReplayCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Summarize a run's tick log and optionally re-simulate it to verify digests",
		Example: `  trafficsim replay --events-dir data/events --run-id 4b1e...
  trafficsim replay --events-dir data/events --run-id 4b1e... --verify --index data/runs.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			dir := firstNonEmpty(a.v.GetString("events-dir"), a.tune.Storage.EventsDir)
			if dir == "" {
				return fmt.Errorf("missing --events-dir")
			}
			runID, _ := f.GetString("run-id")
			entries, err := persistlog.ReadTickLog(dir, runID)
			if err != nil {
				return fmt.Errorf("read tick log: %w", err)
			}
			if len(entries) == 0 {
				return fmt.Errorf("no tick log entries in %s for run %q", dir, runID)
			}
			out := cmd.OutOrStdout()
			printTickLogSummary(out, entries)

			if verify, _ := f.GetBool("verify"); !verify {
				return nil
			}
			if runID == "" {
				return fmt.Errorf("--verify needs --run-id")
			}
			opts := runOptions{Scenario: a.v.GetString("scenario"), Seed: a.tune.Seed}
			if f.Changed("seed") {
				opts.Seed = a.v.GetUint64("seed")
			}
			if path := firstNonEmpty(a.v.GetString("index"), a.tune.Storage.IndexPath); path != "" {
				info, err := lookupRun(cmd.Context(), path, runID)
				if err != nil {
					return err
				}
				opts.Scenario, opts.Seed = info.Scenario, info.Seed
			}
			checked, err := a.verifyDigests(cmd.Context(), opts, entries)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "replay ok: checked=%d ticks (scenario=%s seed=%d)\n", checked, opts.Scenario, opts.Seed)
			return nil
		},
	}
	f := cmd.Flags()
	f.String("events-dir", "", "directory holding events-*.jsonl.zst")
	f.String("run-id", "", "restrict to one run")
	f.Bool("verify", false, "re-run the scenario and compare state digests tick by tick")
	f.String("scenario", "small_spawn", "scenario to re-run (taken from --index when given)")
	f.Uint64("seed", 0, "seed to re-run with (taken from --index when given)")
	f.String("index", "", "SQLite run index to look the run up in")
	return cmd
}

func printTickLogSummary(out io.Writer, entries []world.TickLogEntry) {
	counts := map[world.EventKind]int{}
	total := 0
	for _, e := range entries {
		for _, ev := range e.Events {
			counts[ev.Kind]++
			total++
		}
	}
	kinds := make([]world.EventKind, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	fmt.Fprintf(out, "%d ticks logged (%s .. %s), %d events\n",
		len(entries), entries[0].Tick, entries[len(entries)-1].Tick, total)
	for _, k := range kinds {
		fmt.Fprintf(out, "  %-26s %d\n", k, counts[k])
	}
}

func lookupRun(ctx context.Context, path, runID string) (indexdb.RunInfo, error) {
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		return indexdb.RunInfo{}, fmt.Errorf("open run index: %w", err)
	}
	defer idx.Close()
	runs, err := idx.Runs(ctx)
	if err != nil {
		return indexdb.RunInfo{}, err
	}
	for _, r := range runs {
		if r.ID == runID {
			return r, nil
		}
	}
	return indexdb.RunInfo{}, fmt.Errorf("run %s not in index %s", runID, path)
}

// verifyDigests rebuilds the run from scratch and compares every logged digest.
func (a *app) verifyDigests(ctx context.Context, opts runOptions, entries []world.TickLogEntry) (int, error) {
	m, err := a.loadMap()
	if err != nil {
		return 0, err
	}
	store, err := a.openStore()
	if err != nil {
		return 0, err
	}
	defer store.Close()

	tune := a.tune
	tune.Seed = opts.Seed
	w := world.New(tune.WorldConfig("replay"))
	w.SetLogger(a.logger.WithPrefix("replay"))
	cm := control.New(m, tune.ControlConfig())
	digests := &digestRecorder{byTick: map[simtime.Tick]string{}}
	w.AddStepObserver(digests)

	if _, err := instantiateNamed(ctx, opts.Scenario, w, m, store); err != nil {
		return 0, err
	}

	checked := 0
	for _, e := range entries {
		for w.CurrentTick() <= e.Tick {
			w.Step(m, cm)
		}
		if got := digests.byTick[e.Tick]; got != e.Digest {
			return checked, fmt.Errorf("digest mismatch at tick %s: logged %s, replayed %s", e.Tick, e.Digest, got)
		}
		checked++
	}
	return checked, nil
}

type digestRecorder struct {
	byTick map[simtime.Tick]string
}

func (r *digestRecorder) ObserveTick(e world.TickLogEntry) { r.byTick[e.Tick] = e.Digest }

func (r *digestRecorder) ObserveSpeed(world.SpeedReport) {}
