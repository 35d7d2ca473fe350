package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"trafficsim.ai/internal/persistence/objects"
	"trafficsim.ai/internal/sim/mapmodel"
	"trafficsim.ai/internal/sim/tuning"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries what every subcommand needs once flags and env are resolved.
type app struct {
	v      *viper.Viper
	logger *log.Logger
	tune   tuning.Tuning
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "trafficsim",
		Short: "Traffic demand generation and simulation runs",
		Long: `trafficsim turns scenarios (who travels from where to where, and when)
into trips on a road map, then steps the simulation until every trip is done.

Flags can also be set through TRAFFICSIM_* environment variables, e.g.
TRAFFICSIM_LOG_LEVEL=debug or TRAFFICSIM_STORE_BACKEND=sqlite.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("tuning", "", "path to tuning.yaml (defaults built in)")
	pf.String("map", "", "path to a YAML map (default: a synthetic grid)")
	pf.String("grid", "3x3", "synthetic grid size COLSxROWS when --map is empty")
	pf.String("store-backend", "", "object store backend: file or sqlite (overrides tuning)")
	pf.String("store-path", "", "object store directory or database (overrides tuning)")

	a.v.SetEnvPrefix("TRAFFICSIM")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	_ = a.v.BindPFlags(pf)

	root.AddCommand(
		newRunCmd(a),
		newScenarioCmd(a),
		newNeighborhoodCmd(a),
		newReplayCmd(a),
		newRunsCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	_ = a.v.BindPFlags(cmd.Flags())

	level, err := log.ParseLevel(a.v.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	a.logger = log.NewWithOptions(cmd.ErrOrStderr(), log.Options{
		Level:           level,
		ReportTimestamp: true,
	})

	tune, err := tuning.LoadOrDefault(a.v.GetString("tuning"))
	if err != nil {
		return fmt.Errorf("load tuning: %w", err)
	}
	if b := a.v.GetString("store-backend"); b != "" {
		tune.Storage.Backend = b
	}
	if p := a.v.GetString("store-path"); p != "" {
		tune.Storage.Path = p
	}
	a.tune = tune
	return nil
}

func (a *app) loadMap() (*mapmodel.Map, error) {
	if path := a.v.GetString("map"); path != "" {
		m, err := mapmodel.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load map: %w", err)
		}
		return m, nil
	}
	cols, rows, err := parseGrid(a.v.GetString("grid"))
	if err != nil {
		return nil, err
	}
	return mapmodel.Grid(mapmodel.GridConfig{Cols: cols, Rows: rows, BusRoute: true})
}

func parseGrid(s string) (cols, rows int, err error) {
	c, r, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("--grid %q: want COLSxROWS", s)
	}
	if cols, err = strconv.Atoi(c); err != nil || cols < 2 {
		return 0, 0, fmt.Errorf("--grid %q: bad column count", s)
	}
	if rows, err = strconv.Atoi(r); err != nil || rows < 2 {
		return 0, 0, fmt.Errorf("--grid %q: bad row count", s)
	}
	return cols, rows, nil
}

func (a *app) openStore() (objects.Store, error) {
	st := a.tune.Storage
	location := st.Path
	if st.Backend == "sqlite" && filepath.Ext(location) == "" {
		location = filepath.Join(location, "objects.db")
	}
	store, err := objects.Open(st.Backend, location)
	if err != nil {
		return nil, fmt.Errorf("open object store: %w", err)
	}
	return store, nil
}
