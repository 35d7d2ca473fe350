package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"trafficsim.ai/internal/persistence/bundle"
	"trafficsim.ai/internal/persistence/objects"
	"trafficsim.ai/internal/sim/mapmodel"
	"trafficsim.ai/internal/sim/scenario"
	"trafficsim.ai/internal/sim/world"
)

func newScenarioCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Inspect, store, and move scenarios",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "describe NAME",
			Short: "Print a built-in or stored scenario for the current map",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withMapAndStore(func(m *mapmodel.Map, store objects.Store) error {
					s, err := resolveScenario(cmd.Context(), args[0], m, store)
					if err != nil {
						return err
					}
					for _, line := range s.Describe() {
						fmt.Fprintln(cmd.OutOrStdout(), line)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List stored scenarios for the current map",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withMapAndStore(func(m *mapmodel.Map, store objects.Store) error {
					names, err := scenario.ListScenarios(cmd.Context(), store, m.Name())
					if err != nil {
						return err
					}
					for _, n := range names {
						fmt.Fprintln(cmd.OutOrStdout(), n)
					}
					return nil
				})
			},
		},
		newScenarioSaveCmd(a),
		&cobra.Command{
			Use:   "validate FILE",
			Short: "Check a scenario file and dry-run it against the current map",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := readScenarioFile(args[0])
				if err != nil {
					return err
				}
				return a.withMapAndStore(func(m *mapmodel.Map, store objects.Store) error {
					w := world.New(a.tune.WorldConfig("validate"))
					w.SetLogger(a.logger.WithPrefix("validate"))
					rep, err := s.Instantiate(cmd.Context(), w, m, store)
					if err != nil {
						return err
					}
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "%s: ok, %d of %d agents would spawn, %d parked cars\n",
						s.ScenarioName, rep.Spawned(), rep.Attempted, rep.ParkedCarsSeeded)
					for _, reason := range rep.SkipReasons() {
						fmt.Fprintf(out, "  skipped %d: %s\n", rep.Skipped[reason], reason)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "export NAME FILE",
			Short: "Write a stored scenario and the neighborhoods it uses to a bundle",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				return a.withMapAndStore(func(m *mapmodel.Map, store objects.Store) error {
					s, err := scenario.LoadScenario(ctx, store, m.Name(), args[0])
					if err != nil {
						return fmt.Errorf("scenario %q: %w", args[0], err)
					}
					b, err := bundle.Export(ctx, store, m.Name(), s.ScenarioName, s.ReferencedNeighborhoods())
					if err != nil {
						return err
					}
					if err := bundle.Write(args[1], b); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "exported %s with %d neighborhoods to %s\n",
						s.ScenarioName, len(b.Neighborhoods), args[1])
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "import FILE",
			Short: "Load a bundle into the object store after validating every document",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				b, err := bundle.Read(args[0])
				if err != nil {
					return err
				}
				store, err := a.openStore()
				if err != nil {
					return err
				}
				defer store.Close()
				if err := bundle.Import(cmd.Context(), store, b, scenario.CheckDocument); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %s for map %s (neighborhoods: %s)\n",
					b.Header.Scenario, b.Header.MapName, strings.Join(b.NeighborhoodNames(), ", "))
				return nil
			},
		},
	)
	return cmd
}

func newScenarioSaveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save [FILE]",
		Short: "Validate a scenario file (or a built-in, with --builtin) and store it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			builtin, _ := cmd.Flags().GetString("builtin")
			if (builtin == "") == (len(args) == 0) {
				return fmt.Errorf("give either a scenario file or --builtin")
			}
			return a.withMapAndStore(func(m *mapmodel.Map, store objects.Store) error {
				var s scenario.Scenario
				var err error
				if builtin != "" {
					s, err = builtinScenario(builtin, m)
				} else {
					s, err = readScenarioFile(args[0])
				}
				if err != nil {
					return err
				}
				if s.MapName != m.Name() {
					return fmt.Errorf("%w: scenario map %q, loaded map %q", scenario.ErrMapMismatch, s.MapName, m.Name())
				}
				if err := s.Save(cmd.Context(), store); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved scenario %s for map %s\n", s.ScenarioName, s.MapName)
				return nil
			})
		},
	}
	cmd.Flags().String("builtin", "", "store a built-in scenario (small_spawn, big_spawn) for the current map")
	return cmd
}

func (a *app) withMapAndStore(fn func(*mapmodel.Map, objects.Store) error) error {
	m, err := a.loadMap()
	if err != nil {
		return err
	}
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(m, store)
}

// readScenarioFile runs the schema and the typed checks before decoding.
func readScenarioFile(path string) (scenario.Scenario, error) {
	var s scenario.Scenario
	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := scenario.CheckDocument(objects.Scenarios, path, data); err != nil {
		return s, fmt.Errorf("%s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func builtinScenario(name string, m *mapmodel.Map) (scenario.Scenario, error) {
	switch name {
	case scenario.SmallSpawnName:
		return scenario.SmallSpawnScenario(m), nil
	case scenario.BigSpawnName:
		return scenario.BigSpawnScenario(m), nil
	}
	return scenario.Scenario{}, fmt.Errorf("unknown built-in scenario %q", name)
}

func resolveScenario(ctx context.Context, name string, m *mapmodel.Map, store objects.Store) (scenario.Scenario, error) {
	if s, err := builtinScenario(name, m); err == nil {
		return s, nil
	}
	s, err := scenario.LoadScenario(ctx, store, m.Name(), name)
	if err != nil {
		return s, fmt.Errorf("scenario %q for map %q: %w", name, m.Name(), err)
	}
	return s, nil
}
