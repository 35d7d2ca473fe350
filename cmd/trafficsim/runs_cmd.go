package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"trafficsim.ai/internal/persistence/indexdb"
	"trafficsim.ai/internal/sim/world"
)

func newRunsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Query the SQLite run index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := a.openIndex()
			if err != nil {
				return err
			}
			defer idx.Close()
			runs, err := idx.Runs(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tMAP\tSCENARIO\tSEED\tEND TICK\tSTARTED")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					r.ID, r.MapName, r.Scenario, r.Seed, r.EndTick, r.StartedAt.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
	cmd.PersistentFlags().String("index", "", "SQLite run index (default: tuning storage.index_path)")

	events := &cobra.Command{
		Use:   "events RUN",
		Short: "List a run's indexed events, optionally of one kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var kind world.EventKind
			if s, _ := cmd.Flags().GetString("kind"); s != "" {
				if err := kind.UnmarshalText([]byte(s)); err != nil {
					return err
				}
			}
			idx, err := a.openIndex()
			if err != nil {
				return err
			}
			defer idx.Close()
			rows, err := idx.EventsByKind(cmd.Context(), args[0], kind)
			if err != nil {
				return err
			}
			for _, r := range rows {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", r.Tick, r.Event)
			}
			return nil
		},
	}
	events.Flags().String("kind", "", "event kind, e.g. ped_reached_border")
	cmd.AddCommand(events)
	return cmd
}

func (a *app) openIndex() (*indexdb.SQLiteIndex, error) {
	path := firstNonEmpty(a.v.GetString("index"), a.tune.Storage.IndexPath)
	if path == "" {
		return nil, fmt.Errorf("missing --index")
	}
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open run index: %w", err)
	}
	return idx, nil
}
