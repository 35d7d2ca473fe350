package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"trafficsim.ai/internal/persistence/objects"
	"trafficsim.ai/internal/sim/mapmodel"
	"trafficsim.ai/internal/sim/scenario"
)

func newNeighborhoodCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "neighborhood",
		Aliases: []string{"hood"},
		Short:   "Manage neighborhood polygons",
	}

	save := &cobra.Command{
		Use:   "save FILE.poly",
		Short: "Store a polygon filter file as a neighborhood of the current map",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return a.withMapAndStore(func(m *mapmodel.Map, store objects.Store) error {
				nb, err := scenario.ParseOsmosis(f, m.Name())
				if err != nil {
					return err
				}
				if name, _ := cmd.Flags().GetString("name"); name != "" {
					nb.Name = name
				}
				n, err := nb.Finalize(m.GPSBounds())
				if err != nil {
					return err
				}
				if err := nb.Save(cmd.Context(), store); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved neighborhood %s: %d buildings, %d roads\n",
					nb.Name, len(n.FindMatchingBuildings(m)), len(n.FindMatchingRoads(m)))
				return nil
			})
		},
	}
	save.Flags().String("name", "", "neighborhood name (default: the file's first line)")

	export := &cobra.Command{
		Use:   "export-poly NAME",
		Short: "Write a stored neighborhood as a polygon filter file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("out")
			return a.withMapAndStore(func(m *mapmodel.Map, store objects.Store) error {
				nb, err := scenario.LoadNeighborhoodBuilder(cmd.Context(), store, m.Name(), args[0])
				if err != nil {
					return fmt.Errorf("neighborhood %q: %w", args[0], err)
				}
				path, err := nb.SaveAsOsmosis(dir)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	}
	export.Flags().String("out", ".", "output directory")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored neighborhoods for the current map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withMapAndStore(func(m *mapmodel.Map, store objects.Store) error {
				names, err := scenario.ListNeighborhoods(cmd.Context(), store, m.Name())
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(save, export, list)
	return cmd
}
