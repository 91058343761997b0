package cmd

import (
	"fmt"

	"github.com/agentic-research/etfkit/internal/etf"
	"github.com/agentic-research/etfkit/internal/export"
	"github.com/spf13/cobra"
)

func (a *app) dataCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "data",
		Short: "Commands for ETF country report files",
	}
	c.AddCommand(a.dataFilterCmd(), a.dataFixCmd(), a.dataStatsCmd(), a.dataExportCmd())
	return c
}

func (a *app) dataFilterCmd() *cobra.Command {
	var sector string
	c := &cobra.Command{
		Use:   "filter -s SECTOR [INPUT] [OUTPUT]",
		Short: "Output the part of a data file that belongs to one sector",
		Long: `Output the part of a data file that belongs to one sector. SECTOR is a
configured alias (energy, ippu, lulucf, ...), a node uid or a node name.
INPUT and OUTPUT default to stdin and stdout.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			country, err := a.readCountry(cmd, argAt(args, 0))
			if err != nil {
				return err
			}
			report, err := country.FilterSector(sector)
			if err != nil {
				return err
			}
			a.log.Info("sector filtered",
				"sector", sector,
				"nodes", report.Nodes,
				"variables", report.Variables,
				"grids", report.Grids,
				"line_descriptions", report.LineDescriptions)
			return a.writeTree(cmd, country.Tree, argAt(args, 1))
		},
	}
	c.Flags().StringVarP(&sector, "sector", "s", "", "alias, uid or name of the navigation node to keep")
	_ = c.MarkFlagRequired("sector")
	return c
}

func (a *app) dataFixCmd() *cobra.Command {
	var requirements []string
	c := &cobra.Command{
		Use:   "fix [INPUT] [OUTPUT]",
		Short: "Correct structural errors in a data file",
		Long: `Correct structural errors in a data file. PARENTS nests country nodes
under their country parents, GRIDS adds missing grids cloned from the node
templates, ALL does both.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs := make([]etf.Requirement, 0, len(requirements))
			for _, r := range requirements {
				req, err := etf.ParseRequirement(r)
				if err != nil {
					return err
				}
				reqs = append(reqs, req)
			}
			country, err := a.readCountry(cmd, argAt(args, 0))
			if err != nil {
				return err
			}
			report, err := country.Fix(reqs...)
			if err != nil {
				return err
			}
			a.log.Info("data fixed", "reparented", len(report.Moves), "grids_added", report.GridsAdded)
			return a.writeTree(cmd, country.Tree, argAt(args, 1))
		},
	}
	c.Flags().StringSliceVarP(&requirements, "requirements", "r", []string{string(etf.RequireAll)},
		"requirements to satisfy: GRIDS, PARENTS or ALL")
	return c
}

func (a *app) dataStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats [INPUT]",
		Short: "Print object counts and sizes of a data file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			country, err := a.readCountry(cmd, argAt(args, 0))
			if err != nil {
				return err
			}
			stats, err := country.CountStatistics()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, st := range stats {
				if !st.Found {
					fmt.Fprintf(out, "%s: not present\n", st.Label)
					continue
				}
				fmt.Fprintf(out, "%s: %d direct children, %d objects, %s\n",
					st.Label, st.Flat, st.Nested, st.HumanSize())
			}
			return nil
		},
	}
}

func (a *app) dataExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [INPUT] DATABASE",
		Short: "Export country nodes and variables to SQLite",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, db := stdio, args[0]
			if len(args) == 2 {
				input, db = args[0], args[1]
			}
			country, err := a.readCountry(cmd, input)
			if err != nil {
				return err
			}
			sectors, err := a.sectorSets(country.Metadata, country.CollectSectorUIDs)
			if err != nil {
				return err
			}
			sum, err := export.Export(db, country.Tree, country.Nodes, country.Variables, sectors, a.log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d nodes, %d variables\n", sum.Nodes, sum.Variables)
			return nil
		},
	}
}
