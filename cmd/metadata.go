package cmd

import (
	"fmt"

	"github.com/agentic-research/etfkit/internal/export"
	"github.com/agentic-research/etfkit/internal/jsontree"
	"github.com/spf13/cobra"
)

func (a *app) metadataCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "metadata",
		Short: "Commands for ETF metadata files",
	}
	c.AddCommand(a.metadataFindCmd(), a.metadataQueryCmd(), a.metadataExportCmd())
	return c
}

func (a *app) metadataFindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "find SECTOR",
		Short: "Find nodes and navigation instances by sector alias, uid or name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.loadMetadata()
			if err != nil {
				return err
			}
			findings, err := m.Find(args[0])
			if err != nil {
				return err
			}
			for _, f := range findings {
				if _, err := f.WriteTo(cmd.OutOrStdout()); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func (a *app) metadataQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query JSONPATH",
		Short: "Print the values selected by a JSONPath expression",
		Long: `Print the values selected by a JSONPath expression, one per line as
compact JSON. Containers are prefixed with their document path.`,
		Example: `  etf -m metadata.json metadata query '$.Metadata[0].dimension[*]'
  etf -m metadata.json metadata query '$..node[0]'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.loadMetadata()
			if err != nil {
				return err
			}
			matches, err := m.Select(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			opts := jsontree.EncodeOptions{ASCII: a.cfg.UseASCII()}
			for _, n := range matches {
				text, err := jsontree.Marshal(n, opts)
				if err != nil {
					return err
				}
				if n.IsContainer() {
					fmt.Fprintf(out, "%s\t%s\n", m.Path(n), text)
				} else {
					fmt.Fprintln(out, text)
				}
			}
			a.log.Info("query complete", "matches", len(matches))
			return nil
		},
	}
}

func (a *app) metadataExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export DATABASE",
		Short: "Export metadata nodes and variables to SQLite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.loadMetadata()
			if err != nil {
				return err
			}
			sectors, err := a.sectorSets(m, m.CollectSectorUIDs)
			if err != nil {
				return err
			}
			sum, err := export.Export(args[0], m.Tree, m.Nodes, m.Variables, sectors, a.log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d nodes, %d variables\n", sum.Nodes, sum.Variables)
			return nil
		},
	}
}
