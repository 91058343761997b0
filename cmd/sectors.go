package cmd

import (
	"fmt"
	"maps"
	"slices"

	"github.com/agentic-research/etfkit/internal/catalog"
	"github.com/agentic-research/etfkit/internal/etf"
	"github.com/agentic-research/etfkit/internal/export"
	"github.com/agentic-research/etfkit/internal/jsontree"
	"github.com/spf13/cobra"
)

func (a *app) sectorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sectors DATABASE [PATTERN]",
		Short: "List the exported nodes of each configured sector",
		Long: `List the exported nodes of each configured sector, one "sector uid path"
line per node. PATTERN is a SQL LIKE pattern on the sector alias.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := absPath(args[0])
			if err != nil {
				return err
			}
			r, err := export.Open(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()

			pattern := ""
			if len(args) == 2 {
				pattern = args[1]
			}
			nodes, err := r.SectorNodes(cmd.Context(), pattern)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, n := range nodes {
				fmt.Fprintf(out, "%s\t%s\t%s\n", n.Sector, n.UID, n.Path)
			}
			return nil
		},
	}
}

// sectorSets collects the node uids of every configured sector alias with
// collect. Aliases without nodes are left out.
func (a *app) sectorSets(m *etf.Metadata, collect func(catalog.Criteria) (*etf.SectorUIDs, error)) (map[string]jsontree.UIDSet, error) {
	sets := make(map[string]jsontree.UIDSet, len(a.cfg.Sectors))
	for _, alias := range slices.Sorted(maps.Keys(a.cfg.Sectors)) {
		uids, err := collect(m.SectorFilter(alias))
		if err != nil {
			return nil, fmt.Errorf("sector %s: %w", alias, err)
		}
		if len(uids.Nodes) > 0 {
			sets[alias] = uids.Nodes
		}
	}
	return sets, nil
}
