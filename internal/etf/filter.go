package etf

import (
	"fmt"

	"github.com/agentic-research/etfkit/internal/jsontree"
)

// FilterOut deletes, in place, every item of list for which keep returns
// false and returns the deleted indices in ascending order. The uids of the
// kept items are added to survivors when it is non-nil. Deleted subtrees
// are dropped from the catalogs and the parent cache.
func (c *CountryData) FilterOut(list *jsontree.Node, keep func(*jsontree.Node) bool, survivors jsontree.UIDSet) []int {
	var deleted []int
	for i, item := range list.Items() {
		if keep(item) {
			if survivors != nil {
				if uid := uidOf(item); uid != "" {
					survivors.Add(uid)
				}
			}
			continue
		}
		deleted = append(deleted, i)
	}
	for j := len(deleted) - 1; j >= 0; j-- {
		c.detach(list.RemoveAt(deleted[j]))
	}
	return deleted
}

// detach drops a removed subtree from the catalogs and the parent cache.
func (c *CountryData) detach(item *jsontree.Node) {
	if item.IsContainer() {
		for obj, err := range c.Traverse(item) {
			if err != nil {
				break
			}
			c.NodeIndex.Unindex(obj)
			c.VariableIndex.Unindex(obj)
			c.GridIndex.Unindex(obj)
		}
	}
	c.Forget(item)
}

// FilterReport counts what FilterSector removed.
type FilterReport struct {
	Sector           string
	UIDs             *SectorUIDs
	Nodes            int
	Variables        int
	Grids            int
	LineDescriptions int
	Values           []YearCount
}

// YearCount is the number of data values removed from one inventory.
type YearCount struct {
	Year    string
	Removed int
}

// FilterSector keeps only the country data belonging to one sector: nodes,
// variables, grids, line descriptions and data values of every inventory.
func (c *CountryData) FilterSector(sector string) (*FilterReport, error) {
	criteria := c.Metadata.SectorFilter(sector)
	uids, err := c.CollectSectorUIDs(criteria)
	if err != nil {
		return nil, fmt.Errorf("sector %q: %w", sector, err)
	}
	report := &FilterReport{Sector: sector, UIDs: uids}
	nodeUIDs, varUIDs := uids.Nodes, uids.Variables

	report.Nodes = len(c.FilterOut(c.Nodes, func(n *jsontree.Node) bool {
		return nodeUIDs.HasField(n, "uid") ||
			nodeUIDs.HasField(n, "parent_uid") ||
			nodeUIDs.HasField(n, "template_node_uid")
	}, nodeUIDs))
	c.log.Info("filtered out nodes not belonging to sector", "sector", sector, "count", report.Nodes)

	report.Variables = len(c.FilterOut(c.Variables, func(v *jsontree.Node) bool {
		return varUIDs.HasField(v, "uid") || nodeUIDs.HasField(v, "node_uid")
	}, varUIDs))
	c.log.Info("filtered out variables not belonging to sector", "sector", sector, "count", report.Variables)

	report.Grids = len(c.FilterOut(c.Grids, func(g *jsontree.Node) bool {
		return nodeUIDs.HasField(g, "node_uid")
	}, nil))
	c.log.Info("filtered out grids not belonging to sector", "sector", sector, "count", report.Grids)

	report.LineDescriptions = len(c.FilterOut(c.LineDescriptions, func(d *jsontree.Node) bool {
		return varUIDs.HasField(d, "variable_uid")
	}, nil))
	c.log.Info("filtered out line descriptions not belonging to sector", "sector", sector, "count", report.LineDescriptions)

	if c.Inventories == nil {
		return report, nil
	}
	for _, inventory := range c.Inventories.Items() {
		values, ok := inventory.Get("values")
		if !ok || !values.IsArray() {
			continue
		}
		year := ""
		if y, ok := inventory.Get("inventory_year"); ok {
			year = y.Text()
		}
		removed := len(c.FilterOut(values, func(v *jsontree.Node) bool {
			return varUIDs.HasField(v, "variable_uid")
		}, nil))
		report.Values = append(report.Values, YearCount{Year: year, Removed: removed})
		c.log.Info("filtered out data values not belonging to sector", "sector", sector, "inventory_year", year, "count", removed)
	}
	return report, nil
}
