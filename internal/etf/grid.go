package etf

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agentic-research/etfkit/internal/catalog"
	"github.com/agentic-research/etfkit/internal/jsontree"
)

// CloneGridFromTemplate copies the grid of a template node for nodeUID. Every
// group of the copy that references a variable gets a fresh uid, keeps its
// old uid as template_group_uid, and is pointed at the node's own variable
// for the same template variable, which is created when missing. The copy
// is returned unattached.
func (c *CountryData) CloneGridFromTemplate(templateNodeUID, nodeUID string) (*jsontree.Node, error) {
	template, ok := c.GetGrid(templateNodeUID, true)
	if !ok {
		return nil, fmt.Errorf("%w: no grid for template node %s", ErrDanglingReference, templateNodeUID)
	}
	grid := template.Clone()
	grid.SetString("node_uid", nodeUID)

	groups, ok := grid.Get("group")
	if !ok || !groups.IsContainer() {
		return grid, nil
	}
	objs, err := c.Objects(groups)
	if err != nil {
		return nil, fmt.Errorf("clone grid of %s: %w", templateNodeUID, err)
	}
	// the clone is not part of the document yet
	defer c.Forget(groups)

	for _, group := range objs {
		uid, hasUID := group.Get("uid")
		varUID, hasVar := group.Get("variable_uid")
		if !hasUID || !hasVar {
			continue
		}
		group.Set("template_group_uid", uid.Clone())
		group.SetString("uid", MakeUID())
		key, ok := varUID.ScalarKey()
		if !ok || varUID.IsNull() {
			continue
		}
		variable, ok := lookup(c.VariableIndex, catalog.Criteria{
			"node_uid":         catalog.String(nodeUID),
			"template_var_uid": key,
		})
		if !ok {
			c.log.Debug("adding missing variable", "node_uid", nodeUID, "template_var_uid", key.Text)
			variable = c.MakeVariable(nodeUID, varUID.Clone())
		}
		group.SetString("variable_uid", uidOf(variable))
	}
	return grid, nil
}

// FixNodeGrid gives a templated node without a grid of its own a copy of
// its template's grid. It reports whether a grid was added. A node still
// naming a country parent was left in place by ReparentNodes and is skipped.
func (c *CountryData) FixNodeGrid(node *jsontree.Node) (bool, error) {
	templateUID, ok := node.Str("template_node_uid")
	if !ok || templateUID == "" {
		return false, nil
	}
	uid := uidOf(node)
	if uid == "" {
		return false, nil
	}
	if parentUID, ok := node.Str("parent_uid"); ok && !IsMetadataUID(parentUID) {
		c.log.Debug("skipping broken node due to missing parent",
			"uid", uid, "parent_uid", parentUID, "path", c.Path(node))
		return false, nil
	}
	if _, ok := c.GetGrid(uid, false); ok {
		return false, nil
	}
	c.log.Debug("detected node with missing grid", "uid", uid, "path", c.Path(node))

	grid, err := c.CloneGridFromTemplate(templateUID, uid)
	if errors.Is(err, ErrDanglingReference) {
		c.log.Warn("cannot add missing grid", "uid", uid, "template_node_uid", templateUID, "err", err)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	c.Grids.Append(grid)
	c.GridIndex.Index(grid)
	return true, nil
}

// FixGrids runs FixNodeGrid over every templated country node and reports
// how many grids were added.
func (c *CountryData) FixGrids() (int, error) {
	objs, err := c.Objects(c.Nodes)
	if err != nil {
		return 0, fmt.Errorf("fix grids: %w", err)
	}
	added := 0
	for _, node := range objs {
		ok, err := c.FixNodeGrid(node)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	c.log.Info("added missing grids", "count", added)
	return added, nil
}

// Requirement selects a repair performed by Fix.
type Requirement string

const (
	RequireParents Requirement = "PARENTS"
	RequireGrids   Requirement = "GRIDS"
	RequireAll     Requirement = "ALL"
)

// ParseRequirement accepts a requirement name in any case.
func ParseRequirement(s string) (Requirement, error) {
	switch r := Requirement(strings.ToUpper(s)); r {
	case RequireParents, RequireGrids, RequireAll:
		return r, nil
	}
	return "", fmt.Errorf("unknown fix requirement %q (want PARENTS, GRIDS or ALL)", s)
}

// FixReport summarises the repairs made by Fix.
type FixReport struct {
	Moves      []Move
	GridsAdded int
}

// Fix performs the requested repairs. Parents are fixed before grids so
// that reparented nodes are eligible for a grid.
func (c *CountryData) Fix(reqs ...Requirement) (*FixReport, error) {
	want := map[Requirement]bool{}
	for _, r := range reqs {
		want[r] = true
	}
	report := &FixReport{}
	var err error
	if want[RequireParents] || want[RequireAll] {
		if report.Moves, err = c.ReparentNodes(); err != nil {
			return report, err
		}
	}
	if want[RequireGrids] || want[RequireAll] {
		if report.GridsAdded, err = c.FixGrids(); err != nil {
			return report, err
		}
	}
	return report, nil
}
