package etf

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/agentic-research/etfkit/api"
	"github.com/agentic-research/etfkit/internal/catalog"
	"github.com/agentic-research/etfkit/internal/jsontree"
	"github.com/google/uuid"
)

// navigationDimension names the dimension whose instances hold the sector
// navigation hierarchy.
const navigationDimension = "NAVIGATION"

// namePrefix matches a reporting name that still carries its numbering,
// such as "1.A. Fuel combustion".
var namePrefix = regexp.MustCompile(`^[\p{L}\p{N}_.]+\.\s+[\p{L}\p{N}_]`)

// Metadata is the ETF metadata document: the reporting node taxonomy,
// variables, grids and dimensions shared by every country.
type Metadata struct {
	*jsontree.Tree

	cfg *api.Config
	log *slog.Logger

	Root               *jsontree.Node
	Nodes              *jsontree.Node
	Variables          *jsontree.Node
	Grids              *jsontree.Node
	Dimensions         *jsontree.Node
	DimensionInstances *jsontree.Node
	// NavigationRoot is the first instance of the NAVIGATION dimension, or
	// nil when the document has none.
	NavigationRoot *jsontree.Node

	NodeIndex              *catalog.Catalog
	DimensionInstanceIndex *catalog.Catalog
	GridIndex              *catalog.Catalog
}

// NewMetadata binds the sections of tree and builds its catalogs.
func NewMetadata(tree *jsontree.Tree, opts ...Option) (*Metadata, error) {
	o := buildOptions(opts)
	m := &Metadata{
		Tree:                   tree,
		cfg:                    o.cfg,
		log:                    o.log,
		NodeIndex:              catalog.New(NodeAttributes...),
		DimensionInstanceIndex: catalog.New("uid", "name"),
		GridIndex:              catalog.New("node_uid"),
	}

	top, err := field(tree.Root, "Metadata", jsontree.Array)
	if err != nil {
		return nil, err
	}
	root, ok := top.Index(0)
	if !ok || !root.IsObject() {
		return nil, fmt.Errorf("%w: %q", ErrMissingSection, "Metadata[0]")
	}
	m.Root = root
	for key, dst := range map[string]**jsontree.Node{
		"node":               &m.Nodes,
		"variable":           &m.Variables,
		"grid":               &m.Grids,
		"dimension":          &m.Dimensions,
		"dimension_instance": &m.DimensionInstances,
	} {
		if *dst, err = field(root, key, jsontree.Array); err != nil {
			return nil, fmt.Errorf("metadata: %w", err)
		}
	}
	m.logVersion()

	if err := m.NodeIndex.IndexAll(m.Traverse(m.Nodes)); err != nil {
		return nil, fmt.Errorf("index metadata nodes: %w", err)
	}
	m.NavigationRoot = m.navigationRoot()
	if m.NavigationRoot == nil {
		m.log.Warn("metadata has no navigation dimension instance", "dimension", navigationDimension)
	} else if err := m.DimensionInstanceIndex.IndexAll(m.Traverse(m.NavigationRoot)); err != nil {
		return nil, fmt.Errorf("index navigation: %w", err)
	}
	for _, grid := range m.Grids.Items() {
		if grid.IsObject() {
			m.GridIndex.Index(grid)
		}
	}
	m.log.Debug("metadata indexed",
		"nodes", m.NodeIndex.Len(),
		"navigation_instances", m.DimensionInstanceIndex.Len(),
		"grids", m.GridIndex.Len())
	return m, nil
}

func (m *Metadata) logVersion() {
	version, ok := m.Root.Get("version")
	if !ok || !version.IsObject() {
		return
	}
	attrs := []any{}
	for _, key := range []string{"name", "version", "publication_date"} {
		if v, ok := version.Get(key); ok && !v.IsContainer() {
			attrs = append(attrs, key, v.Text())
		}
	}
	m.log.Debug("metadata version", attrs...)
}

// navigationRoot finds the first dimension instance whose dimension_id is
// the id of the NAVIGATION dimension.
func (m *Metadata) navigationRoot() *jsontree.Node {
	var id jsontree.ScalarKey
	found := false
	for _, dim := range m.Dimensions.Items() {
		if name, ok := dim.Str("name"); !ok || name != navigationDimension {
			continue
		}
		if v, ok := dim.Get("id"); ok {
			id, found = v.ScalarKey()
		}
		break
	}
	if !found {
		return nil
	}
	for _, di := range m.DimensionInstances.Items() {
		v, ok := di.Get("dimension_id")
		if !ok {
			continue
		}
		if key, ok := v.ScalarKey(); ok && key == id {
			return di
		}
	}
	return nil
}

// SectorFilter turns a sector argument into search criteria: a UUID matches
// by uid, a configured alias resolves to its uid, anything else matches by
// name.
func (m *Metadata) SectorFilter(sector string) catalog.Criteria {
	if u, err := uuid.Parse(sector); err == nil && u.Version() == 4 {
		return catalog.Criteria{"uid": catalog.String(sector)}
	}
	if uid, ok := m.cfg.SectorUID(sector); ok {
		m.log.Debug("resolved sector alias", "alias", sector, "uid", uid)
		return catalog.Criteria{"uid": catalog.String(uid)}
	}
	return catalog.Criteria{"name": catalog.String(sector)}
}

// FindNodes searches the node catalog. A name criterion that carries its
// numbering ("1.A. Fuel combustion") is split into name_prefix and name.
func (m *Metadata) FindNodes(criteria catalog.Criteria) ([]*jsontree.Node, error) {
	if name, ok := criteria["name"]; ok && name.Kind == jsontree.String && namePrefix.MatchString(name.Text) {
		prefix, rest, _ := strings.Cut(name.Text, " ")
		split := make(catalog.Criteria, len(criteria)+1)
		for k, v := range criteria {
			split[k] = v
		}
		split["name_prefix"] = catalog.String(prefix)
		split["name"] = catalog.String(strings.TrimLeft(rest, " \t"))
		criteria = split
	}
	return m.NodeIndex.Search(criteria)
}

// FindNavigationDIs searches the navigation dimension instances.
func (m *Metadata) FindNavigationDIs(criteria catalog.Criteria) ([]*jsontree.Node, error) {
	return m.DimensionInstanceIndex.Search(criteria)
}

// GetNode returns the metadata node with the given uid.
func (m *Metadata) GetNode(uid string) (*jsontree.Node, bool) {
	return lookup(m.NodeIndex, catalog.Criteria{"uid": catalog.String(uid)})
}

// GetGrid returns the metadata grid of the node with the given uid.
func (m *Metadata) GetGrid(nodeUID string) (*jsontree.Node, bool) {
	return lookup(m.GridIndex, catalog.Criteria{"node_uid": catalog.String(nodeUID)})
}

// SectorUIDs holds the uids belonging to one sector.
type SectorUIDs struct {
	Nodes              jsontree.UIDSet
	Variables          jsontree.UIDSet
	DimensionInstances jsontree.UIDSet
}

// CollectSectorUIDs gathers the uids of the nodes matching criteria (with
// their nested nodes and ancestors), the matching navigation instances, and
// the variables attached to any of those nodes.
func (m *Metadata) CollectSectorUIDs(criteria catalog.Criteria) (*SectorUIDs, error) {
	result := &SectorUIDs{
		Nodes:              jsontree.UIDSet{},
		Variables:          jsontree.UIDSet{},
		DimensionInstances: jsontree.UIDSet{},
	}

	nodes, err := m.FindNodes(criteria)
	if err != nil {
		return nil, err
	}
	for _, node := range nodes {
		m.log.Debug("found sector node", "uid", uidOf(node), "path", m.Path(node))
		uids, err := m.CollectUIDs(node)
		if err != nil {
			return nil, fmt.Errorf("collect node uids: %w", err)
		}
		result.Nodes.Merge(uids)
	}

	dis, err := m.FindNavigationDIs(criteria)
	if err != nil {
		return nil, err
	}
	for _, di := range dis {
		uids, err := m.CollectUIDs(di)
		if err != nil {
			return nil, fmt.Errorf("collect navigation uids: %w", err)
		}
		result.DimensionInstances.Merge(uids)
	}

	for _, variable := range m.Variables.Items() {
		if result.Nodes.HasField(variable, "node_uid") {
			if uid := uidOf(variable); uid != "" {
				result.Variables.Add(uid)
			}
		}
	}
	m.log.Info("collected metadata sector uids",
		"criteria", criteria.String(),
		"nodes", len(result.Nodes),
		"variables", len(result.Variables),
		"navigation_instances", len(result.DimensionInstances))
	return result, nil
}
