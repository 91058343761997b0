package etf

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agentic-research/etfkit/api"
	"github.com/agentic-research/etfkit/internal/catalog"
	"github.com/agentic-research/etfkit/internal/jsontree"
)

// CountryData is one country's ETF data file together with the metadata it
// was reported against.
type CountryData struct {
	*jsontree.Tree
	Metadata *Metadata

	cfg *api.Config
	log *slog.Logger

	CountryMetadata  *jsontree.Node
	Nodes            *jsontree.Node
	Variables        *jsontree.Node
	Grids            *jsontree.Node
	LineDescriptions *jsontree.Node
	// Inventories is data.values, or nil when the file carries no values.
	Inventories *jsontree.Node

	NodeIndex     *catalog.Catalog
	VariableIndex *catalog.Catalog
	GridIndex     *catalog.Catalog
}

// NewCountryData binds the sections of tree and builds its catalogs. Missing
// grid and line description lists are created empty.
func NewCountryData(tree *jsontree.Tree, metadata *Metadata, opts ...Option) (*CountryData, error) {
	o := buildOptions(opts)
	c := &CountryData{
		Tree:          tree,
		Metadata:      metadata,
		cfg:           o.cfg,
		log:           o.log,
		NodeIndex:     catalog.New(NodeAttributes...),
		VariableIndex: catalog.New("uid", "node_uid", "template_var_uid"),
		GridIndex:     catalog.New("node_uid"),
	}

	var err error
	if c.CountryMetadata, err = field(tree.Root, "country_specific_data", jsontree.Object); err != nil {
		return nil, err
	}
	if c.Nodes, err = field(c.CountryMetadata, "nodes", jsontree.Array); err != nil {
		return nil, fmt.Errorf("country_specific_data: %w", err)
	}
	if c.Variables, err = field(c.CountryMetadata, "variables", jsontree.Array); err != nil {
		return nil, fmt.Errorf("country_specific_data: %w", err)
	}
	if c.Grids, err = fieldOrCreate(c.CountryMetadata, "grids"); err != nil {
		return nil, fmt.Errorf("country_specific_data: %w", err)
	}
	if c.LineDescriptions, err = fieldOrCreate(c.CountryMetadata, "line_description"); err != nil {
		return nil, fmt.Errorf("country_specific_data: %w", err)
	}
	if data, ok := tree.Root.Get("data"); ok && data.IsObject() {
		if values, ok := data.Get("values"); ok && values.IsArray() {
			c.Inventories = values
		}
	}

	if err := c.NodeIndex.IndexAll(c.Traverse(c.Nodes)); err != nil {
		return nil, fmt.Errorf("index nodes: %w", err)
	}
	for _, v := range c.Variables.Items() {
		if v.IsObject() {
			c.VariableIndex.Index(v)
		}
	}
	if err := c.GridIndex.IndexAll(c.Traverse(c.Grids)); err != nil {
		return nil, fmt.Errorf("index grids: %w", err)
	}
	c.log.Debug("country data indexed",
		"nodes", c.NodeIndex.Len(),
		"variables", c.VariableIndex.Len(),
		"grids", c.GridIndex.Len())
	return c, nil
}

// IsMetadataUID reports whether uid lives in the shared metadata namespace.
// Metadata uids are dashed UUIDs; country uids minted by MakeUID are not.
func IsMetadataUID(uid string) bool {
	return strings.Contains(uid, "-")
}

// MakeUID mints a fresh country-local uid: 24 lowercase hex characters.
func MakeUID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// GetNode returns the country node with the given uid, falling back to the
// metadata when fallback is set.
func (c *CountryData) GetNode(uid string, fallback bool) (*jsontree.Node, bool) {
	if n, ok := lookup(c.NodeIndex, catalog.Criteria{"uid": catalog.String(uid)}); ok {
		return n, true
	}
	if fallback && c.Metadata != nil {
		return c.Metadata.GetNode(uid)
	}
	return nil, false
}

// GetGrid returns the country grid of a node, falling back to the metadata
// when fallback is set.
func (c *CountryData) GetGrid(nodeUID string, fallback bool) (*jsontree.Node, bool) {
	if g, ok := lookup(c.GridIndex, catalog.Criteria{"node_uid": catalog.String(nodeUID)}); ok {
		return g, true
	}
	if fallback && c.Metadata != nil {
		return c.Metadata.GetGrid(nodeUID)
	}
	return nil, false
}

// CollectSectorUIDs extends the metadata sector uids with the country nodes
// hanging below them and with the country variables of all those nodes.
// Country nodes may hang below other country nodes, so the node set is
// grown until a pass adds nothing.
func (c *CountryData) CollectSectorUIDs(criteria catalog.Criteria) (*SectorUIDs, error) {
	result, err := c.Metadata.CollectSectorUIDs(criteria)
	if err != nil {
		return nil, err
	}
	nodes := c.Nodes.Items()
	for pass := 1; ; pass++ {
		grown := 0
		for _, node := range nodes {
			if !result.Nodes.HasField(node, "parent_uid") {
				continue
			}
			for obj, err := range c.Traverse(node) {
				if err != nil {
					return nil, fmt.Errorf("collect country nodes: %w", err)
				}
				if uid := uidOf(obj); uid != "" && !result.Nodes.Has(uid) {
					result.Nodes.Add(uid)
					grown++
				}
			}
		}
		if grown == 0 {
			break
		}
		c.log.Debug("country node closure grew", "pass", pass, "added", grown)
	}

	before := len(result.Variables)
	for _, v := range c.Variables.Items() {
		if result.Nodes.HasField(v, "node_uid") {
			if uid := uidOf(v); uid != "" {
				result.Variables.Add(uid)
			}
		}
	}
	c.log.Info("collected country sector uids",
		"nodes", len(result.Nodes),
		"variables", len(result.Variables),
		"country_variables", len(result.Variables)-before)
	return result, nil
}

// MakeVariable appends and indexes a new country variable for a node.
func (c *CountryData) MakeVariable(nodeUID string, templateVarUID *jsontree.Node) *jsontree.Node {
	if templateVarUID == nil {
		templateVarUID = jsontree.NewNull()
	}
	v := jsontree.NewObject().
		SetString("uid", MakeUID()).
		SetString("node_uid", nodeUID).
		Set("template_var_uid", templateVarUID)
	c.Variables.Append(v)
	c.VariableIndex.Index(v)
	return v
}
