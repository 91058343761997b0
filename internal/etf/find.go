package etf

import (
	"fmt"
	"io"
	"strings"

	"github.com/agentic-research/etfkit/internal/jsontree"
)

// Finding is a metadata node or navigation instance matched by Find.
type Finding struct {
	// Kind is "node" or "dimension instance".
	Kind string
	UID  string
	Path string
	// Sectors are the titles of the named ancestors of a node, outermost
	// first. Title is the node's own title.
	Sectors []string
	Title   string
}

// Title renders "name_prefix name" of a node.
func Title(n *jsontree.Node) string {
	prefix, _ := n.Str("name_prefix")
	name, _ := n.Str("name")
	return strings.TrimSpace(prefix + " " + name)
}

// Find resolves a sector argument as SectorFilter does and describes the
// matching nodes followed by the matching navigation instances.
func (m *Metadata) Find(sector string) ([]Finding, error) {
	criteria := m.SectorFilter(sector)
	m.log.Info("searching", "criteria", criteria.String())

	nodes, err := m.FindNodes(criteria)
	if err != nil {
		return nil, err
	}
	var out []Finding
	for _, node := range nodes {
		chain, err := m.Ancestors(node)
		if err != nil {
			return nil, fmt.Errorf("find %s: %w", sector, err)
		}
		f := Finding{Kind: "node", UID: uidOf(node), Path: m.Path(node), Title: Title(node)}
		for _, parent := range chain {
			if parent.IsObject() && parent.Has("name") {
				f.Sectors = append(f.Sectors, Title(parent))
			}
		}
		out = append(out, f)
	}

	dis, err := m.FindNavigationDIs(criteria)
	if err != nil {
		return nil, err
	}
	for _, di := range dis {
		out = append(out, Finding{Kind: "dimension instance", UID: uidOf(di), Path: m.Path(di), Title: Title(di)})
	}
	m.log.Info("search complete", "nodes", len(nodes), "dimension_instances", len(dis))
	return out, nil
}

// WriteTo renders a finding in the layout of "etf metadata find".
func (f Finding) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s at %s\n", f.Kind, f.UID, f.Path)
	if f.Kind == "node" {
		for _, s := range f.Sectors {
			fmt.Fprintf(&b, "\tsector: %s\n", s)
		}
		fmt.Fprintf(&b, "\tnode: %s\n", f.Title)
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}
