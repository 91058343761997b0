package etf

import (
	"fmt"

	"github.com/agentic-research/etfkit/internal/jsontree"
)

// Move records a node that ReparentNodes placed under a new parent.
type Move struct {
	Node   *jsontree.Node
	Parent *jsontree.Node
}

// ReparentNodes moves top-level country nodes that name a country parent
// (both template_node_uid and parent_uid set, neither a metadata uid) into
// that parent's "node" list and drops their parent_uid. Nodes whose parent
// cannot be found, or whose move would put a node below itself, stay where
// they are. The node catalog and parent cache are rebuilt afterwards.
func (c *CountryData) ReparentNodes() ([]Move, error) {
	// fill the parent cache before the structure changes
	if _, err := c.Parent(c.Nodes); err != nil {
		return nil, fmt.Errorf("reparent: %w", err)
	}
	if _, err := c.Objects(c.Nodes); err != nil {
		return nil, fmt.Errorf("reparent: %w", err)
	}

	var (
		moves    []Move
		moved    []int
		movedTo  = map[jsontree.Handle]*jsontree.Node{}
		topLevel = c.Nodes.Items()
	)
	for i, node := range topLevel {
		if !node.IsObject() || !node.Has("template_node_uid") {
			continue
		}
		parentUID, ok := node.Str("parent_uid")
		if !ok {
			continue
		}
		uid := uidOf(node)
		if IsMetadataUID(uid) || IsMetadataUID(parentUID) {
			continue
		}
		parent, ok := c.GetNode(parentUID, false)
		if !ok {
			c.log.Error("node refers to missing parent node",
				"uid", uid, "parent_uid", parentUID, "path", c.Path(node))
			continue
		}
		if c.isBelow(parent, node, movedTo) {
			c.log.Error("refusing to move node below itself",
				"uid", uid, "parent_uid", parentUID, "path", c.Path(node))
			continue
		}

		children, ok := parent.Get("node")
		if !ok || !children.IsArray() {
			children = jsontree.NewArray()
			parent.Set("node", children)
		}
		children.Append(node)
		node.Delete("parent_uid")
		movedTo[node.Handle()] = parent
		moved = append(moved, i)
		moves = append(moves, Move{Node: node, Parent: parent})
		c.log.Debug("moved child node under parent node", "uid", uid, "parent_uid", parentUID)
	}
	if len(moves) == 0 {
		return nil, nil
	}

	c.NodeIndex.Clear()
	for j := len(moved) - 1; j >= 0; j-- {
		c.Nodes.RemoveAt(moved[j])
	}
	c.ResetParents()
	if err := c.NodeIndex.IndexAll(c.Traverse(c.Nodes)); err != nil {
		return nil, fmt.Errorf("reindex nodes: %w", err)
	}
	c.log.Info("reparented country nodes", "count", len(moves))
	return moves, nil
}

// isBelow reports whether n is node itself or sits below it, following
// moves made so far and otherwise the parent links cached before them.
func (c *CountryData) isBelow(n, node *jsontree.Node, movedTo map[jsontree.Handle]*jsontree.Node) bool {
	for n != nil && n != c.Nodes {
		if n == node {
			return true
		}
		if p, ok := movedTo[n.Handle()]; ok {
			n = p
			continue
		}
		p, ok := c.CachedParent(n)
		if !ok {
			return false
		}
		n = p
	}
	return false
}
