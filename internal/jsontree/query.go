package jsontree

import (
	"fmt"
	"strings"

	"github.com/ohler55/ojg/jp"
)

// Locate resolves a path produced by Path (".key[3].other") from the root.
// ok is false when the path is malformed or any step is missing.
func (t *Tree) Locate(path string) (*Node, bool) {
	if path == "" {
		return t.Root, t.Root != nil
	}
	if !strings.HasPrefix(path, ".") && !strings.HasPrefix(path, "[") {
		path = "." + path
	}
	x, err := jp.ParseString("$" + path)
	if err != nil {
		return nil, false
	}
	cur := t.Root
	for _, frag := range x {
		switch f := frag.(type) {
		case jp.Root, jp.Bracket:
			continue
		case jp.Child:
			next, ok := cur.Get(string(f))
			if !ok {
				return nil, false
			}
			cur = next
		case jp.Nth:
			next, ok := cur.Index(int(f))
			if !ok {
				return nil, false
			}
			cur = next
		default:
			return nil, false
		}
	}
	return cur, true
}

// Select evaluates a JSONPath expression over the tree and returns the
// matching nodes by identity. Supported steps: $ and @, .child, [n]
// (negative counts from the end), * and the .. descent.
func (t *Tree) Select(expr string) ([]*Node, error) {
	x, err := jp.ParseString(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath '%s': %w", expr, err)
	}
	current := []*Node{t.Root}
	for _, frag := range x {
		var next []*Node
		switch f := frag.(type) {
		case jp.Root, jp.At:
			next = []*Node{t.Root}
		case jp.Bracket:
			next = current
		case jp.Child:
			for _, n := range current {
				if v, ok := n.Get(string(f)); ok {
					next = append(next, v)
				}
			}
		case jp.Nth:
			for _, n := range current {
				i := int(f)
				if i < 0 {
					i += n.Len()
				}
				if v, ok := n.Index(i); ok {
					next = append(next, v)
				}
			}
		case jp.Wildcard:
			for _, n := range current {
				n.eachChild(func(_ selector, child *Node) {
					next = append(next, child)
				})
			}
		case jp.Descent:
			for _, n := range current {
				next = appendDescendants(next, n)
			}
		default:
			return nil, fmt.Errorf("unsupported jsonpath step %v in '%s'", frag, expr)
		}
		current = next
	}
	return current, nil
}

// appendDescendants appends n and everything nested under it in pre-order.
func appendDescendants(out []*Node, n *Node) []*Node {
	stack := []*Node{n}
	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if item == nil {
			continue
		}
		out = append(out, item)
		var kids []*Node
		item.eachChild(func(_ selector, child *Node) {
			kids = append(kids, child)
		})
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, kids[i])
		}
	}
	return out
}
