package jsontree

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring"
)

var (
	// ErrBrokenPath is returned when a node is not reachable from the root.
	ErrBrokenPath = errors.New("node is not reachable from the document root")
	// ErrMalformedContainer is returned when traversal meets a node that is
	// neither a known container nor a scalar.
	ErrMalformedContainer = errors.New("malformed json container")
)

// BrokenPath is rendered in place of a path for unreachable nodes.
const BrokenPath = "<broken_json_path>"

type selector struct {
	key     string
	index   int
	inArray bool
}

// String renders ".key" for identifier keys and "['key']" for any other
// key, so every path parses back with Locate.
func (s selector) String() string {
	if s.inArray {
		return "[" + strconv.Itoa(s.index) + "]"
	}
	if plainKey(s.key) {
		return "." + s.key
	}
	return "['" + quoteReplacer.Replace(s.key) + "']"
}

var quoteReplacer = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func plainKey(key string) bool {
	if key == "" {
		return false
	}
	for i, r := range key {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// Tree is a rooted document with a lazily reconstructed parent relation.
// Documents carry only parent->child edges; the parent of a node is found
// by a root-to-node search whose results are cached and shared with
// Traverse. Tree is not safe for concurrent use.
type Tree struct {
	Root *Node

	parents map[Handle]*Node
	log     *slog.Logger
}

// Option configures a Tree.
type Option func(*Tree)

// WithLogger sets the logger used for tree invariant violations.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tree) { t.log = l }
}

// New wraps root into a Tree.
func New(root *Node, opts ...Option) *Tree {
	t := &Tree{
		Root:    root,
		parents: make(map[Handle]*Node),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// cacheParent records child->parent. A second, different parent is a tree
// invariant violation: it is reported and the first parent is kept.
func (t *Tree) cacheParent(child, parent *Node) {
	if prev, ok := t.parents[child.handle]; ok {
		if prev != parent {
			t.log.Warn("container reachable through more than one parent",
				"handle", child.handle, "kept_parent", prev.handle, "ignored_parent", parent.handle)
		}
		return
	}
	t.parents[child.handle] = parent
}

// CachedParent returns the parent recorded for n without searching.
func (t *Tree) CachedParent(n *Node) (*Node, bool) {
	p, ok := t.parents[n.handle]
	return p, ok
}

// Parent returns the cached or discovered parent of n.
func (t *Tree) Parent(n *Node) (*Node, error) {
	chain, err := t.Ancestors(n)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, nil
	}
	return chain[len(chain)-1], nil
}

// Ancestors returns the chain from the root down to n's direct parent.
// The root itself has an empty chain.
func (t *Tree) Ancestors(n *Node) ([]*Node, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: nil node", ErrBrokenPath)
	}
	if n == t.Root {
		return nil, nil
	}
	if chain, ok := t.chainFromCache(n); ok {
		return chain, nil
	}
	if !t.discover(n) {
		return nil, fmt.Errorf("%w: handle %d", ErrBrokenPath, n.handle)
	}
	if chain, ok := t.chainFromCache(n); ok {
		return chain, nil
	}
	return nil, fmt.Errorf("%w: handle %d", ErrBrokenPath, n.handle)
}

// chainFromCache follows cached parent links up to the root.
func (t *Tree) chainFromCache(n *Node) ([]*Node, bool) {
	var chain []*Node
	cur := n
	// a chain longer than the cache means a cycle
	for steps := 0; steps <= len(t.parents); steps++ {
		parent, ok := t.parents[cur.handle]
		if !ok {
			return nil, false
		}
		chain = append(chain, parent)
		if parent == t.Root {
			for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
				chain[i], chain[j] = chain[j], chain[i]
			}
			return chain, true
		}
		cur = parent
	}
	return nil, false
}

// discover searches from the root for target, caching the parent of every
// container visited on the way.
func (t *Tree) discover(target *Node) bool {
	if !t.Root.IsContainer() {
		return false
	}
	stack := []*Node{t.Root}
	visited := roaring.New()
	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if item == nil || item.kind == Invalid || !visited.CheckedAdd(item.handle) {
			continue
		}
		found := false
		stack = t.pushChildren(stack, item, func(child *Node) {
			if child == target {
				found = true
			}
		})
		if found {
			return true
		}
	}
	return false
}

// pushChildren pushes the container children of item in reverse order, so
// that popping visits them left to right, and caches their parent.
func (t *Tree) pushChildren(stack []*Node, item *Node, seen func(*Node)) []*Node {
	var kids []*Node
	item.eachChild(func(_ selector, child *Node) {
		if child == nil || child.kind == Invalid {
			kids = append(kids, child)
			return
		}
		if child.IsContainer() {
			t.cacheParent(child, item)
			if seen != nil {
				seen(child)
			}
			kids = append(kids, child)
		}
	})
	for i := len(kids) - 1; i >= 0; i-- {
		stack = append(stack, kids[i])
	}
	return stack
}

// Traverse yields start (when it is an object) and every object nested
// under it, depth first in document order. Each call is an independent
// traversal. A malformed container yields ErrMalformedContainer and ends
// the sequence.
func (t *Tree) Traverse(start *Node) iter.Seq2[*Node, error] {
	return func(yield func(*Node, error) bool) {
		if start == nil || start.kind == Invalid {
			yield(nil, ErrMalformedContainer)
			return
		}
		if !start.IsContainer() {
			return
		}
		stack := []*Node{start}
		visited := roaring.New()
		for len(stack) > 0 {
			item := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if item == nil || item.kind == Invalid {
				yield(nil, ErrMalformedContainer)
				return
			}
			if !visited.CheckedAdd(item.handle) {
				continue
			}
			if item.IsObject() && !yield(item, nil) {
				return
			}
			stack = t.pushChildren(stack, item, nil)
		}
	}
}

// Objects collects Traverse(start) into a slice.
func (t *Tree) Objects(start *Node) ([]*Node, error) {
	var out []*Node
	for n, err := range t.Traverse(start) {
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// Path renders the location of n as ".key[index]..." relative to the root.
// Unreachable nodes render as BrokenPath.
func (t *Tree) Path(n *Node) string {
	chain, err := t.Ancestors(n)
	if err != nil {
		return BrokenPath
	}
	var b strings.Builder
	chain = append(chain, n)
	for i := 1; i < len(chain); i++ {
		sel, ok := selectorOf(chain[i-1], chain[i])
		if !ok {
			return BrokenPath
		}
		b.WriteString(sel.String())
	}
	return b.String()
}

// selectorOf finds the key or index under which parent holds child.
func selectorOf(parent, child *Node) (selector, bool) {
	var (
		out   selector
		found bool
	)
	parent.eachChild(func(sel selector, c *Node) {
		if !found && c == child {
			out, found = sel, true
		}
	})
	return out, found
}

// CollectUIDs returns the "uid" values of n, its nested objects and its
// object ancestors.
func (t *Tree) CollectUIDs(n *Node) (UIDSet, error) {
	uids := UIDSet{}
	for obj, err := range t.Traverse(n) {
		if err != nil {
			return nil, err
		}
		if uid, ok := obj.Str("uid"); ok {
			uids.Add(uid)
		}
	}
	chain, err := t.Ancestors(n)
	if err != nil {
		return nil, err
	}
	for _, parent := range chain {
		if uid, ok := parent.Str("uid"); ok {
			uids.Add(uid)
		}
	}
	return uids, nil
}

// Forget drops cached parent links of n and everything nested under it.
// Call it after detaching a subtree.
func (t *Tree) Forget(n *Node) {
	if n == nil {
		return
	}
	stack := []*Node{n}
	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		delete(t.parents, item.handle)
		item.eachChild(func(_ selector, child *Node) {
			if child.IsContainer() {
				stack = append(stack, child)
			}
		})
	}
}

// ResetParents drops the whole parent cache.
func (t *Tree) ResetParents() {
	clear(t.parents)
}

// CachedParents reports the size of the parent cache.
func (t *Tree) CachedParents() int {
	return len(t.parents)
}
