package jsontree

import (
	"iter"
	"strconv"
	"sync/atomic"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Handle is a dense identifier for a node. It is the identity key used by
// the parent cache and by catalog bitmaps.
// Invariant: never reused within a process.
type Handle = uint32

var lastHandle atomic.Uint32

func nextHandle() Handle {
	return lastHandle.Add(1)
}

// Kind is the JSON type of a node. The zero value is Invalid so that a
// Node{} literal is recognised as a malformed container.
type Kind uint8

const (
	Invalid Kind = iota
	Null
	Bool
	Number
	String
	Object
	Array
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Object:
		return "object"
	case Array:
		return "array"
	default:
		return "invalid"
	}
}

// Node is a mutable document node. Identity is pointer identity: two
// value-equal subtrees at different positions are distinct nodes with
// distinct handles.
type Node struct {
	kind   Kind
	handle Handle
	fields *orderedmap.OrderedMap[string, *Node]
	items  []*Node
	// text holds the decoded string, the raw number literal or "true"/"false".
	text string
}

func newNode(kind Kind) *Node {
	return &Node{kind: kind, handle: nextHandle()}
}

// NewObject returns an empty object.
func NewObject() *Node {
	n := newNode(Object)
	n.fields = orderedmap.New[string, *Node]()
	return n
}

// NewArray returns an array holding items.
func NewArray(items ...*Node) *Node {
	n := newNode(Array)
	n.items = append(make([]*Node, 0, len(items)), items...)
	return n
}

func NewString(s string) *Node {
	n := newNode(String)
	n.text = s
	return n
}

// NewNumber wraps a raw JSON number literal; it is emitted verbatim.
func NewNumber(literal string) *Node {
	n := newNode(Number)
	n.text = literal
	return n
}

func NewInt(i int64) *Node {
	return NewNumber(strconv.FormatInt(i, 10))
}

func NewBool(b bool) *Node {
	n := newNode(Bool)
	n.text = strconv.FormatBool(b)
	return n
}

func NewNull() *Node {
	return newNode(Null)
}

func (n *Node) Kind() Kind     { return n.kind }
func (n *Node) Handle() Handle { return n.handle }

func (n *Node) IsObject() bool    { return n != nil && n.kind == Object }
func (n *Node) IsArray() bool     { return n != nil && n.kind == Array }
func (n *Node) IsContainer() bool { return n.IsObject() || n.IsArray() }
func (n *Node) IsNull() bool      { return n != nil && n.kind == Null }

// Text returns the scalar payload: the string value, the number literal, or
// "true"/"false". It is empty for containers and null.
func (n *Node) Text() string { return n.text }

// Len is the number of fields of an object or items of an array.
func (n *Node) Len() int {
	switch n.kind {
	case Object:
		return n.fields.Len()
	case Array:
		return len(n.items)
	}
	return 0
}

// Get returns the value of an object field.
func (n *Node) Get(key string) (*Node, bool) {
	if !n.IsObject() {
		return nil, false
	}
	return n.fields.Get(key)
}

func (n *Node) Has(key string) bool {
	_, ok := n.Get(key)
	return ok
}

// Str returns the value of a string field. ok is false when the field is
// absent or not a string.
func (n *Node) Str(key string) (string, bool) {
	v, ok := n.Get(key)
	if !ok || v.kind != String {
		return "", false
	}
	return v.text, true
}

// Set assigns a field. An existing key keeps its position, a new key is
// appended. It returns n for chaining.
func (n *Node) Set(key string, value *Node) *Node {
	if n.kind != Object {
		panic("jsontree: Set on " + n.kind.String())
	}
	n.fields.Set(key, value)
	return n
}

// SetString is shorthand for Set(key, NewString(value)).
func (n *Node) SetString(key, value string) *Node {
	return n.Set(key, NewString(value))
}

// Delete removes a field and returns the removed value.
func (n *Node) Delete(key string) (*Node, bool) {
	if !n.IsObject() {
		return nil, false
	}
	return n.fields.Delete(key)
}

// Keys returns the field names in document order.
func (n *Node) Keys() []string {
	if !n.IsObject() {
		return nil
	}
	keys := make([]string, 0, n.fields.Len())
	for p := n.fields.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	return keys
}

// Fields iterates object fields in document order.
func (n *Node) Fields() iter.Seq2[string, *Node] {
	return func(yield func(string, *Node) bool) {
		if !n.IsObject() {
			return
		}
		for p := n.fields.Oldest(); p != nil; p = p.Next() {
			if !yield(p.Key, p.Value) {
				return
			}
		}
	}
}

// Index returns the i-th array item.
func (n *Node) Index(i int) (*Node, bool) {
	if !n.IsArray() || i < 0 || i >= len(n.items) {
		return nil, false
	}
	return n.items[i], true
}

// Items returns a copy of the array items.
func (n *Node) Items() []*Node {
	if !n.IsArray() {
		return nil
	}
	return append([]*Node(nil), n.items...)
}

// Append adds items to the end of an array.
func (n *Node) Append(items ...*Node) {
	if n.kind != Array {
		panic("jsontree: Append on " + n.kind.String())
	}
	n.items = append(n.items, items...)
}

// RemoveAt deletes the i-th array item, shifting later items left.
func (n *Node) RemoveAt(i int) *Node {
	if n.kind != Array {
		panic("jsontree: RemoveAt on " + n.kind.String())
	}
	removed := n.items[i]
	copy(n.items[i:], n.items[i+1:])
	n.items[len(n.items)-1] = nil
	n.items = n.items[:len(n.items)-1]
	return removed
}

// ScalarKey is a comparable snapshot of a scalar value.
type ScalarKey struct {
	Kind Kind
	Text string
}

func StringKey(s string) ScalarKey { return ScalarKey{Kind: String, Text: s} }

var NullKey = ScalarKey{Kind: Null}

// ScalarKey reports the comparable value of a scalar node. ok is false for
// containers and malformed nodes.
func (n *Node) ScalarKey() (ScalarKey, bool) {
	switch n.kind {
	case Null, Bool, Number, String:
		return ScalarKey{Kind: n.kind, Text: n.text}, true
	}
	return ScalarKey{}, false
}

func (k ScalarKey) String() string {
	switch k.Kind {
	case Null:
		return "null"
	case String:
		return strconv.Quote(k.Text)
	}
	return k.Text
}

// Clone deep-copies the subtree rooted at n. Every copied node receives a
// fresh handle.
func (n *Node) Clone() *Node {
	switch n.kind {
	case Object:
		dst := NewObject()
		for p := n.fields.Oldest(); p != nil; p = p.Next() {
			dst.fields.Set(p.Key, p.Value.Clone())
		}
		return dst
	case Array:
		dst := NewArray()
		dst.items = make([]*Node, len(n.items))
		for i, item := range n.items {
			dst.items[i] = item.Clone()
		}
		return dst
	}
	dst := newNode(n.kind)
	dst.text = n.text
	return dst
}

// eachChild calls fn for every direct child of a container, in document
// order.
func (n *Node) eachChild(fn func(sel selector, child *Node)) {
	switch n.kind {
	case Object:
		for p := n.fields.Oldest(); p != nil; p = p.Next() {
			fn(selector{key: p.Key}, p.Value)
		}
	case Array:
		for i, item := range n.items {
			fn(selector{index: i, inArray: true}, item)
		}
	}
}
