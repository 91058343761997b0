// Package catalog is a secondary, multi-attribute equality index over a live
// collection of document objects.
//
// Items are keyed by node handle. For every configured attribute the catalog
// keeps a value -> bitmap-of-handles bucket, so a multi-attribute search is
// a bitmap intersection. The catalog snapshots attribute values when an item
// is indexed; callers re-index an item after changing its fields.
package catalog

import (
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring"
	"github.com/agentic-research/etfkit/internal/jsontree"
)

var (
	ErrNotFound         = errors.New("no items match")
	ErrAmbiguousMatch   = errors.New("multiple items match")
	ErrUnknownAttribute = errors.New("attribute is not indexed")
	ErrNoCriteria       = errors.New("search needs at least one criterion")
)

// Value is an indexable scalar value.
type Value = jsontree.ScalarKey

// String returns the Value of a JSON string.
func String(s string) Value { return jsontree.StringKey(s) }

// Null is the Value of a JSON null.
var Null = jsontree.NullKey

// Criteria maps attribute names to the value they must equal.
type Criteria map[string]Value

func (c Criteria) String() string {
	keys := slices.Sorted(maps.Keys(c))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + c[k].String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Catalog is not safe for concurrent use.
type Catalog struct {
	attrs   []string
	items   map[jsontree.Handle]*jsontree.Node
	values  map[jsontree.Handle]map[string]Value
	buckets map[string]map[Value]*roaring.Bitmap
}

// New creates a catalog indexing the given attribute names. Only these
// attributes are searchable.
func New(attrs ...string) *Catalog {
	c := &Catalog{
		attrs:   slices.Clone(attrs),
		items:   make(map[jsontree.Handle]*jsontree.Node),
		values:  make(map[jsontree.Handle]map[string]Value),
		buckets: make(map[string]map[Value]*roaring.Bitmap, len(attrs)),
	}
	for _, attr := range attrs {
		c.buckets[attr] = make(map[Value]*roaring.Bitmap)
	}
	return c
}

// Attributes returns the configured attribute names.
func (c *Catalog) Attributes() []string { return slices.Clone(c.attrs) }

// Len is the number of indexed items.
func (c *Catalog) Len() int { return len(c.items) }

// Contains reports whether item is indexed.
func (c *Catalog) Contains(item *jsontree.Node) bool {
	_, ok := c.items[item.Handle()]
	return ok
}

// Clear drops every entry.
func (c *Catalog) Clear() {
	clear(c.items)
	clear(c.values)
	for _, bucket := range c.buckets {
		clear(bucket)
	}
}

// Index registers item, replacing any earlier snapshot of it. Attributes
// absent from item are not indexed for it; container-valued attributes are
// skipped.
func (c *Catalog) Index(item *jsontree.Node) {
	h := item.Handle()
	if _, ok := c.items[h]; ok {
		c.Unindex(item)
	}
	c.items[h] = item
	snapshot := make(map[string]Value)
	for _, attr := range c.attrs {
		field, ok := item.Get(attr)
		if !ok {
			continue
		}
		value, ok := field.ScalarKey()
		if !ok {
			continue
		}
		bm, ok := c.buckets[attr][value]
		if !ok {
			bm = roaring.New()
			c.buckets[attr][value] = bm
		}
		bm.Add(h)
		snapshot[attr] = value
	}
	c.values[h] = snapshot
}

// IndexAll indexes every object of seq, stopping at the first error.
func (c *Catalog) IndexAll(seq iter.Seq2[*jsontree.Node, error]) error {
	for item, err := range seq {
		if err != nil {
			return err
		}
		c.Index(item)
	}
	return nil
}

// Unindex removes item using its stored snapshot. Unknown items are ignored.
func (c *Catalog) Unindex(item *jsontree.Node) {
	h := item.Handle()
	if _, ok := c.items[h]; !ok {
		return
	}
	for attr, value := range c.values[h] {
		bm := c.buckets[attr][value]
		if bm == nil {
			continue
		}
		bm.Remove(h)
		if bm.IsEmpty() {
			delete(c.buckets[attr], value)
		}
	}
	delete(c.values, h)
	delete(c.items, h)
}

// Search returns the items matching all criteria, in indexing order.
func (c *Catalog) Search(criteria Criteria) ([]*jsontree.Node, error) {
	if len(criteria) == 0 {
		return nil, ErrNoCriteria
	}
	bitmaps := make([]*roaring.Bitmap, 0, len(criteria))
	empty := false
	for attr, value := range criteria {
		bucket, ok := c.buckets[attr]
		if !ok {
			return nil, fmt.Errorf("%w: %q (indexed: %s)", ErrUnknownAttribute, attr, strings.Join(c.attrs, ", "))
		}
		bm, ok := bucket[value]
		if !ok {
			// keep checking the remaining attribute names
			empty = true
			continue
		}
		bitmaps = append(bitmaps, bm)
	}
	if empty {
		return nil, nil
	}
	// smallest first keeps the intersection cheap
	sort.Slice(bitmaps, func(i, j int) bool {
		return bitmaps[i].GetCardinality() < bitmaps[j].GetCardinality()
	})
	result := bitmaps[0]
	if len(bitmaps) > 1 {
		result = roaring.FastAnd(bitmaps...)
	}
	items := make([]*jsontree.Node, 0, result.GetCardinality())
	it := result.Iterator()
	for it.HasNext() {
		items = append(items, c.items[it.Next()])
	}
	return items, nil
}

// First returns one matching item or ErrNotFound.
func (c *Catalog) First(criteria Criteria) (*jsontree.Node, error) {
	items, err := c.Search(criteria)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w criteria %s", ErrNotFound, criteria)
	}
	return items[0], nil
}

// One returns the single matching item. Zero matches is ErrNotFound, more
// than one is ErrAmbiguousMatch.
func (c *Catalog) One(criteria Criteria) (*jsontree.Node, error) {
	items, err := c.Search(criteria)
	if err != nil {
		return nil, err
	}
	switch len(items) {
	case 0:
		return nil, fmt.Errorf("%w criteria %s", ErrNotFound, criteria)
	case 1:
		return items[0], nil
	}
	return nil, fmt.Errorf("%w criteria %s: %d items", ErrAmbiguousMatch, criteria, len(items))
}

// Buckets reports the number of distinct values indexed for attr.
func (c *Catalog) Buckets(attr string) (int, error) {
	bucket, ok := c.buckets[attr]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownAttribute, attr)
	}
	return len(bucket), nil
}
