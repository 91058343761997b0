package etf

import (
	"fmt"

	"github.com/agentic-research/etfkit/internal/jsontree"
	"github.com/dustin/go-humanize"
)

// Stat describes the subtree found at one configured stat point.
type Stat struct {
	Label string
	Path  string
	// Found is false when the path does not exist in the document.
	Found bool
	// Flat is the length of an array, zero for objects.
	Flat int
	// Nested counts the objects at and below the path.
	Nested int
	// Size is the shallow payload of those objects: key and scalar bytes.
	Size uint64
}

// HumanSize formats Size with binary units.
func (s Stat) HumanSize() string {
	return humanize.IBytes(s.Size)
}

// CountStatistics measures every configured stat point.
func (c *CountryData) CountStatistics() ([]Stat, error) {
	stats := make([]Stat, 0, len(c.cfg.StatPoints))
	for _, point := range c.cfg.StatPoints {
		st := Stat{Label: point.Label, Path: point.Path}
		item, ok := c.Locate(point.Path)
		if ok {
			st.Found = true
			if item.IsArray() {
				st.Flat = item.Len()
			}
			for obj, err := range c.Traverse(item) {
				if err != nil {
					return nil, fmt.Errorf("statistics for %s: %w", point.Path, err)
				}
				st.Nested++
				st.Size += shallowSize(obj)
			}
		}
		stats = append(stats, st)
	}
	return stats, nil
}

func shallowSize(obj *jsontree.Node) uint64 {
	var size uint64
	for key, value := range obj.Fields() {
		size += uint64(len(key))
		if !value.IsContainer() {
			size += uint64(len(value.Text()))
		}
	}
	return size
}
