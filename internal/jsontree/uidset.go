package jsontree

import (
	"maps"
	"slices"
)

// UIDSet is a set of "uid" values.
type UIDSet map[string]struct{}

func NewUIDSet(uids ...string) UIDSet {
	s := make(UIDSet, len(uids))
	for _, uid := range uids {
		s.Add(uid)
	}
	return s
}

func (s UIDSet) Add(uid string) { s[uid] = struct{}{} }

func (s UIDSet) Has(uid string) bool {
	_, ok := s[uid]
	return ok
}

// Merge adds every uid of other and reports how many were new.
func (s UIDSet) Merge(other UIDSet) int {
	added := 0
	for uid := range other {
		if !s.Has(uid) {
			s.Add(uid)
			added++
		}
	}
	return added
}

// Sorted returns the members in lexical order.
func (s UIDSet) Sorted() []string {
	return slices.Sorted(maps.Keys(s))
}

// HasField reports whether obj has a string field key whose value is in s.
func (s UIDSet) HasField(obj *Node, key string) bool {
	v, ok := obj.Str(key)
	return ok && s.Has(v)
}
