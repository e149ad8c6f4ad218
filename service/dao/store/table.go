package store

import (
	"sort"
)

// Entity is implemented by pointer types stored in a Table
type Entity[T any] interface {
	*T
	EntityID() string
	EntityRevision() int64
	SetRevision(revision int64)
	Clone() *T
}

// Table is an arena of versioned entities keyed by id. It is not
// synchronized; the owner guards it.
type Table[T any, P Entity[T]] struct {
	items map[string]P
}

// NewTable creates an empty table
func NewTable[T any, P Entity[T]]() *Table[T, P] {
	return &Table[T, P]{items: make(map[string]P)}
}

// Get returns a private copy of the entity
func (t *Table[T, P]) Get(id string) (P, bool) {
	item, ok := t.items[id]
	if !ok {
		return nil, false
	}
	return P(item.Clone()), true
}

// Revision returns the stored revision, or -1 when missing
func (t *Table[T, P]) Revision(id string) int64 {
	if item, ok := t.items[id]; ok {
		return item.EntityRevision()
	}
	return -1
}

// Put stores item with the supplied revision
func (t *Table[T, P]) Put(item P, revision int64) {
	item.SetRevision(revision)
	t.items[item.EntityID()] = item
}

// Len returns number of entities
func (t *Table[T, P]) Len() int { return len(t.items) }

// IDs returns sorted entity ids
func (t *Table[T, P]) IDs() []string {
	ret := make([]string, 0, len(t.items))
	for id := range t.items {
		ret = append(ret, id)
	}
	sort.Strings(ret)
	return ret
}

// Each visits stored entities in id order until fn returns false. Visited
// values must not be modified.
func (t *Table[T, P]) Each(fn func(item P) bool) {
	for _, id := range t.IDs() {
		if !fn(t.items[id]) {
			return
		}
	}
}

// CloneAll returns a deep copy of the table content
func (t *Table[T, P]) CloneAll() map[string]P {
	ret := make(map[string]P, len(t.items))
	for id, item := range t.items {
		ret[id] = P(item.Clone())
	}
	return ret
}
