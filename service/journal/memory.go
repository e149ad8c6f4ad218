package journal

import (
	"context"
	"sync/atomic"

	"github.com/viant/shopfloor/internal/idgen"
	"github.com/viant/shopfloor/service/dao"
	"github.com/viant/shopfloor/service/dao/criteria"
	"github.com/viant/shopfloor/service/dao/store"
)

// Memory is an in-memory Journal
type Memory struct {
	seq     atomic.Int64
	entries *store.MemoryStore[int64, Entry]
}

// NewMemory creates an empty in-memory journal
func NewMemory() *Memory {
	return &Memory{
		entries: store.NewMemoryStore[int64, Entry](
			func(e *Entry) int64 { return e.Seq },
			store.WithFields[int64, Entry](Fields),
			store.WithOrder[int64, Entry](func(a, b *Entry) bool { return a.Seq < b.Seq }),
		),
	}
}

// Fields exposes entry attributes to list parameters
func Fields(e *Entry) criteria.Fields {
	return func(name string) (string, bool) {
		switch name {
		case FieldSource:
			return e.Source, true
		case FieldKind:
			return e.Kind, true
		case FieldEntityID:
			return e.EntityID, true
		case FieldStatus:
			return e.Status, true
		}
		return "", false
	}
}

func (m *Memory) Append(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return dao.ErrNilEntity
	}
	if entry.ID == "" {
		entry.ID = idgen.New()
	}
	entry.Seq = m.seq.Add(1)
	return m.entries.Save(ctx, entry)
}

func (m *Memory) List(ctx context.Context, parameters ...*dao.Parameter) ([]*Entry, error) {
	return m.entries.List(ctx, parameters...)
}

func (m *Memory) Close() error { return nil }
