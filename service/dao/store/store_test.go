package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/shopfloor/model"
	"github.com/viant/shopfloor/service/dao"
	"github.com/viant/shopfloor/service/dao/criteria"
)

func TestTable(t *testing.T) {
	table := NewTable[model.Operator]()
	table.Put(&model.Operator{ID: "O2", Skills: map[string]int{"weld": 3}}, 1)
	table.Put(&model.Operator{ID: "O1"}, 2)

	assert.Equal(t, []string{"O1", "O2"}, table.IDs())
	assert.Equal(t, int64(2), table.Revision("O1"))
	assert.Equal(t, int64(-1), table.Revision("O9"))

	op, ok := table.Get("O2")
	require.True(t, ok)
	op.Skills["weld"] = 5
	stored, _ := table.Get("O2")
	assert.Equal(t, 3, stored.Skills["weld"], "Get returns a private copy")

	var visited []string
	table.Each(func(item *model.Operator) bool {
		visited = append(visited, item.ID)
		return true
	})
	assert.Equal(t, []string{"O1", "O2"}, visited)
	assert.Len(t, table.CloneAll(), 2)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	decisions := NewMemoryStore[string, model.Decision](
		func(d *model.Decision) string { return d.WorkOrderID },
		WithFields[string, model.Decision](func(d *model.Decision) criteria.Fields {
			return func(name string) (string, bool) {
				if name == "Kind" {
					return string(d.Kind), true
				}
				return "", false
			}
		}),
		WithOrder[string, model.Decision](func(a, b *model.Decision) bool { return a.WorkOrderID < b.WorkOrderID }),
	)

	require.NoError(t, decisions.Save(ctx, &model.Decision{WorkOrderID: "W2", Kind: model.DecisionBlocked}))
	require.NoError(t, decisions.Save(ctx, &model.Decision{WorkOrderID: "W1", Kind: model.DecisionAllocated}))
	require.NoError(t, decisions.Save(ctx, &model.Decision{WorkOrderID: "W3", Kind: model.DecisionAllocated}))

	loaded, err := decisions.Load(ctx, "W2")
	require.NoError(t, err)
	assert.Equal(t, model.DecisionBlocked, loaded.Kind)

	all, err := decisions.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "W1", all[0].WorkOrderID)

	allocated, err := decisions.List(ctx, dao.NewParameter("Kind", string(model.DecisionAllocated)))
	require.NoError(t, err)
	assert.Len(t, allocated, 2)

	require.NoError(t, decisions.Delete(ctx, "W2"))
	_, err = decisions.Load(ctx, "W2")
	assert.True(t, errors.Is(err, dao.ErrNotFound))
	assert.True(t, errors.Is(decisions.Save(ctx, nil), dao.ErrNilEntity))
}
