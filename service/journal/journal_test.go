package journal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/shopfloor/service/dao"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	j := NewMemory()
	at := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	for _, entry := range []*Entry{
		{Source: SourceRecord, Kind: "operator", EntityID: "O1", Version: 1, Status: StatusApplied, At: at},
		{Source: SourceRecord, Kind: "operator", EntityID: "O1", Version: 2, Status: StatusRejected, Detail: "integrity", At: at},
		{Source: SourceEvent, Kind: "breakdown", EntityID: "M1", Status: StatusApplied, At: at},
	} {
		require.NoError(t, j.Append(ctx, entry))
		assert.NotEmpty(t, entry.ID)
	}
	assert.ErrorIs(t, j.Append(ctx, nil), dao.ErrNilEntity)

	all, err := j.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{all[0].Seq, all[1].Seq, all[2].Seq})

	rejected, err := j.List(ctx, dao.NewParameter(FieldStatus, StatusRejected))
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, int64(2), rejected[0].Version)

	o1, err := j.List(ctx, dao.NewParameter(FieldEntityID, "O1"), dao.NewParameter(FieldSource, SourceRecord))
	require.NoError(t, err)
	assert.Len(t, o1, 2)
	require.NoError(t, j.Close())
}
