package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/shopfloor/service/dao"
	"github.com/viant/shopfloor/service/journal"
)

func TestJournal(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	at := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	require.NoError(t, j.Append(ctx, &journal.Entry{Source: journal.SourceRecord, Kind: "machine", EntityID: "M1", Version: 3, Status: journal.StatusApplied, At: at}))
	require.NoError(t, j.Append(ctx, &journal.Entry{Source: journal.SourceEvent, Kind: "breakdown", EntityID: "M1", Status: journal.StatusFailed, Detail: "boom", At: at.Add(time.Second)}))
	require.NoError(t, j.Append(ctx, &journal.Entry{Source: journal.SourceEvent, Kind: "availability", EntityID: "O1", Status: journal.StatusApplied, At: at.Add(2 * time.Second)}))

	all, err := j.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "machine", all[0].Kind)
	assert.Equal(t, int64(3), all[0].Version)
	assert.Equal(t, at, all[0].At)

	m1Events, err := j.List(ctx, dao.NewParameter(journal.FieldEntityID, "M1"), dao.NewParameter(journal.FieldSource, journal.SourceEvent))
	require.NoError(t, err)
	require.Len(t, m1Events, 1)
	assert.Equal(t, "boom", m1Events[0].Detail)

	either, err := j.List(ctx, dao.NewParameter(journal.FieldEntityID, "M1", "O1"))
	require.NoError(t, err)
	assert.Len(t, either, 3)
	require.NoError(t, j.Close())

	// reopening keeps entries and does not re-run migrations
	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()
	all, err = j.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
