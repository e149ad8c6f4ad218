package shopfloor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	"github.com/viant/shopfloor"
	"github.com/viant/shopfloor/model"
	"github.com/viant/shopfloor/service/dao"
	"github.com/viant/shopfloor/service/ingest"
	"github.com/viant/shopfloor/service/journal"
)

func newRuntime(t *testing.T, URL string, options ...shopfloor.Option) *shopfloor.Runtime {
	t.Helper()
	cfg := shopfloor.DefaultConfig()
	cfg.Processor.WorkerCount = 1
	cfg.Processor.ReviewInterval = 0
	cfg.Engine.PassInterval = 0
	cfg.ReadModel.URL = URL
	options = append([]shopfloor.Option{shopfloor.WithConfig(cfg), shopfloor.WithLogger(logr.Discard())}, options...)
	srv, err := shopfloor.New(options...)
	require.NoError(t, err)
	return srv.Runtime()
}

func seed(t *testing.T, rt *shopfloor.Runtime) {
	t.Helper()
	ctx := context.Background()
	header := func(id string) ingest.Header { return ingest.Header{ID: id, Version: 1, Timestamp: time.Now()} }
	for id, level := range map[string]int{"O1": 5, "O2": 3} {
		status, err := rt.IngestOperator(ctx, &ingest.OperatorStatusRecord{Header: header(id),
			Operator: &model.Operator{ID: id, Skills: map[string]int{"weld": level}, Status: model.OperatorAvailable, Location: "A"}})
		require.NoError(t, err)
		require.Equal(t, ingest.StatusApplied, status)
	}
	for _, id := range []string{"M1", "M2"} {
		_, err := rt.IngestMachine(ctx, &ingest.MachineStatusRecord{Header: header(id),
			Machine: &model.Machine{ID: id, Capabilities: []string{"weld"}, Status: model.MachineIdle, Location: "A"}})
		require.NoError(t, err)
	}
	_, err := rt.IngestMaterial(ctx, &ingest.MaterialInventoryRecord{Header: header("S1"),
		Material: &model.Material{ID: "S1", QuantityAvailable: 100, ReorderPoint: 10, Location: "A"}})
	require.NoError(t, err)
	_, err = rt.IngestWorkOrder(ctx, &ingest.WorkOrderRecord{Header: header("W1"),
		WorkOrder: &model.WorkOrder{ID: "W1", Priority: 8, RequiredSkills: []string{"weld"}, RequiredCapability: "weld",
			RequiredMaterials: []model.MaterialRequirement{{MaterialID: "S1", Quantity: 10}}, EstimatedDuration: time.Hour, Location: "A"}})
	require.NoError(t, err)
}

func TestRuntime_Breakdown(t *testing.T) {
	ctx := context.Background()
	URL := "mem://localhost/shopfloor/runtime_breakdown.json"
	rt := newRuntime(t, URL)
	seed(t, rt)
	require.NoError(t, rt.Start(ctx))

	wo, err := rt.WorkOrder("W1")
	require.NoError(t, err)
	require.Equal(t, model.WorkOrderInProgress, wo.Status)
	assert.Equal(t, "O1", wo.OperatorID)
	assert.Equal(t, "M1", wo.MachineID)

	require.NoError(t, rt.Publish(ctx, &model.BreakdownEvent{MachineID: "M1", Timestamp: time.Now()}))
	assert.Eventually(t, func() bool {
		wo, err := rt.WorkOrder("W1")
		return err == nil && wo.Status == model.WorkOrderInProgress && wo.MachineID == "M2"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, rt.Notifications(model.NotificationResourceLost), 1)

	snapshot, err := rt.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snapshot.Summary.WorkOrders.ByStatus[string(model.WorkOrderInProgress)])
	require.Len(t, snapshot.Materials, 1)
	assert.Equal(t, float64(10), snapshot.Materials[0].QuantityReserved)

	require.NoError(t, rt.Shutdown(ctx))
	exists, err := afs.New().Exists(ctx, URL)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRuntime_Ingest_Idempotent(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, "")
	seed(t, rt)

	status, err := rt.IngestOperator(ctx, &ingest.OperatorStatusRecord{Header: ingest.Header{ID: "O2", Version: 1},
		Operator: &model.Operator{ID: "O2", Skills: map[string]int{"weld": 1}, Status: model.OperatorAvailable, Location: "A"}})
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusStale, status)

	entries, err := rt.Journal(ctx, dao.NewParameter(journal.FieldStatus, journal.StatusApplied))
	require.NoError(t, err)
	assert.Len(t, entries, 6)
	require.NoError(t, rt.Shutdown(ctx))
}

func TestRuntime_NotificationHandler(t *testing.T) {
	ctx := context.Background()
	var mux sync.Mutex
	var kinds []string
	handler := func(_ context.Context, notification *model.Notification) error {
		mux.Lock()
		defer mux.Unlock()
		kinds = append(kinds, notification.Kind)
		return nil
	}
	rt := newRuntime(t, "", shopfloor.WithNotificationHandler(handler))
	seed(t, rt)
	require.NoError(t, rt.Start(ctx))
	assert.Eventually(t, func() bool {
		mux.Lock()
		defer mux.Unlock()
		for _, kind := range kinds {
			if kind == model.NotificationAllocated {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, rt.Shutdown(ctx))
}

func TestRuntime_StartTwice(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, "")
	require.NoError(t, rt.Start(ctx))
	assert.Error(t, rt.Start(ctx))
	require.NoError(t, rt.Shutdown(ctx))
	require.NoError(t, rt.Shutdown(ctx))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := shopfloor.DefaultConfig()
	cfg.Processor.WorkerCount = 0
	_, err := shopfloor.New(shopfloor.WithConfig(cfg), shopfloor.WithLogger(logr.Discard()))
	assert.ErrorContains(t, err, "processor.workerCount")
}

func TestNew_SQLiteJournal(t *testing.T) {
	ctx := context.Background()
	cfg := shopfloor.DefaultConfig()
	cfg.Journal = shopfloor.JournalConfig{Driver: shopfloor.JournalSQLite, DSN: t.TempDir() + "/journal.db"}
	srv, err := shopfloor.New(shopfloor.WithConfig(cfg), shopfloor.WithLogger(logr.Discard()))
	require.NoError(t, err)
	rt := srv.Runtime()
	seed(t, rt)
	entries, err := rt.Journal(ctx, dao.NewParameter(journal.FieldSource, journal.SourceRecord))
	require.NoError(t, err)
	assert.Len(t, entries, 6)
	require.NoError(t, rt.Shutdown(ctx))
}
