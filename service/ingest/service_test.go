package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/shopfloor/internal/clock"
	"github.com/viant/shopfloor/model"
	"github.com/viant/shopfloor/service/allocator"
	"github.com/viant/shopfloor/service/dao"
	"github.com/viant/shopfloor/service/journal"
	"github.com/viant/shopfloor/service/notifier"
	"github.com/viant/shopfloor/service/registry"
)

var epoch = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

type recorder struct {
	mux    sync.Mutex
	events []*model.Event
}

func (r *recorder) Publish(_ context.Context, event *model.Event) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) payloads() []model.Payload {
	r.mux.Lock()
	defer r.mux.Unlock()
	var ret []model.Payload
	for _, event := range r.events {
		ret = append(ret, event.Payload)
	}
	return ret
}

type fixture struct {
	registry  *registry.Registry
	publisher *recorder
	journal   *journal.Memory
	notifier  *notifier.Service
	service   *Service
}

func newFixture() *fixture {
	manual := clock.NewManual(epoch)
	ret := &fixture{
		registry:  registry.New(registry.WithClock(manual.Func())),
		publisher: &recorder{},
		journal:   journal.NewMemory(),
		notifier:  notifier.New(notifier.WithClock(manual.Func())),
	}
	ret.service = New(ret.registry, ret.publisher, WithJournal(ret.journal), WithNotifier(ret.notifier), WithClock(manual.Func()))
	return ret
}

// running seeds O1, M1 and S1 and allocates W1 to them
func (f *fixture) running(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := f.registry.PutOperator(ctx, &model.Operator{ID: "O1", Skills: map[string]int{"weld": 3}, Status: model.OperatorAvailable, Location: "A"})
	require.NoError(t, err)
	_, err = f.registry.PutMachine(ctx, &model.Machine{ID: "M1", Capabilities: []string{"weld"}, Status: model.MachineIdle, Location: "A"})
	require.NoError(t, err)
	_, err = f.registry.PutMaterial(ctx, &model.Material{ID: "S1", QuantityAvailable: 100, Location: "A"})
	require.NoError(t, err)
	_, err = f.registry.PutWorkOrder(ctx, &model.WorkOrder{ID: "W1", Priority: 5, RequiredSkills: []string{"weld"}, RequiredCapability: "weld",
		RequiredMaterials: []model.MaterialRequirement{{MaterialID: "S1", Quantity: 30}}, EstimatedDuration: time.Hour, Location: "A"})
	require.NoError(t, err)
	alloc, err := allocator.New(allocator.WithRegistry(f.registry))
	require.NoError(t, err)
	_, err = alloc.Pass(ctx)
	require.NoError(t, err)
	wo, err := f.registry.WorkOrder("W1")
	require.NoError(t, err)
	require.Equal(t, model.WorkOrderInProgress, wo.Status)
}

func TestService_Operator_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	record := func(version int64, cost float64) *OperatorStatusRecord {
		return &OperatorStatusRecord{
			Header:   Header{ID: "O1", Version: version, Timestamp: epoch},
			Operator: &model.Operator{ID: "O1", Skills: map[string]int{"weld": 3}, Status: model.OperatorAvailable, HourlyCost: cost},
		}
	}

	status, err := f.service.Operator(ctx, record(2, 40))
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, status)

	for _, version := range []int64{2, 1} {
		status, err = f.service.Operator(ctx, record(version, 99))
		require.NoError(t, err)
		assert.Equal(t, StatusStale, status)
	}
	op, err := f.registry.Operator("O1")
	require.NoError(t, err)
	assert.Equal(t, 40.0, op.HourlyCost)

	payloads := f.publisher.payloads()
	require.Len(t, payloads, 1)
	assert.Equal(t, &model.RecordAppliedEvent{EntityKind: string(registry.KindOperator), EntityID: "O1"}, payloads[0])

	status, err = f.service.Operator(ctx, record(3, 45))
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, status)
	entries, err := f.journal.List(ctx, dao.NewParameter(journal.FieldStatus, journal.StatusApplied))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestService_WorkOrder_Rejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	_, err := f.service.WorkOrder(ctx, &WorkOrderRecord{
		Header:    Header{ID: "W1", Version: 1},
		WorkOrder: &model.WorkOrder{ID: "W1", Priority: 11},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, dao.ErrIntegrity))

	_, err = f.registry.WorkOrder("W1")
	assert.True(t, errors.Is(err, dao.ErrNotFound))
	assert.Empty(t, f.publisher.payloads())
	entries, err := f.journal.List(ctx, dao.NewParameter(journal.FieldStatus, journal.StatusRejected))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "W1", entries[0].EntityID)
	assert.EqualValues(t, 1, entries[0].Version)
	assert.Len(t, f.notifier.Recent(model.NotificationRejected), 1)

	// a rejected version does not count as applied
	status, err := f.service.WorkOrder(ctx, &WorkOrderRecord{
		Header:    Header{ID: "W1", Version: 1},
		WorkOrder: &model.WorkOrder{ID: "W1", Priority: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, status)
}

func TestService_MismatchedID(t *testing.T) {
	f := newFixture()
	_, err := f.service.Machine(context.Background(), &MachineStatusRecord{
		Header:  Header{ID: "M2", Version: 1},
		Machine: &model.Machine{ID: "M1", Status: model.MachineIdle},
	})
	assert.True(t, errors.Is(err, dao.ErrInvalidID))
	_, err = f.service.Material(context.Background(), nil)
	assert.True(t, errors.Is(err, dao.ErrNilEntity))
}

func TestService_Routed(t *testing.T) {
	delivery := epoch.Add(24 * time.Hour)
	testCases := []struct {
		name    string
		ingest  func(ctx context.Context, s *Service) (Status, error)
		expect  model.Payload
		inspect func(t *testing.T, reg *registry.Registry)
	}{
		{
			name: "assigned operator on break",
			ingest: func(ctx context.Context, s *Service) (Status, error) {
				return s.Operator(ctx, &OperatorStatusRecord{Header: Header{ID: "O1", Version: 1, Timestamp: epoch},
					Operator: &model.Operator{ID: "O1", Skills: map[string]int{"weld": 3}, Status: model.OperatorBreak, Location: "A", HourlyCost: 30}})
			},
			expect: &model.AvailabilityEvent{OperatorID: "O1", NewStatus: model.OperatorBreak, Timestamp: epoch},
			inspect: func(t *testing.T, reg *registry.Registry) {
				op, err := reg.Operator("O1")
				require.NoError(t, err)
				assert.Equal(t, model.OperatorAssigned, op.Status)
				assert.Equal(t, 30.0, op.HourlyCost)
			},
		},
		{
			name: "running machine breaks down",
			ingest: func(ctx context.Context, s *Service) (Status, error) {
				return s.Machine(ctx, &MachineStatusRecord{Header: Header{ID: "M1", Version: 1, Timestamp: epoch},
					Machine: &model.Machine{ID: "M1", Capabilities: []string{"weld"}, Status: model.MachineBreakdown, Location: "A"}})
			},
			expect: &model.BreakdownEvent{MachineID: "M1", Timestamp: epoch},
			inspect: func(t *testing.T, reg *registry.Registry) {
				m, err := reg.Machine("M1")
				require.NoError(t, err)
				assert.Equal(t, model.MachineRunning, m.Status)
			},
		},
		{
			name: "stock below reservation",
			ingest: func(ctx context.Context, s *Service) (Status, error) {
				return s.Material(ctx, &MaterialInventoryRecord{Header: Header{ID: "S1", Version: 1},
					Material: &model.Material{ID: "S1", QuantityAvailable: 10, ExpectedDelivery: &delivery, Location: "A"}})
			},
			expect: &model.MaterialShortageEvent{MaterialID: "S1", NewAvailableQty: 10, ExpectedDelivery: &delivery},
			inspect: func(t *testing.T, reg *registry.Registry) {
				m, err := reg.Material("S1")
				require.NoError(t, err)
				assert.Equal(t, 100.0, m.QuantityAvailable)
				assert.Equal(t, 30.0, m.QuantityReserved)
			},
		},
		{
			name: "priority change",
			ingest: func(ctx context.Context, s *Service) (Status, error) {
				return s.WorkOrder(ctx, &WorkOrderRecord{Header: Header{ID: "W1", Version: 1},
					WorkOrder: &model.WorkOrder{ID: "W1", Priority: 9, RequiredSkills: []string{"weld"}, RequiredCapability: "weld",
						RequiredMaterials: []model.MaterialRequirement{{MaterialID: "S1", Quantity: 30}}, EstimatedDuration: time.Hour, Location: "A"}})
			},
			expect: &model.PriorityChangeEvent{WorkOrderID: "W1", NewPriority: 9},
			inspect: func(t *testing.T, reg *registry.Registry) {
				wo, err := reg.WorkOrder("W1")
				require.NoError(t, err)
				assert.Equal(t, 5, wo.Priority)
			},
		},
		{
			name: "completion",
			ingest: func(ctx context.Context, s *Service) (Status, error) {
				return s.WorkOrder(ctx, &WorkOrderRecord{Header: Header{ID: "W1", Version: 1, Timestamp: epoch},
					WorkOrder: &model.WorkOrder{ID: "W1", Priority: 5, RequiredSkills: []string{"weld"}, RequiredCapability: "weld", Status: model.WorkOrderCompleted,
						RequiredMaterials: []model.MaterialRequirement{{MaterialID: "S1", Quantity: 30}}, EstimatedDuration: time.Hour, Location: "A"}})
			},
			expect: &model.CompletionEvent{WorkOrderID: "W1", Timestamp: epoch},
			inspect: func(t *testing.T, reg *registry.Registry) {
				wo, err := reg.WorkOrder("W1")
				require.NoError(t, err)
				assert.Equal(t, model.WorkOrderInProgress, wo.Status)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.running(t)
			status, err := tc.ingest(context.Background(), f.service)
			require.NoError(t, err)
			assert.Equal(t, StatusRouted, status)
			assert.Equal(t, []model.Payload{tc.expect}, f.publisher.payloads())
			tc.inspect(t, f.registry)
		})
	}
}

func TestService_Operator_AssignedAvailable(t *testing.T) {
	f := newFixture()
	f.running(t)
	_, err := f.service.Operator(context.Background(), &OperatorStatusRecord{Header: Header{ID: "O1", Version: 1},
		Operator: &model.Operator{ID: "O1", Skills: map[string]int{"weld": 3}, Status: model.OperatorAvailable, Location: "A"}})
	assert.True(t, errors.Is(err, dao.ErrIntegrity))
	assert.Empty(t, f.publisher.payloads())
}
