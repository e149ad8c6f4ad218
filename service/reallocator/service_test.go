package reallocator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/shopfloor/internal/clock"
	"github.com/viant/shopfloor/model"
	"github.com/viant/shopfloor/policy"
	"github.com/viant/shopfloor/progress"
	"github.com/viant/shopfloor/service/allocator"
	"github.com/viant/shopfloor/service/notifier"
	"github.com/viant/shopfloor/service/registry"
	"github.com/viant/shopfloor/service/scorer"
)

var epoch = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

type fixture struct {
	clock     *clock.Manual
	registry  *registry.Registry
	notifier  *notifier.Service
	progress  *progress.Progress
	allocator *allocator.Service
	service   *Service
}

func newFixture(t *testing.T, weights scorer.Weights) *fixture {
	t.Helper()
	manual := clock.NewManual(epoch)
	ret := &fixture{
		clock:    manual,
		registry: registry.New(registry.WithClock(manual.Func())),
		notifier: notifier.New(notifier.WithClock(manual.Func())),
		progress: progress.New(epoch),
	}
	var err error
	ret.allocator, err = allocator.New(allocator.WithRegistry(ret.registry), allocator.WithNotifier(ret.notifier),
		allocator.WithProgress(ret.progress), allocator.WithScorer(scorer.New(scorer.WithWeights(weights))))
	require.NoError(t, err)
	ret.service = New(ret.registry, ret.allocator, WithNotifier(ret.notifier), WithProgress(ret.progress))
	return ret
}

func (f *fixture) operator(t *testing.T, id string, level int, cost float64) {
	t.Helper()
	_, err := f.registry.PutOperator(context.Background(), &model.Operator{ID: id, Skills: map[string]int{"weld": level},
		Status: model.OperatorAvailable, HourlyCost: cost, Location: "A"})
	require.NoError(t, err)
}

func (f *fixture) machine(t *testing.T, id string, cycle time.Duration) {
	t.Helper()
	_, err := f.registry.PutMachine(context.Background(), &model.Machine{ID: id, Capabilities: []string{"weld"},
		Status: model.MachineIdle, CycleTime: cycle, Location: "A"})
	require.NoError(t, err)
}

func (f *fixture) workOrder(t *testing.T, id string, duration time.Duration) {
	t.Helper()
	_, err := f.registry.PutWorkOrder(context.Background(), &model.WorkOrder{ID: id, Priority: 5, RequiredSkills: []string{"weld"},
		RequiredCapability: "weld", EstimatedDuration: duration, Location: "A"})
	require.NoError(t, err)
}

func (f *fixture) get(t *testing.T, id string) *model.WorkOrder {
	t.Helper()
	wo, err := f.registry.WorkOrder(id)
	require.NoError(t, err)
	return wo
}

func TestService_Handle_StabilityBuffer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scorer.Weights{Cost: 1})
	f.operator(t, "O1", 3, 50)
	f.machine(t, "M1", 0)
	f.workOrder(t, "W1", 10*time.Hour)

	outcome, err := f.allocator.Allocate(ctx, "W1", nil, true)
	require.NoError(t, err)
	require.Equal(t, model.DecisionReallocated, outcome.Kind)
	require.Equal(t, epoch, *f.get(t, "W1").LastReallocatedAt)

	f.clock.Set(epoch.Add(5 * time.Minute))
	f.operator(t, "O2", 3, 46)

	// 10:10, 8% better and within the cooldown
	f.clock.Set(epoch.Add(10 * time.Minute))
	result, err := f.service.Handle(ctx, Trigger{WorkOrderID: "W1", Cause: CauseIdleResource, Resource: "O2"})
	require.NoError(t, err)
	assert.Equal(t, StatusSuppressed, result.Status)
	assert.Equal(t, GuardCooldown, result.Guard)
	assert.InDelta(t, 0.5, result.Current, 1e-9)
	assert.InDelta(t, 0.08, result.Improvement, 1e-9)
	assert.Equal(t, "O1", f.get(t, "W1").OperatorID)

	// 10:16, still only 8% better
	f.clock.Set(epoch.Add(16 * time.Minute))
	result, err = f.service.Handle(ctx, Trigger{WorkOrderID: "W1", Cause: CauseIdleResource, Resource: "O2"})
	require.NoError(t, err)
	assert.Equal(t, StatusSuppressed, result.Status)
	assert.Equal(t, GuardImprovement, result.Guard)

	// 10:16, 12% better
	f.operator(t, "O2", 3, 44)
	result, err = f.service.Handle(ctx, Trigger{WorkOrderID: "W1", Cause: CauseIdleResource, Resource: "O2"})
	require.NoError(t, err)
	assert.Equal(t, StatusReallocated, result.Status)
	assert.InDelta(t, 0.12, result.Improvement, 1e-9)
	wo := f.get(t, "W1")
	assert.Equal(t, "O2", wo.OperatorID)
	assert.Equal(t, epoch.Add(16*time.Minute), *wo.LastReallocatedAt)
	assert.Equal(t, epoch, *wo.StartedAt)
	o1, err := f.registry.Operator("O1")
	require.NoError(t, err)
	assert.Equal(t, model.OperatorAvailable, o1.Status)

	assert.Equal(t, 2, f.progress.Snapshot().Suppressed)
	assert.Len(t, f.notifier.Recent(model.NotificationSuppressed), 2)
	decision, err := f.registry.LastDecision(ctx, "W1")
	require.NoError(t, err)
	assert.Equal(t, model.DecisionReallocated, decision.Kind)
	assert.Equal(t, PhaseStable, f.service.Phase("W1"))
}

func TestService_Handle_ResourceLost(t *testing.T) {
	var testCases = []struct {
		description string
		own         bool
		spare       bool
		status      Status
		guard       Guard
		reason      model.Reason
	}{
		{description: "own loss bypasses every guard", own: true, spare: true, status: StatusReallocated},
		{description: "unrelated loss respects the cooldown", own: false, spare: true, status: StatusSuppressed, guard: GuardCooldown},
		{description: "no alternative blocks", own: true, spare: false, status: StatusBlocked, reason: model.ReasonNoMachine},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, scorer.DefaultWeights())
			f.operator(t, "O1", 4, 0)
			f.machine(t, "M1", 10*time.Minute)
			f.workOrder(t, "W1", 20*time.Minute)
			_, err := f.allocator.Allocate(ctx, "W1", nil, true)
			require.NoError(t, err)
			if testCase.spare {
				f.machine(t, "M2", 10*time.Minute)
			}

			// 12 minutes in: past half way and inside the cooldown
			f.clock.Set(epoch.Add(12 * time.Minute))
			released, err := f.registry.DetachMachine(ctx, "M1", model.MachineBreakdown, nil)
			require.NoError(t, err)
			require.NotNil(t, released.WorkOrder)
			assert.Equal(t, model.ReasonResourceLost, released.WorkOrder.BlockReason)

			result, err := f.service.Handle(ctx, Trigger{WorkOrderID: "W1", Cause: CauseResourceLost, Resource: "M1", Own: testCase.own})
			require.NoError(t, err)
			assert.Equal(t, testCase.status, result.Status)
			assert.Equal(t, testCase.guard, result.Guard)

			wo := f.get(t, "W1")
			switch testCase.status {
			case StatusReallocated:
				assert.Equal(t, model.WorkOrderInProgress, wo.Status)
				assert.Equal(t, "M2", wo.MachineID)
				assert.Equal(t, "O1", wo.OperatorID)
				assert.Equal(t, epoch, *wo.StartedAt)
			case StatusBlocked:
				assert.Equal(t, model.WorkOrderBlocked, wo.Status)
				assert.Equal(t, testCase.reason, wo.BlockReason)
				o1, err := f.registry.Operator("O1")
				require.NoError(t, err)
				assert.Equal(t, model.OperatorAvailable, o1.Status)
			default:
				assert.Equal(t, model.WorkOrderBlocked, wo.Status)
				assert.Equal(t, model.ReasonResourceLost, wo.BlockReason)
			}
		})
	}
}

func TestService_Handle_UnchangedAssignment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scorer.DefaultWeights())
	f.operator(t, "O1", 4, 0)
	f.machine(t, "M1", 10*time.Minute)
	f.workOrder(t, "W1", time.Hour)
	_, err := f.allocator.Allocate(ctx, "W1", nil, false)
	require.NoError(t, err)
	require.Nil(t, f.get(t, "W1").LastReallocatedAt)

	// a lost resource W1 never held leaves its current pair the best one
	result, err := f.service.Handle(ctx, Trigger{WorkOrderID: "W1", Cause: CauseResourceLost, Resource: "M9"})
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, result.Status)
	assert.Nil(t, result.Outcome)

	wo := f.get(t, "W1")
	assert.Equal(t, "O1", wo.OperatorID)
	assert.Equal(t, "M1", wo.MachineID)
	assert.Nil(t, wo.LastReallocatedAt)
	assert.Zero(t, f.progress.Snapshot().Reallocated)
	assert.Equal(t, PhaseStable, f.service.Phase("W1"))
}

func TestService_Handle_ProgressGuard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scorer.DefaultWeights())
	f.operator(t, "O1", 2, 0)
	f.machine(t, "M1", 0)
	f.workOrder(t, "W1", time.Hour)
	_, err := f.allocator.Pass(ctx)
	require.NoError(t, err)
	f.operator(t, "O2", 5, 0)

	f.clock.Set(epoch.Add(35 * time.Minute))
	result, err := f.service.Handle(ctx, Trigger{WorkOrderID: "W1", Cause: CauseIdleResource, Resource: "O2"})
	require.NoError(t, err)
	assert.Equal(t, StatusSuppressed, result.Status)
	assert.Equal(t, GuardProgress, result.Guard)

	// a looser policy carried by the context lets it through
	loose := policy.Default()
	loose.ProgressGuard = 0.9
	result, err = f.service.Handle(policy.WithPolicy(ctx, loose), Trigger{WorkOrderID: "W1", Cause: CauseIdleResource, Resource: "O2"})
	require.NoError(t, err)
	assert.Equal(t, StatusReallocated, result.Status)
	assert.Equal(t, "O2", f.get(t, "W1").OperatorID)

	pinned := policy.Default()
	pinned.Pinned = []string{"w1"}
	result, err = f.service.Handle(policy.WithPolicy(ctx, pinned), Trigger{WorkOrderID: "W1", Cause: CauseIdleResource, Resource: "O1"})
	require.NoError(t, err)
	assert.Equal(t, GuardPinned, result.Guard)
}

func TestService_Handle_Coalesce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scorer.DefaultWeights())
	f.operator(t, "O1", 3, 0)
	f.machine(t, "M1", 0)
	f.workOrder(t, "W1", time.Hour)
	f.workOrder(t, "W2", time.Hour)

	require.True(t, f.service.enter(Trigger{WorkOrderID: "W1", Cause: CauseIdleResource}))
	assert.Equal(t, PhasePendingReallocation, f.service.Phase("W1"))

	result, err := f.service.Handle(ctx, Trigger{WorkOrderID: "W1", Cause: CauseResourceLost, Resource: "M9"})
	require.NoError(t, err)
	assert.Equal(t, StatusDeferred, result.Status)
	result, err = f.service.Handle(ctx, Trigger{WorkOrderID: "W1", Cause: CauseIdleResource, Resource: "O1"})
	require.NoError(t, err)
	assert.Equal(t, StatusDeferred, result.Status)

	// unrelated work orders are not held back
	result, err = f.service.Handle(ctx, Trigger{WorkOrderID: "W2", Cause: CauseUnblocked})
	require.NoError(t, err)
	assert.Equal(t, StatusAllocated, result.Status)

	next, ok := f.service.leave("W1")
	require.True(t, ok)
	assert.Equal(t, CauseResourceLost, next.Cause, "resource loss wins over weaker causes")
	_, ok = f.service.leave("W1")
	assert.False(t, ok)
	assert.Equal(t, PhaseStable, f.service.Phase("W1"))
}

func TestService_Review(t *testing.T) {
	t.Run("idle resource", func(t *testing.T) {
		ctx := context.Background()
		f := newFixture(t, scorer.DefaultWeights())
		f.operator(t, "O1", 2, 0)
		f.machine(t, "M1", 0)
		f.workOrder(t, "W1", 10*time.Hour)
		_, err := f.allocator.Pass(ctx)
		require.NoError(t, err)
		f.operator(t, "O2", 5, 0)

		f.clock.Set(epoch.Add(3 * time.Minute))
		results, err := f.service.Review(ctx)
		require.NoError(t, err)
		assert.Empty(t, results)

		f.clock.Set(epoch.Add(6 * time.Minute))
		results, err = f.service.Review(ctx)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, CauseIdleResource, results[0].Trigger.Cause)
		assert.Equal(t, StatusReallocated, results[0].Status)
		assert.Equal(t, "O2", f.get(t, "W1").OperatorID)
	})

	t.Run("low efficiency", func(t *testing.T) {
		ctx := context.Background()
		f := newFixture(t, scorer.Weights{Efficiency: 1})
		f.operator(t, "O1", 3, 0)
		f.machine(t, "M1", 20*time.Minute)
		f.workOrder(t, "W1", 10*time.Hour)
		_, err := f.allocator.Pass(ctx)
		require.NoError(t, err)
		require.InDelta(t, 1.0, f.get(t, "W1").Score, 1e-9)

		// a faster machine joins the fleet: M1 now rates 0.25
		f.clock.Set(epoch.Add(time.Minute))
		f.machine(t, "M2", 5*time.Minute)
		results, err := f.service.Review(ctx)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, CauseLowEfficiency, results[0].Trigger.Cause)
		assert.InDelta(t, 0.25, results[0].Current, 1e-9)
		assert.Equal(t, StatusReallocated, results[0].Status)
		assert.Equal(t, "M2", f.get(t, "W1").MachineID)
	})
}
