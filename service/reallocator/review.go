package reallocator

import (
	"context"
	"time"

	"github.com/viant/shopfloor/model"
	"github.com/viant/shopfloor/policy"
	"github.com/viant/shopfloor/service/allocator"
)

// Review raises the periodic triggers: a resource idle longer than the idle
// threshold reconsiders the highest ranked running work order it could
// serve, and a running work order whose realized score fell below the
// efficiency floor of its assignment score is reconsidered without its
// machine.
func (s *Service) Review(ctx context.Context) ([]*Result, error) {
	pol := policy.FromContext(ctx, s.policy)
	snapshot := s.registry.Snapshot()
	now := snapshot.TakenAt
	running := allocator.Sort(snapshot.WorkOrderList(model.WorkOrderInProgress))
	seen := map[string]bool{}
	var triggers []Trigger
	add := func(wo *model.WorkOrder, cause Cause, resource string) {
		seen[wo.ID] = true
		triggers = append(triggers, Trigger{WorkOrderID: wo.ID, Cause: cause, Resource: resource, At: now})
	}

	validator := s.allocator.Validator()
	for _, op := range snapshot.OperatorList(model.OperatorAvailable) {
		if !idle(op.StatusSince, now, pol.IdleThreshold) {
			continue
		}
		for _, wo := range running {
			if !seen[wo.ID] && validator.ValidateOperator(wo, op, snapshot) == nil {
				add(wo, CauseIdleResource, op.ID)
				break
			}
		}
	}
	for _, m := range snapshot.MachineList(model.MachineIdle) {
		if !idle(m.StatusSince, now, pol.IdleThreshold) {
			continue
		}
		for _, wo := range running {
			if !seen[wo.ID] && validator.ValidateMachine(wo, m, snapshot) == nil {
				add(wo, CauseIdleResource, m.ID)
				break
			}
		}
	}
	for _, wo := range running {
		if seen[wo.ID] || wo.Score <= 0 {
			continue
		}
		op, m := snapshot.Operator(wo.OperatorID), snapshot.Machine(wo.MachineID)
		if op == nil || m == nil {
			continue
		}
		realized := s.allocator.Scorer().Score(wo, op, m, snapshot)
		if realized/wo.Score < pol.EfficiencyFloor {
			add(wo, CauseLowEfficiency, m.ID)
		}
	}

	var results []*Result
	for _, trigger := range triggers {
		result, err := s.Handle(ctx, trigger)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

func idle(since, now time.Time, threshold time.Duration) bool {
	return threshold > 0 && !since.IsZero() && now.Sub(since) > threshold
}
