package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/shopfloor/model"
	"github.com/viant/shopfloor/progress"
	"github.com/viant/shopfloor/service/allocator"
	"github.com/viant/shopfloor/service/dao"
	"github.com/viant/shopfloor/service/reallocator"
	"github.com/viant/shopfloor/service/registry"
)

func (s *Service) dispatch(ctx context.Context, event *model.Event) error {
	switch payload := event.Payload.(type) {
	case *model.BreakdownEvent:
		return s.machineDown(ctx, payload.MachineID, model.MachineBreakdown, nil, model.SeverityCritical, "breakdown")
	case *model.SafetyEvent:
		what := "safety stop"
		if payload.Detail != "" {
			what += ": " + payload.Detail
		}
		return s.machineDown(ctx, payload.MachineID, model.MachineBreakdown, nil, model.SeverityCritical, what)
	case *model.MaintenanceEvent:
		var until *time.Time
		if payload.Duration > 0 {
			end := s.clock().Add(payload.Duration)
			until = &end
		}
		return s.machineDown(ctx, payload.MachineID, model.MachineMaintenance, until, model.SeverityWarning, "maintenance")
	case *model.MachineRestoredEvent:
		return s.machineRestored(ctx, payload.MachineID)
	case *model.AvailabilityEvent:
		return s.availability(ctx, payload)
	case *model.CompletionEvent:
		return s.completion(ctx, payload.WorkOrderID)
	case *model.MaterialShortageEvent:
		return s.shortage(ctx, payload)
	case *model.MaterialDeliveredEvent:
		return s.delivered(ctx, payload.MaterialID, payload.Quantity)
	case *model.PriorityChangeEvent:
		return s.priorityChange(ctx, payload.WorkOrderID, payload.NewPriority)
	case *model.ProgressEvent:
		return s.reportProgress(ctx, payload.WorkOrderID, payload.Progress)
	case *model.ReviewEvent:
		return s.review(ctx)
	case *model.RecordAppliedEvent:
		return s.recordApplied(ctx, payload)
	}
	return fmt.Errorf("unsupported event payload %T: %w", event.Payload, dao.ErrInvalidID)
}

func (s *Service) machineDown(ctx context.Context, machineID string, status model.MachineStatus, until *time.Time, severity model.Severity, what string) error {
	released, err := s.registry.DetachMachine(ctx, machineID, status, until)
	if err != nil {
		return err
	}
	s.lost(ctx, released, machineID, severity, what)
	return s.passAndContend(ctx, s.unblockFreed(ctx, without(released, machineID)))
}

func (s *Service) machineRestored(ctx context.Context, machineID string) error {
	if err := s.registry.Restore(ctx, registry.KindMachine, machineID); err != nil {
		return err
	}
	ids := s.unblock(ctx, func(wo *model.WorkOrder) bool { return wo.BlockReason.MachineRelated() })
	return s.passAndContend(ctx, ids)
}

func (s *Service) availability(ctx context.Context, event *model.AvailabilityEvent) error {
	op, err := s.registry.Operator(event.OperatorID)
	if err != nil {
		return err
	}
	switch event.NewStatus {
	case model.OperatorAvailable:
		if op.Status == model.OperatorAssigned {
			return fmt.Errorf("operator %s is assigned to %s and cannot become available: %w", op.ID, op.WorkOrderID, dao.ErrIntegrity)
		}
		if op.Status != model.OperatorAvailable {
			if err := s.registry.Restore(ctx, registry.KindOperator, op.ID); err != nil {
				return err
			}
		}
		ids := s.unblock(ctx, func(wo *model.WorkOrder) bool { return wo.BlockReason.OperatorRelated() })
		return s.passAndContend(ctx, ids)
	case model.OperatorBreak, model.OperatorUnavailable:
		released, err := s.registry.DetachOperator(ctx, op.ID, event.NewStatus)
		if err != nil {
			return err
		}
		s.lost(ctx, released, op.ID, model.SeverityWarning, string(event.NewStatus))
		return s.passAndContend(ctx, s.unblockFreed(ctx, without(released, op.ID)))
	}
	return fmt.Errorf("operator %s: status %q is not reported by availability events: %w", op.ID, event.NewStatus, dao.ErrIntegrity)
}

// lost handles the work order that lost a resource
func (s *Service) lost(ctx context.Context, released *registry.Released, resourceID string, severity model.Severity, what string) {
	if released == nil || released.WorkOrder == nil {
		return
	}
	wo := released.WorkOrder
	progress.UpdateCtx(ctx, progress.Delta{Released: 1})
	s.notify(ctx, model.NotificationResourceLost, severity, []string{wo.ID, resourceID},
		"work order %s lost %s (%s)", wo.ID, resourceID, what)
	s.decide(ctx, &model.Decision{WorkOrderID: wo.ID, Kind: model.DecisionReleased, Reason: model.ReasonResourceLost, Detail: resourceID})
	result, err := s.reallocator.Handle(ctx, reallocator.Trigger{
		WorkOrderID: wo.ID,
		Cause:       reallocator.CauseResourceLost,
		Resource:    resourceID,
		Own:         true,
	})
	if err != nil {
		s.logger.Error(err, "reallocation failed", "workOrder", wo.ID)
		return
	}
	s.logger.Info("resource lost", "workOrder", wo.ID, "resource", resourceID, "status", string(result.Status))
}

func (s *Service) completion(ctx context.Context, workOrderID string) error {
	released, err := s.registry.Release(ctx, workOrderID, model.WorkOrderCompleted, model.ReasonNone, "")
	if err != nil {
		return err
	}
	progress.UpdateCtx(ctx, progress.Delta{Released: 1})
	s.decide(ctx, &model.Decision{WorkOrderID: workOrderID, Kind: model.DecisionCompleted,
		OperatorID: released.OperatorID, MachineID: released.MachineID})
	s.notify(ctx, model.NotificationCompleted, model.SeverityInfo, []string{workOrderID, released.OperatorID, released.MachineID},
		"work order %s completed", workOrderID)
	s.checkReorder(ctx, released.Materials...)
	return s.passAndContend(ctx, s.unblockFreed(ctx, released))
}

func (s *Service) shortage(ctx context.Context, event *model.MaterialShortageEvent) error {
	releasedList, err := s.registry.Shortage(ctx, event.MaterialID, event.NewAvailableQty, event.ExpectedDelivery)
	if err != nil {
		return err
	}
	affected := []string{event.MaterialID}
	var freed []string
	for _, released := range releasedList {
		affected = append(affected, released.WorkOrder.ID)
		if released.OperatorID != "" {
			progress.UpdateCtx(ctx, progress.Delta{Released: 1})
			freed = append(freed, s.unblockFreed(ctx, released)...)
		}
		s.decide(ctx, &model.Decision{WorkOrderID: released.WorkOrder.ID, Kind: model.DecisionBlocked,
			Reason: model.ReasonMaterialShortage, Detail: event.MaterialID})
	}
	delivery := "unknown"
	if event.ExpectedDelivery != nil {
		delivery = event.ExpectedDelivery.Format(time.RFC3339)
	}
	s.notify(ctx, model.NotificationShortage, model.SeverityWarning, affected,
		"material %s short: %v available, %d work orders blocked, expected delivery %s",
		event.MaterialID, event.NewAvailableQty, len(releasedList), delivery)
	s.checkReorder(ctx, event.MaterialID)
	return s.passAndContend(ctx, freed)
}

func (s *Service) delivered(ctx context.Context, materialID string, quantity float64) error {
	if _, err := s.registry.Replenish(ctx, materialID, quantity); err != nil {
		return err
	}
	ids := s.unblock(ctx, func(wo *model.WorkOrder) bool {
		return wo.BlockReason.MaterialRelated() && (wo.BlockedBy == materialID || wo.Requires(materialID))
	})
	return s.passAndContend(ctx, ids)
}

func (s *Service) priorityChange(ctx context.Context, workOrderID string, priority int) error {
	wo, err := s.registry.WorkOrder(workOrderID)
	if err != nil {
		return err
	}
	if _, err = s.registry.UpdateWorkOrder(ctx, workOrderID, wo.Revision, func(wo *model.WorkOrder) error {
		wo.Priority = priority
		return nil
	}); err != nil {
		return err
	}
	return s.passAndPreempt(ctx, workOrderID)
}

// passAndPreempt runs a pass; if the work order is still waiting afterwards it
// may displace lower priority running work.
func (s *Service) passAndPreempt(ctx context.Context, workOrderID string) error {
	if _, err := s.allocator.Pass(ctx); err != nil {
		return err
	}
	if !s.contend(ctx, workOrderID, reallocator.CauseHigherPriority) {
		return nil
	}
	_, err := s.allocator.Pass(ctx)
	return err
}

func (s *Service) reportProgress(ctx context.Context, workOrderID string, value float64) error {
	if value < 0 || value > 100 {
		return fmt.Errorf("work order %s: progress %v outside [0,100]: %w", workOrderID, value, dao.ErrIntegrity)
	}
	wo, err := s.registry.WorkOrder(workOrderID)
	if err != nil {
		return err
	}
	if wo.Status != model.WorkOrderInProgress {
		return fmt.Errorf("work order %s: progress reported while %s: %w", workOrderID, wo.Status, dao.ErrIntegrity)
	}
	_, err = s.registry.UpdateWorkOrder(ctx, workOrderID, wo.Revision, func(wo *model.WorkOrder) error {
		wo.Progress = value
		return nil
	})
	return err
}

func (s *Service) review(ctx context.Context) error {
	results, err := s.reallocator.Review(ctx)
	if err != nil {
		return err
	}
	for _, result := range results {
		s.logger.V(1).Info("review", "workOrder", result.Trigger.WorkOrderID, "cause", string(result.Trigger.Cause), "status", string(result.Status))
	}
	_, err = s.allocator.Pass(ctx)
	return err
}

func (s *Service) recordApplied(ctx context.Context, event *model.RecordAppliedEvent) error {
	var ids []string
	switch registry.Kind(event.EntityKind) {
	case registry.KindWorkOrder:
		return s.passAndPreempt(ctx, event.EntityID)
	case registry.KindOperator:
		ids = s.unblock(ctx, func(wo *model.WorkOrder) bool { return wo.BlockReason.OperatorRelated() })
	case registry.KindMachine:
		ids = s.unblock(ctx, func(wo *model.WorkOrder) bool { return wo.BlockReason.MachineRelated() })
	case registry.KindMaterial:
		ids = s.unblock(ctx, func(wo *model.WorkOrder) bool {
			return wo.BlockReason.MaterialRelated() && (wo.BlockedBy == event.EntityID || wo.Requires(event.EntityID))
		})
	}
	return s.passAndContend(ctx, ids)
}

// unblockFreed returns to pending the work orders the released resources may
// now serve.
func (s *Service) unblockFreed(ctx context.Context, released *registry.Released) []string {
	if released == nil || (released.OperatorID == "" && released.MachineID == "" && len(released.Materials) == 0) {
		return nil
	}
	return s.unblock(ctx, func(wo *model.WorkOrder) bool {
		switch {
		case released.OperatorID != "" && wo.BlockReason.OperatorRelated():
		case released.MachineID != "" && wo.BlockReason.MachineRelated():
		case wo.BlockReason == model.ReasonInsufficientMaterial && len(released.Materials) > 0:
		default:
			return false
		}
		// the work order that lost the resource is handled by reallocation
		return released.WorkOrder == nil || wo.ID != released.WorkOrder.ID
	})
}

// without drops the lost resource from released; it is out of service and
// cannot lift any block.
func without(released *registry.Released, resourceID string) *registry.Released {
	if released == nil {
		return nil
	}
	ret := *released
	if ret.OperatorID == resourceID {
		ret.OperatorID = ""
	}
	if ret.MachineID == resourceID {
		ret.MachineID = ""
	}
	return &ret
}

func (s *Service) unblock(ctx context.Context, predicate func(wo *model.WorkOrder) bool) []string {
	ids := s.registry.Unblock(ctx, predicate)
	for _, id := range ids {
		s.decide(ctx, &model.Decision{WorkOrderID: id, Kind: model.DecisionUnblocked})
	}
	if len(ids) > 0 {
		s.logger.V(1).Info("work orders unblocked", "workOrders", ids)
	}
	return ids
}

// passAndContend runs a pass; unblocked work orders still waiting afterwards
// may displace lower priority running work.
func (s *Service) passAndContend(ctx context.Context, unblocked []string) error {
	if _, err := s.allocator.Pass(ctx); err != nil {
		return err
	}
	moved := false
	for _, id := range unblocked {
		if s.contend(ctx, id, reallocator.CauseUnblocked) {
			moved = true
		}
	}
	if !moved {
		return nil
	}
	_, err := s.allocator.Pass(ctx)
	return err
}

// contend triggers reallocation of lower priority running work orders, lowest
// first, that hold a resource the waiting work order could use. It stops at
// the first one that moves and reports whether one did.
func (s *Service) contend(ctx context.Context, workOrderID string, cause reallocator.Cause) bool {
	snapshot := s.registry.Snapshot()
	wo := snapshot.WorkOrder(workOrderID)
	if wo == nil || wo.Status == model.WorkOrderInProgress || wo.Status == model.WorkOrderCompleted {
		return false
	}
	validator := s.allocator.Validator()
	running := allocator.Sort(snapshot.WorkOrderList(model.WorkOrderInProgress))
	moved := false
	for i := len(running) - 1; i >= 0; i-- {
		holder := running[i]
		if holder.Priority >= wo.Priority {
			break
		}
		resource := ""
		if op := snapshot.Operator(holder.OperatorID); op != nil && validator.ValidateOperator(wo, op, snapshot) == nil {
			resource = op.ID
		} else if m := snapshot.Machine(holder.MachineID); m != nil && validator.ValidateMachine(wo, m, snapshot) == nil {
			resource = m.ID
		}
		if resource == "" {
			continue
		}
		result, err := s.reallocator.Handle(ctx, reallocator.Trigger{WorkOrderID: holder.ID, Cause: cause, Resource: resource})
		if err != nil {
			s.logger.Error(err, "reallocation failed", "workOrder", holder.ID)
			continue
		}
		if result.Status == reallocator.StatusReallocated {
			moved = true
			break
		}
	}
	if moved && wo.Status == model.WorkOrderBlocked {
		s.unblock(ctx, func(item *model.WorkOrder) bool { return item.ID == wo.ID })
	}
	return moved
}

func (s *Service) checkReorder(ctx context.Context, materialIDs ...string) {
	for _, id := range materialIDs {
		material, err := s.registry.Material(id)
		if err != nil || !material.BelowReorderPoint() {
			continue
		}
		s.notify(ctx, model.NotificationReorder, model.SeverityWarning, []string{id},
			"material %s below reorder point: %v free, reorder point %v", id, material.Free(), material.ReorderPoint)
	}
}

func (s *Service) decide(ctx context.Context, decision *model.Decision) {
	decision.At = s.clock()
	if err := s.registry.RecordDecision(ctx, decision); err != nil {
		s.logger.Error(err, "failed to record decision", "workOrder", decision.WorkOrderID)
	}
}
