package registry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/viant/shopfloor/model"
	"github.com/viant/shopfloor/service/dao"
)

// Plan is an assignment computed against a snapshot. Revisions are the ones
// observed in that snapshot.
type Plan struct {
	WorkOrderID       string
	WorkOrderRevision int64
	OperatorID        string
	OperatorRevision  int64
	MachineID         string
	MachineRevision   int64
	Score             float64
	// Reallocation stamps the last-reallocation timestamp
	Reallocation bool
}

// Released describes resources freed by a work order transition
type Released struct {
	WorkOrder *model.WorkOrder
	Assignment
	Materials []string
}

// putWorkOrder stores wo without the derived assignment fields and returns a
// decorated copy.
func (r *Registry) putWorkOrder(wo *model.WorkOrder) *model.WorkOrder {
	wo.OperatorID, wo.MachineID = "", ""
	r.workOrders.Put(wo, r.next())
	ret := wo.Clone()
	r.decorate(ret)
	return ret
}

func (r *Registry) setOperatorStatus(op *model.Operator, status model.OperatorStatus, now time.Time) {
	if op.Status != status {
		op.Status = status
		op.StatusSince = now
	}
	r.operators.Put(op, r.next())
}

func (r *Registry) setMachineStatus(m *model.Machine, status model.MachineStatus, now time.Time) {
	if m.Status != status {
		m.Status = status
		m.StatusSince = now
	}
	r.machines.Put(m, r.next())
}

// Assign commits plan: operator and machine become assigned/running, the
// work order's materials are reserved and it moves to in_progress. A running
// work order swaps to the planned resources and keeps its reservation.
// Both sides of every reference commit together or nothing changes.
func (r *Registry) Assign(_ context.Context, plan *Plan) (*model.WorkOrder, error) {
	if plan == nil {
		return nil, dao.ErrNilEntity
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	wo, ok := r.workOrders.Get(plan.WorkOrderID)
	if !ok {
		return nil, notFound(KindWorkOrder, plan.WorkOrderID)
	}
	op, ok := r.operators.Get(plan.OperatorID)
	if !ok {
		return nil, notFound(KindOperator, plan.OperatorID)
	}
	machine, ok := r.machines.Get(plan.MachineID)
	if !ok {
		return nil, notFound(KindMachine, plan.MachineID)
	}
	switch {
	case wo.Revision != plan.WorkOrderRevision:
		return nil, conflict(KindWorkOrder, wo.ID)
	case op.Revision != plan.OperatorRevision:
		return nil, conflict(KindOperator, op.ID)
	case machine.Revision != plan.MachineRevision:
		return nil, conflict(KindMachine, machine.ID)
	}
	if wo.Status == model.WorkOrderCompleted {
		return nil, integrity("work order %s: already completed", wo.ID)
	}
	current, running := r.assigned[wo.ID]
	if holder := r.holders[resourceKey{KindOperator, op.ID}]; op.Status != model.OperatorAvailable && holder != wo.ID {
		return nil, fmt.Errorf("operator %s is %s: %w", op.ID, op.Status, dao.ErrConflict)
	}
	if holder := r.holders[resourceKey{KindMachine, machine.ID}]; machine.Status != model.MachineIdle && holder != wo.ID {
		return nil, fmt.Errorf("machine %s is %s: %w", machine.ID, machine.Status, dao.ErrConflict)
	}

	var reserved []*model.Material
	if !running {
		for _, req := range wo.MaterialTotals() {
			material, ok := r.materials.Get(req.MaterialID)
			if !ok {
				return nil, integrity("work order %s: unknown material %s", wo.ID, req.MaterialID)
			}
			if err := material.Reserve(req.Quantity); err != nil {
				return nil, fmt.Errorf("%v: %w", err, dao.ErrConflict)
			}
			reserved = append(reserved, material)
		}
	}

	now := r.clock()
	for _, material := range reserved {
		r.materials.Put(material, r.next())
	}
	if running {
		if current.OperatorID != op.ID {
			r.releaseOperator(current.OperatorID, wo.ID, now)
		}
		if current.MachineID != machine.ID {
			r.releaseMachine(current.MachineID, wo.ID, now)
		}
	}
	r.setOperatorStatus(op, model.OperatorAssigned, now)
	r.setMachineStatus(machine, model.MachineRunning, now)
	r.holders[resourceKey{KindOperator, op.ID}] = wo.ID
	r.holders[resourceKey{KindMachine, machine.ID}] = wo.ID
	r.assigned[wo.ID] = Assignment{OperatorID: op.ID, MachineID: machine.ID}

	if wo.StartedAt == nil || !plan.Reallocation {
		started := now
		wo.StartedAt = &started
		wo.Progress = 0
	}
	if plan.Reallocation {
		stamp := now
		wo.LastReallocatedAt = &stamp
	}
	wo.Status = model.WorkOrderInProgress
	wo.Score = plan.Score
	wo.BlockReason, wo.BlockedBy = model.ReasonNone, ""
	return r.putWorkOrder(wo), nil
}

func (r *Registry) releaseOperator(id, workOrderID string, now time.Time) {
	key := resourceKey{KindOperator, id}
	if id == "" || r.holders[key] != workOrderID {
		return
	}
	delete(r.holders, key)
	op, ok := r.operators.Get(id)
	if !ok {
		return
	}
	if op.Status == model.OperatorAssigned {
		r.setOperatorStatus(op, model.OperatorAvailable, now)
	}
}

func (r *Registry) releaseMachine(id, workOrderID string, now time.Time) {
	key := resourceKey{KindMachine, id}
	if id == "" || r.holders[key] != workOrderID {
		return
	}
	delete(r.holders, key)
	m, ok := r.machines.Get(id)
	if !ok {
		return
	}
	if m.Status == model.MachineRunning {
		r.setMachineStatus(m, model.MachineIdle, now)
	}
}

// unlink frees everything wo holds; materials are consumed on completion and
// released otherwise. Callers hold the lock.
func (r *Registry) unlink(wo *model.WorkOrder, consume bool, now time.Time) (*Released, error) {
	ret := &Released{}
	current, running := r.assigned[wo.ID]
	if !running {
		return ret, nil
	}
	var touched []*model.Material
	for _, req := range wo.MaterialTotals() {
		material, ok := r.materials.Get(req.MaterialID)
		if !ok {
			return nil, integrity("work order %s: unknown material %s", wo.ID, req.MaterialID)
		}
		var err error
		if consume {
			err = material.Consume(req.Quantity)
		} else {
			err = material.Release(req.Quantity)
		}
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, dao.ErrIntegrity)
		}
		touched = append(touched, material)
	}
	for _, material := range touched {
		r.materials.Put(material, r.next())
		ret.Materials = append(ret.Materials, material.ID)
	}
	r.releaseOperator(current.OperatorID, wo.ID, now)
	r.releaseMachine(current.MachineID, wo.ID, now)
	delete(r.assigned, wo.ID)
	ret.Assignment = current
	return ret, nil
}

// Release moves a work order to status (completed, blocked or pending) and
// frees its resources. Completion consumes reserved materials.
func (r *Registry) Release(_ context.Context, workOrderID string, status model.WorkOrderStatus, reason model.Reason, blockedBy string) (*Released, error) {
	if status == model.WorkOrderInProgress || !status.IsValid() {
		return nil, integrity("work order %s: cannot release into %q", workOrderID, status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	wo, ok := r.workOrders.Get(workOrderID)
	if !ok {
		return nil, notFound(KindWorkOrder, workOrderID)
	}
	completing := status == model.WorkOrderCompleted
	if completing && wo.Status != model.WorkOrderInProgress {
		return nil, integrity("work order %s: only a running work order can complete, status %s", wo.ID, wo.Status)
	}
	now := r.clock()
	ret, err := r.unlink(wo, completing, now)
	if err != nil {
		return nil, err
	}
	r.transition(wo, status, reason, blockedBy, now)
	ret.WorkOrder = r.putWorkOrder(wo)
	return ret, nil
}

func (r *Registry) transition(wo *model.WorkOrder, status model.WorkOrderStatus, reason model.Reason, blockedBy string, now time.Time) {
	wo.Status = status
	wo.BlockReason, wo.BlockedBy = model.ReasonNone, ""
	switch status {
	case model.WorkOrderCompleted:
		completed := now
		wo.CompletedAt = &completed
		wo.Progress = 100
	case model.WorkOrderBlocked:
		wo.BlockReason, wo.BlockedBy = reason, blockedBy
	}
}

// Block marks a work order that holds no resources as blocked. Running work
// orders go through Release.
func (r *Registry) Block(_ context.Context, workOrderID string, revision int64, reason model.Reason, blockedBy string) (*model.WorkOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wo, ok := r.workOrders.Get(workOrderID)
	if !ok {
		return nil, notFound(KindWorkOrder, workOrderID)
	}
	if wo.Revision != revision {
		return nil, conflict(KindWorkOrder, workOrderID)
	}
	switch wo.Status {
	case model.WorkOrderInProgress, model.WorkOrderCompleted:
		return nil, integrity("work order %s: cannot block %s work order", wo.ID, wo.Status)
	}
	r.transition(wo, model.WorkOrderBlocked, reason, blockedBy, r.clock())
	return r.putWorkOrder(wo), nil
}

// DetachOperator changes an operator's status to break or unavailable. The
// work order it was running is blocked with ReasonResourceLost and its other
// resources are freed.
func (r *Registry) DetachOperator(_ context.Context, operatorID string, status model.OperatorStatus) (*Released, error) {
	if status != model.OperatorBreak && status != model.OperatorUnavailable {
		return nil, integrity("operator %s: detach into %q", operatorID, status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.operators.Get(operatorID)
	if !ok {
		return nil, notFound(KindOperator, operatorID)
	}
	return r.detach(resourceKey{KindOperator, operatorID}, func(now time.Time) {
		r.setOperatorStatus(op, status, now)
	})
}

// DetachMachine changes a machine's status to breakdown or maintenance,
// blocking the work order it was running.
func (r *Registry) DetachMachine(_ context.Context, machineID string, status model.MachineStatus, maintenanceUntil *time.Time) (*Released, error) {
	if status != model.MachineBreakdown && status != model.MachineMaintenance {
		return nil, integrity("machine %s: detach into %q", machineID, status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	machine, ok := r.machines.Get(machineID)
	if !ok {
		return nil, notFound(KindMachine, machineID)
	}
	return r.detach(resourceKey{KindMachine, machineID}, func(now time.Time) {
		if status == model.MachineMaintenance {
			started := now
			machine.LastMaintenance = &started
			machine.NextMaintenance = cloneTime(maintenanceUntil)
		}
		r.setMachineStatus(machine, status, now)
	})
}

func (r *Registry) detach(key resourceKey, apply func(now time.Time)) (*Released, error) {
	now := r.clock()
	ret := &Released{}
	if workOrderID := r.holders[key]; workOrderID != "" {
		wo, ok := r.workOrders.Get(workOrderID)
		if !ok {
			return nil, notFound(KindWorkOrder, workOrderID)
		}
		released, err := r.unlink(wo, false, now)
		if err != nil {
			return nil, err
		}
		ret = released
		r.transition(wo, model.WorkOrderBlocked, model.ReasonResourceLost, key.id, now)
		ret.WorkOrder = r.putWorkOrder(wo)
	}
	apply(now)
	return ret, nil
}

// Restore returns an operator to available or a machine to idle
func (r *Registry) Restore(_ context.Context, kind Kind, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock()
	if r.holders[resourceKey{kind, id}] != "" {
		return integrity("%s %s: still assigned", kind, id)
	}
	switch kind {
	case KindOperator:
		op, ok := r.operators.Get(id)
		if !ok {
			return notFound(kind, id)
		}
		r.setOperatorStatus(op, model.OperatorAvailable, now)
	case KindMachine:
		m, ok := r.machines.Get(id)
		if !ok {
			return notFound(kind, id)
		}
		r.setMachineStatus(m, model.MachineIdle, now)
	default:
		return fmt.Errorf("restore %s: %w", kind, dao.ErrInvalidID)
	}
	return nil
}

// Unblock returns blocked work orders accepted by predicate to pending and
// returns their ids in order.
func (r *Registry) Unblock(_ context.Context, predicate func(wo *model.WorkOrder) bool) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	r.workOrders.Each(func(item *model.WorkOrder) bool {
		if item.Status == model.WorkOrderBlocked && predicate(item) {
			ids = append(ids, item.ID)
		}
		return true
	})
	now := r.clock()
	for _, id := range ids {
		wo, _ := r.workOrders.Get(id)
		r.transition(wo, model.WorkOrderPending, model.ReasonNone, "", now)
		r.putWorkOrder(wo)
	}
	sort.Strings(ids)
	return ids
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	ret := *t
	return &ret
}
