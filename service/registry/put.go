package registry

import (
	"context"

	"github.com/viant/shopfloor/model"
	"github.com/viant/shopfloor/service/dao"
)

// PutOperator inserts or replaces operator attributes. The assignment
// relation is owned by the registry: an unbound operator cannot be put as
// assigned and an assigned one must stay assigned.
func (r *Registry) PutOperator(_ context.Context, op *model.Operator) (*model.Operator, error) {
	if op == nil {
		return nil, dao.ErrNilEntity
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	candidate := op.Clone()
	candidate.WorkOrderID = ""
	candidate.StatusSince = r.clock()
	if existing, ok := r.operators.Get(candidate.ID); ok && existing.Status == candidate.Status {
		candidate.StatusSince = existing.StatusSince
	}
	if err := r.checkOperator(candidate); err != nil {
		return nil, err
	}
	r.operators.Put(candidate, r.next())
	return candidate.Clone(), nil
}

// PutMachine inserts or replaces machine attributes
func (r *Registry) PutMachine(_ context.Context, m *model.Machine) (*model.Machine, error) {
	if m == nil {
		return nil, dao.ErrNilEntity
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	candidate := m.Clone()
	candidate.WorkOrderID = ""
	candidate.StatusSince = r.clock()
	if existing, ok := r.machines.Get(candidate.ID); ok && existing.Status == candidate.Status {
		candidate.StatusSince = existing.StatusSince
	}
	if err := r.checkMachine(candidate); err != nil {
		return nil, err
	}
	r.machines.Put(candidate, r.next())
	return candidate.Clone(), nil
}

// PutMaterial inserts or replaces material attributes; the reserved quantity
// is kept.
func (r *Registry) PutMaterial(_ context.Context, m *model.Material) (*model.Material, error) {
	if m == nil {
		return nil, dao.ErrNilEntity
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	candidate := m.Clone()
	candidate.QuantityReserved = 0
	if existing, ok := r.materials.Get(candidate.ID); ok {
		candidate.QuantityReserved = existing.QuantityReserved
	}
	if err := checkMaterial(candidate); err != nil {
		return nil, err
	}
	r.materials.Put(candidate, r.next())
	return candidate.Clone(), nil
}

// PutWorkOrder inserts a work order or replaces its planning attributes.
// Lifecycle fields of an existing work order are kept; a new one cannot
// start as in_progress.
func (r *Registry) PutWorkOrder(_ context.Context, wo *model.WorkOrder) (*model.WorkOrder, error) {
	if wo == nil {
		return nil, dao.ErrNilEntity
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	candidate := wo.Clone()
	existing, ok := r.workOrders.Get(candidate.ID)
	if ok {
		if existing.Status == model.WorkOrderInProgress && !sameRequirements(existing.RequiredMaterials, candidate.RequiredMaterials) {
			return nil, integrity("work order %s: material requirements of a running work order are fixed", candidate.ID)
		}
		existing.Priority = candidate.Priority
		existing.RequiredSkills = candidate.RequiredSkills
		existing.RequiredCapability = candidate.RequiredCapability
		existing.RequiredMaterials = candidate.RequiredMaterials
		existing.EstimatedDuration = candidate.EstimatedDuration
		existing.Deadline = candidate.Deadline
		existing.Location = candidate.Location
		candidate = existing
	} else {
		if candidate.Status == "" {
			candidate.Status = model.WorkOrderPending
		}
		if candidate.CreatedAt.IsZero() {
			candidate.CreatedAt = r.clock()
		}
		candidate.StartedAt, candidate.LastReallocatedAt = nil, nil
	}
	if err := r.checkWorkOrder(candidate); err != nil {
		return nil, err
	}
	return r.putWorkOrder(candidate), nil
}
