package registry

import (
	"fmt"
	"slices"

	"github.com/viant/shopfloor/model"
	"github.com/viant/shopfloor/service/dao"
)

func notFound(kind Kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, dao.ErrNotFound)
}

func conflict(kind Kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, dao.ErrConflict)
}

func integrity(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, dao.ErrIntegrity)...)
}

func (r *Registry) checkOperator(op *model.Operator) error {
	if op.ID == "" {
		return fmt.Errorf("operator: %w: %w", dao.ErrInvalidID, dao.ErrIntegrity)
	}
	if !op.Status.IsValid() {
		return integrity("operator %s: invalid status %q", op.ID, op.Status)
	}
	for skill, level := range op.Skills {
		if level < 1 || level > 5 {
			return integrity("operator %s: skill %s level %d outside 1-5", op.ID, skill, level)
		}
	}
	if op.HourlyCost < 0 {
		return integrity("operator %s: negative hourly cost", op.ID)
	}
	bound := r.holders[resourceKey{KindOperator, op.ID}] != ""
	if bound != (op.Status == model.OperatorAssigned) {
		return integrity("operator %s: status %s does not match assignment", op.ID, op.Status)
	}
	return nil
}

func (r *Registry) checkMachine(m *model.Machine) error {
	if m.ID == "" {
		return fmt.Errorf("machine: %w: %w", dao.ErrInvalidID, dao.ErrIntegrity)
	}
	if !m.Status.IsValid() {
		return integrity("machine %s: invalid status %q", m.ID, m.Status)
	}
	if m.CycleTime < 0 || m.HourlyCost < 0 {
		return integrity("machine %s: negative cycle time or cost", m.ID)
	}
	bound := r.holders[resourceKey{KindMachine, m.ID}] != ""
	if bound != (m.Status == model.MachineRunning) {
		return integrity("machine %s: status %s does not match assignment", m.ID, m.Status)
	}
	return nil
}

func checkMaterial(m *model.Material) error {
	if m.ID == "" {
		return fmt.Errorf("material: %w: %w", dao.ErrInvalidID, dao.ErrIntegrity)
	}
	if m.QuantityAvailable < 0 || m.QuantityReserved < 0 {
		return integrity("material %s: negative quantity", m.ID)
	}
	if m.QuantityReserved > m.QuantityAvailable {
		return integrity("material %s: reserved %v exceeds available %v", m.ID, m.QuantityReserved, m.QuantityAvailable)
	}
	if m.CostPerUnit < 0 {
		return integrity("material %s: negative cost", m.ID)
	}
	return nil
}

func (r *Registry) checkWorkOrder(wo *model.WorkOrder) error {
	if wo.ID == "" {
		return fmt.Errorf("work order: %w: %w", dao.ErrInvalidID, dao.ErrIntegrity)
	}
	if wo.Priority < 1 || wo.Priority > 10 {
		return integrity("work order %s: priority %d outside 1-10", wo.ID, wo.Priority)
	}
	if !wo.Status.IsValid() {
		return integrity("work order %s: invalid status %q", wo.ID, wo.Status)
	}
	if wo.EstimatedDuration < 0 {
		return integrity("work order %s: negative duration", wo.ID)
	}
	seen := make(map[string]bool, len(wo.RequiredMaterials))
	for _, req := range wo.RequiredMaterials {
		if seen[req.MaterialID] {
			return integrity("work order %s: material %s listed more than once", wo.ID, req.MaterialID)
		}
		seen[req.MaterialID] = true
		if req.Quantity <= 0 {
			return integrity("work order %s: material %s quantity must be positive", wo.ID, req.MaterialID)
		}
		if r.materials.Revision(req.MaterialID) < 0 {
			return integrity("work order %s: unknown material %s", wo.ID, req.MaterialID)
		}
	}
	_, holds := r.assigned[wo.ID]
	if holds != (wo.Status == model.WorkOrderInProgress) {
		return integrity("work order %s: status %s does not match assignment", wo.ID, wo.Status)
	}
	return nil
}

func sameRequirements(a, b []model.MaterialRequirement) bool {
	return slices.Equal(a, b)
}
